package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	appbootstrap "github.com/wolfman30/dental-report-ai/internal/app/bootstrap"
	appconfig "github.com/wolfman30/dental-report-ai/internal/config"
	"github.com/wolfman30/dental-report-ai/internal/dify"
	"github.com/wolfman30/dental-report-ai/internal/intake"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

type rootOptions struct {
	timeout  time.Duration
	logLevel string
	variable string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "reportctl",
		Short:         "Extract dental daily report figures through the Dify workflow",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 3*time.Minute, "overall command timeout")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")
	root.PersistentFlags().StringVar(&opts.variable, "variable", "", "workflow input variable (defaults to DIFY_INPUT_VARIABLE)")

	root.AddCommand(newExtractCmd(opts), newPingCmd(opts), newProbeCmd(opts))
	return root
}

func newExtractCmd(opts *rootOptions) *cobra.Command {
	var raw, noCache bool
	cmd := &cobra.Command{
		Use:   "extract <pdf>",
		Short: "Upload a PDF and print the extracted report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upload, err := readPDF(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			app, err := opts.build(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Service.Process(ctx, upload, intake.Options{
				RequestID:  "cli-" + time.Now().UTC().Format("20060102T150405"),
				IncludeRaw: raw,
				SkipCache:  noCache,
				Caller:     "cli",
			})
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.Success {
				return fmt.Errorf("extraction incomplete: missing %v", report.Missing)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "include the raw upstream response")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the result cache")
	return cmd
}

func newPingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Run the workflow with empty inputs and report whether Dify is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			app, err := opts.build(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			report := dify.NewProbeReport(app.Dify.Ping(ctx))
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.OK {
				return fmt.Errorf("workflow ping failed with status %d", report.StatusCode)
			}
			return nil
		},
	}
}

type probeOutput struct {
	FileID        string         `json:"file_id"`
	InputVariable string         `json:"input_variable"`
	Accepted      []string       `json:"accepted"`
	Attempts      []dify.Attempt `json:"attempts"`
}

func newProbeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <pdf>",
		Short: "Upload a PDF and try every file input shape against the workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upload, err := readPDF(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			app, err := opts.build(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			ref, err := app.Dify.UploadFile(ctx, upload.FileName, upload.ContentType, upload.Data)
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}
			out := probeOutput{
				FileID:        ref.ID,
				InputVariable: app.Config.DifyInputVariable,
				Accepted:      []string{},
				Attempts:      app.Dify.ProbePatterns(ctx, app.Config.DifyInputVariable, ref.ID),
			}
			for _, attempt := range out.Attempts {
				if attempt.OK {
					out.Accepted = append(out.Accepted, attempt.Pattern)
				}
			}
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if len(out.Accepted) == 0 {
				return dify.ErrNoPatternAccepted
			}
			return nil
		},
	}
}

// build loads configuration from the environment and wires the pipeline
// without jobs or metrics.
func (o *rootOptions) build(ctx context.Context, stderr io.Writer) (*appbootstrap.App, error) {
	cfg := appconfig.Load()
	if o.variable != "" {
		cfg.DifyInputVariable = o.variable
	}
	if cfg.DifyAPIKey == "" {
		return nil, fmt.Errorf("DIFY_API_KEY is not set")
	}
	logger := logging.NewWithOptions(logging.Options{Level: o.logLevel, Format: "text", Output: stderr})
	return appbootstrap.Build(ctx, cfg, logger, appbootstrap.Options{})
}

func readPDF(path string) (intake.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return intake.Upload{}, fmt.Errorf("read %s: %w", path, err)
	}
	upload := intake.Upload{FileName: filepath.Base(path), Data: data}
	if err := upload.Validate(0); err != nil {
		return intake.Upload{}, err
	}
	return upload.Normalized(), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
