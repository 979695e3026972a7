package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"

	"github.com/wolfman30/dental-report-ai/internal/extraction"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

// ReportSummary is what the mailer needs to describe one finished extraction.
type ReportSummary struct {
	JobID    string
	FileName string
	Source   extraction.Source
	Success  bool
	Fields   extraction.Fields
	Missing  []string
	Error    string
}

type summaryRow struct {
	Label string
	Value string
}

type summaryView struct {
	ReportSummary
	Rows    []summaryRow
	Missing []string
}

// ReportMailer emails extraction summaries to the address given with a job.
type ReportMailer struct {
	email  EmailSender
	rules  *extraction.Rules
	logger *logging.Logger
}

// NewReportMailer returns a mailer; rules nil means the embedded dictionary.
func NewReportMailer(email EmailSender, rules *extraction.Rules, logger *logging.Logger) *ReportMailer {
	if rules == nil {
		rules = extraction.DefaultRules()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReportMailer{email: email, rules: rules, logger: logger}
}

// SendReport renders and sends the summary to one recipient.
func (m *ReportMailer) SendReport(ctx context.Context, to string, summary ReportSummary) error {
	if m == nil || m.email == nil {
		return errors.New("notify: email sender not configured")
	}
	if strings.TrimSpace(to) == "" {
		return errors.New("notify: recipient required")
	}

	msg, err := m.render(summary)
	if err != nil {
		return err
	}
	msg.To = to

	if err := m.email.Send(ctx, msg); err != nil {
		m.logger.Error("notify: failed to send report email", "error", err, "to", logging.MaskEmail(to), "job_id", summary.JobID)
		return err
	}
	m.logger.Info("notify: report email sent", "to", logging.MaskEmail(to), "job_id", summary.JobID)
	return nil
}

func (m *ReportMailer) render(summary ReportSummary) (EmailMessage, error) {
	view := summaryView{ReportSummary: summary}
	for _, key := range m.rules.Keys() {
		view.Rows = append(view.Rows, summaryRow{Label: m.rules.DisplayLabel(key), Value: summary.Fields.Get(key)})
	}
	for _, key := range summary.Missing {
		view.Missing = append(view.Missing, m.rules.DisplayLabel(key))
	}

	subject := fmt.Sprintf("日計表の読み取り結果: %s", summary.FileName)
	if !summary.Success {
		subject = fmt.Sprintf("日計表の読み取りに失敗しました: %s", summary.FileName)
	}

	var text bytes.Buffer
	if err := textSummary.Execute(&text, view); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render text: %w", err)
	}
	var html bytes.Buffer
	if err := htmlSummary.Execute(&html, view); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render html: %w", err)
	}
	outcome := "completed"
	if !summary.Success {
		outcome = "failed"
	}
	return EmailMessage{
		Subject: subject,
		Text:    text.String(),
		HTML:    html.String(),
		Tags:    map[string]string{"job_id": summary.JobID, "outcome": outcome},
	}, nil
}

var textSummary = template.Must(template.New("text").Parse(`{{if .Success}}日計表 {{.FileName}} の読み取りが完了しました。{{else}}日計表 {{.FileName}} から項目を読み取れませんでした。{{end}}
{{if .Error}}
エラー: {{.Error}}
{{end}}
{{range .Rows}}{{.Label}}: {{if .Value}}{{.Value}}{{else}}-{{end}}
{{end}}{{if .Missing}}
未取得: {{range $i, $m := .Missing}}{{if $i}}、{{end}}{{$m}}{{end}}
{{end}}
ジョブID: {{.JobID}} / 取得元: {{.Source}}
`))

var htmlSummary = htmltemplate.Must(htmltemplate.New("html").Parse(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: {{if .Success}}#10b981{{else}}#ef4444{{end}};">{{if .Success}}読み取り完了{{else}}読み取り失敗{{end}}</h2>
<p>{{.FileName}}</p>
{{if .Error}}<p style="color: #ef4444;">{{.Error}}</p>{{end}}
<table style="border-collapse: collapse; margin: 20px 0;">
{{range .Rows}}  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>{{.Label}}</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb; text-align: right;">{{if .Value}}{{.Value}}{{else}}-{{end}}</td></tr>
{{end}}</table>
{{if .Missing}}<p style="color: #6b7280;">未取得: {{range $i, $m := .Missing}}{{if $i}}、{{end}}{{$m}}{{end}}</p>{{end}}
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">job {{.JobID}} / source {{.Source}}</p>
</div>`))
