package repair

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockConverseAPI is the subset of the Bedrock client used for repair.
type BedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockCompleter implements Completer with the Converse API.
type BedrockCompleter struct {
	client    BedrockConverseAPI
	modelID   string
	maxTokens int32
}

// NewBedrockCompleter returns a completer for modelID (a model or inference profile ID).
func NewBedrockCompleter(client BedrockConverseAPI, modelID string) (*BedrockCompleter, error) {
	if client == nil {
		return nil, errors.New("repair: bedrock client is required")
	}
	if strings.TrimSpace(modelID) == "" {
		return nil, errors.New("repair: bedrock model id is required")
	}
	return &BedrockCompleter{client: client, modelID: modelID, maxTokens: 1024}, nil
}

func (c *BedrockCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.modelID),
		Messages: []brtypes.Message{
			{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: prompt},
				},
			},
		},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.maxTokens),
			Temperature: aws.Float32(0.0),
		},
	}
	if strings.TrimSpace(system) != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: system},
		}
	}

	resp, err := c.client.Converse(ctx, input)
	if err != nil {
		return "", fmt.Errorf("repair: bedrock converse: %w", err)
	}
	text := converseText(resp)
	if text == "" {
		return "", errors.New("repair: bedrock returned empty content")
	}
	return text, nil
}

func converseText(resp *bedrockruntime.ConverseOutput) string {
	if resp == nil || resp.Output == nil {
		return ""
	}
	output, ok := resp.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, block := range output.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	return strings.TrimSpace(sb.String())
}
