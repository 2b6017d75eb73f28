package aidoc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-haiku-4-5-20251001"

	// maxDocumentChars caps the page text sent to the model.
	maxDocumentChars = 50000

	maxTokens = 1024
)

const systemPrompt = `You extract product attributes from web page text.
Respond with a single JSON object and nothing else. Keys: ean, ral_code,
width_mm, height_mm, depth_mm, weight_kg, package_units. Each value is an
object {"value": "<string>", "confidence": <0..1>}. Omit keys you cannot
determine. ean is an 8, 13 or 14 digit code. ral_code looks like "RAL 7035".
Dimensions are millimetres, weight is kilograms.`

// AnthropicConfig configures the SDK-backed analyzer.
type AnthropicConfig struct {
	APIKey string
	Model  string
}

// AnthropicAnalyzer implements Analyzer using the Anthropic messages API.
type AnthropicAnalyzer struct {
	client sdk.Client
	model  string
	logger *zap.Logger
}

var _ Analyzer = (*AnthropicAnalyzer)(nil)

// NewAnthropicAnalyzer builds an analyzer from an API key.
func NewAnthropicAnalyzer(cfg AnthropicConfig, logger *zap.Logger) (*AnthropicAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnthropicAnalyzer{
		client: sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// Analyze sends the page text to the model and parses its JSON reply.
func (a *AnthropicAnalyzer) Analyze(ctx context.Context, pageURL, document string) (Analysis, error) {
	if len(document) > maxDocumentChars {
		document = document[:maxDocumentChars]
	}

	msg, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: maxTokens,
		System: []sdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(
				fmt.Sprintf("Page URL: %s\n\nPage text:\n%s", pageURL, document),
			)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	analysis, err := parseAnalysis(text.String())
	if err != nil {
		a.logger.Warn("model reply unparsable",
			zap.String("url", pageURL), zap.Error(err))
		return nil, err
	}
	a.logger.Debug("document analyzed",
		zap.String("url", pageURL),
		zap.Int("fields", len(analysis)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens))
	return analysis, nil
}

// parseAnalysis tolerates code fences and leading prose around the JSON
// object.
func parseAnalysis(reply string) (Analysis, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in reply")
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(reply[start:end+1]), &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return analysis, nil
}
