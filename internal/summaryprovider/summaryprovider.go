// Package summaryprovider implements the §4.7 abstractive summarization
// boundary: a pluggable SummaryProvider interface with concrete Anthropic
// and OpenAI implementations, selected by config.SummarizationProvider.
//
// Grounded on manifold's internal/llm/anthropic/client.go (sdk.NewClient
// option wiring, system/user message construction) and
// internal/llm/openai/client.go (chat completion wiring) for the two
// concrete providers.
package summaryprovider

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/openai/openai-go/v2"
	openaiopt "github.com/openai/openai-go/v2/option"

	"manifold/internal/apperr"
)

// SummaryProvider produces an abstractive summary of the given text. An
// empty returned string with a nil error is treated by the orchestrator as
// an abstractive failure that falls back to extraction (§4.7, Open
// Question: empty-text-is-failure).
type SummaryProvider interface {
	Summarize(ctx context.Context, text string, maxWords int) (string, error)
}

const systemPrompt = "You are a concise technical summarizer. Summarize the given notes " +
	"in plain prose, at most the requested number of words, with no preamble and no " +
	"bullet points."

// AnthropicProvider summarizes via the Anthropic Messages API.
type AnthropicProvider struct {
	sdk   anthropic.Client
	model string
}

func NewAnthropicProvider(apiKey, baseURL, model string, httpClient *http.Client) *AnthropicProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []anthropicopt.RequestOption{
		anthropicopt.WithAPIKey(strings.TrimSpace(apiKey)),
		anthropicopt.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, anthropicopt.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &AnthropicProvider{sdk: anthropic.NewClient(opts...), model: model}
}

func (p *AnthropicProvider) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	prompt := summarizePrompt(text, maxWords)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	}
	resp, err := p.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", apperr.Wrap("summaryprovider: anthropic", apperr.ErrGenerationFailed)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// OpenAIProvider summarizes via the OpenAI chat completions API.
type OpenAIProvider struct {
	sdk   openai.Client
	model string
}

func NewOpenAIProvider(apiKey, baseURL, model string, httpClient *http.Client) *OpenAIProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []openaiopt.RequestOption{
		openaiopt.WithAPIKey(strings.TrimSpace(apiKey)),
		openaiopt.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, openaiopt.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIProvider{sdk: openai.NewClient(opts...), model: model}
}

func (p *OpenAIProvider) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	prompt := summarizePrompt(text, maxWords)
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	}
	resp, err := p.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", apperr.Wrap("summaryprovider: openai", apperr.ErrGenerationFailed)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func summarizePrompt(text string, maxWords int) string {
	var sb strings.Builder
	sb.WriteString("Summarize the following notes in at most ")
	sb.WriteString(strconv.Itoa(maxWords))
	sb.WriteString(" words:\n\n")
	sb.WriteString(text)
	return sb.String()
}
