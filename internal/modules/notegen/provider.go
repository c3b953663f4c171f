package notegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	appcfg "github.com/studycompanion/core/internal/config"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"
)

// ErrNoProvider is returned when no enabled AI provider is configured.
var ErrNoProvider = errors.New("no enabled AI provider configured")

// providerGenerator adapts one configured LLM endpoint to TextGenerator.
type providerGenerator struct {
	provider  appcfg.AIProvider
	maxTokens int
}

// NewTextGenerator builds the TextGenerator for the configured note
// provider. OpenAI and Anthropic endpoints go through the unified
// language-model layer; compatible and OpenRouter endpoints speak the
// chat-completions wire format directly.
func NewTextGenerator(cfg appcfg.AIConfig) (TextGenerator, error) {
	provider := cfg.EnabledProvider()
	if provider == nil {
		return nil, ErrNoProvider
	}
	if strings.TrimSpace(provider.APIKey) == "" {
		return nil, fmt.Errorf("provider %q has an empty api key", provider.ID)
	}

	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 1200
	}
	return &providerGenerator{provider: *provider, maxTokens: maxTokens}, nil
}

func normalizeProviderType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "-")
	t = strings.ReplaceAll(t, " ", "")
	return t
}

func (p *providerGenerator) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	switch normalizeProviderType(p.provider.Type) {
	case "openai-compatible", "openaicompatible":
		return p.chatCompletions(ctx, defaultedEndpoint(p.provider.Endpoint, "https://api.openai.com"), systemPrompt, prompt)
	case "openrouter":
		return p.chatCompletions(ctx, defaultedEndpoint(p.provider.Endpoint, "https://openrouter.ai/api"), systemPrompt, prompt)
	default:
		return p.languageModel(ctx, systemPrompt, prompt)
	}
}

func (p *providerGenerator) languageModel(ctx context.Context, systemPrompt, prompt string) (string, error) {
	model, err := p.buildModel()
	if err != nil {
		return "", err
	}

	messages := make([]jetapi.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: systemPrompt})
	}
	messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)})

	resp, err := jetai.GenerateText(ctx, messages,
		jetai.WithModel(model),
		jetai.WithMaxOutputTokens(p.maxTokens),
	)
	if err != nil {
		return "", err
	}
	return textFromResponse(resp)
}

func (p *providerGenerator) buildModel() (jetapi.LanguageModel, error) {
	apiKey := strings.TrimSpace(p.provider.APIKey)
	modelID := strings.TrimSpace(p.provider.DefaultModel)
	endpoint := strings.TrimSpace(p.provider.Endpoint)

	if normalizeProviderType(p.provider.Type) == "anthropic" {
		if modelID == "" {
			modelID = "claude-haiku-4-5-20251001"
		}
		opts := []anthropicoption.RequestOption{
			anthropicoption.WithAPIKey(apiKey),
			anthropicoption.WithMaxRetries(0),
		}
		if endpoint != "" {
			opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
		}
		client := anthropicclient.NewClient(opts...)
		return jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client)), nil
	}

	if modelID == "" {
		modelID = "gpt-4o-mini"
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	}
	if normalized := openAIBaseURL(endpoint); normalized != "" {
		opts = append(opts, openaioption.WithBaseURL(normalized))
	}
	client := openaiclient.NewClient(opts...)
	return jetopenai.NewLanguageModel(modelID, jetopenai.WithClient(client)), nil
}

func textFromResponse(resp *jetapi.Response) (string, error) {
	if resp == nil {
		return "", errors.New("empty response from model")
	}
	var full strings.Builder
	for _, block := range resp.Content {
		textBlock, ok := block.(*jetapi.TextBlock)
		if !ok || textBlock.Text == "" {
			continue
		}
		full.WriteString(textBlock.Text)
	}
	text := full.String()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty response from model")
	}
	return text, nil
}

func (p *providerGenerator) chatCompletions(ctx context.Context, endpoint, systemPrompt, prompt string) (string, error) {
	model := strings.TrimSpace(p.provider.DefaultModel)
	if model == "" {
		model = "gpt-4o-mini"
	}

	messages := make([]map[string]string, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	body, _ := json.Marshal(map[string]interface{}{
		"model":      model,
		"messages":   messages,
		"max_tokens": p.maxTokens,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(p.provider.APIKey))
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("chat completions error: %s", strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", err
	}
	if result.Error != nil && strings.TrimSpace(result.Error.Message) != "" {
		return "", fmt.Errorf("chat completions error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("empty response from model")
	}
	return result.Choices[0].Message.Content, nil
}

// defaultedEndpoint strips a trailing /v1 so the chat-completions path
// can be appended uniformly.
func defaultedEndpoint(raw, fallback string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return fallback
	}
	base = strings.TrimRight(base, "/")
	return strings.TrimSuffix(base, "/v1")
}

func openAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}
	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}
