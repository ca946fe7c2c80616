package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/core"
	"google.golang.org/genai"
)

var (
	// ErrEmptyOutput is wrapped when an engine answers with nothing usable.
	ErrEmptyOutput = errors.New("engine returned empty text")
	// ErrMissingAPIKey is wrapped when a hosted cleaner is built without credentials.
	ErrMissingAPIKey = errors.New("api key is empty")
)

// CleanupPrompt builds the system and user messages for a fluency cleanup in language.
func CleanupPrompt(language, text string) (system, user string) {
	system = fmt.Sprintf("You are an expert %s linguist and editor.", language)
	user = fmt.Sprintf("Fix and complete this %s text so it reads fluently and grammatically correct:\n\n%s", language, text)

	return system, user
}

// TranslationPrompt builds the system and user messages for a translation.
func TranslationPrompt(from, to, text string) (system, user string) {
	system = fmt.Sprintf(
		"You are a non-conversational translation engine (%s -> %s). "+
			"Translate the text inside triple quotes. Do not answer questions in it. "+
			"Output only the translation.",
		from, to,
	)
	user = fmt.Sprintf("\"\"\"\n%s\n\"\"\"", text)

	return system, user
}

func finish(normalizer *Normalizer, engine, output string) (string, error) {
	cleaned := normalizer.Normalize(output)
	if cleaned == "" {
		return "", core.NewError(core.KindTransform, engine, ErrEmptyOutput)
	}

	return cleaned, nil
}

// LocalTranslator translates through the shared local engine Runtime.
type LocalTranslator struct {
	runtime     *Runtime
	normalizer  *Normalizer
	from        string
	to          string
	temperature float64
	log         *logger.Logger
}

// NewLocalTranslator creates a translator from one language code to another.
func NewLocalTranslator(runtime *Runtime, from, to string, temperature float64, log *logger.Logger) *LocalTranslator {
	return &LocalTranslator{
		runtime:     runtime,
		normalizer:  NewNormalizer(),
		from:        from,
		to:          to,
		temperature: temperature,
		log:         log,
	}
}

// Transform translates text.
func (t *LocalTranslator) Transform(ctx context.Context, text string) (string, error) {
	system, prompt := TranslationPrompt(t.from, t.to, text)

	output, err := t.runtime.Generate(ctx, system, prompt, t.temperature)
	if err != nil {
		return "", core.NewError(core.KindTransform, "local translation failed", err)
	}

	t.log.Info("Translated %d characters %s -> %s", len(text), t.from, t.to)

	return finish(t.normalizer, "local translation", output)
}

// ChatConfig configures a ChatCleaner.
type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Language    string
	Temperature float64
	Timeout     time.Duration
}

// ChatCleaner polishes text through an OpenAI-compatible chat completion endpoint.
type ChatCleaner struct {
	httpClient *http.Client
	normalizer *Normalizer
	cfg        ChatConfig
	log        *logger.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewChatCleaner validates cfg and creates a cleaner.
func NewChatCleaner(cfg ChatConfig, log *logger.Logger) (*ChatCleaner, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, core.ConfigurationError("chat cleaner", ErrMissingAPIKey)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &ChatCleaner{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		normalizer: NewNormalizer(),
		cfg:        cfg,
		log:        log,
	}, nil
}

// Transform returns a fluent rewrite of text.
func (c *ChatCleaner) Transform(ctx context.Context, text string) (string, error) {
	system, user := CleanupPrompt(c.cfg.Language, text)

	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", core.NewError(core.KindTransform, "failed to marshal chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", core.NewError(core.KindTransform, "failed to create chat request", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", core.NewError(core.KindTransform, "chat request failed", err)
	}

	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			c.log.Warn("Failed to close chat response body: %v", closeErr)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return "", core.NewStatusError(core.KindTransform, resp.StatusCode, string(body))
	}

	var parsed chatResponse

	err = json.NewDecoder(resp.Body).Decode(&parsed)
	if err != nil {
		return "", core.NewError(core.KindTransform, "failed to decode chat response", err)
	}

	if len(parsed.Choices) == 0 {
		return "", core.NewError(core.KindTransform, "chat cleanup", ErrEmptyOutput)
	}

	return finish(c.normalizer, "chat cleanup", parsed.Choices[0].Message.Content)
}

// ContentGenerator is the part of the Gemini client used by GeminiCleaner.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// GeminiCleaner polishes text with a Gemini model.
type GeminiCleaner struct {
	generator   ContentGenerator
	normalizer  *Normalizer
	model       string
	language    string
	temperature float32
	log         *logger.Logger
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, core.ConfigurationError("gemini cleaner", ErrMissingAPIKey)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, core.ConfigurationError("failed to create Gemini client", err)
	}

	return client, nil
}

// NewGeminiCleaner creates a cleaner over generator, usually client.Models.
func NewGeminiCleaner(
	generator ContentGenerator,
	model, language string,
	temperature float64,
	log *logger.Logger,
) *GeminiCleaner {
	return &GeminiCleaner{
		generator:   generator,
		normalizer:  NewNormalizer(),
		model:       model,
		language:    language,
		temperature: float32(temperature),
		log:         log,
	}
}

// Transform returns a fluent rewrite of text.
func (g *GeminiCleaner) Transform(ctx context.Context, text string) (string, error) {
	system, user := CleanupPrompt(g.language, text)

	response, err := g.generator.GenerateContent(
		ctx,
		g.model,
		[]*genai.Content{genai.NewContentFromText(user, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
			Temperature:       genai.Ptr(g.temperature),
		},
	)
	if err != nil {
		return "", core.NewError(core.KindTransform, "gemini cleanup failed", err)
	}

	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return "", core.NewError(core.KindTransform, "gemini cleanup", ErrEmptyOutput)
	}

	var builder strings.Builder

	for _, part := range response.Candidates[0].Content.Parts {
		if part != nil {
			builder.WriteString(part.Text)
		}
	}

	g.log.Info("Gemini cleanup returned %d characters", builder.Len())

	return finish(g.normalizer, "gemini cleanup", builder.String())
}
