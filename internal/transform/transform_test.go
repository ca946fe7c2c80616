package transform_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/core"
	"github.com/book-expert/translation-service/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "transform-test.log")
	require.NoError(t, err)

	return testLogger
}

type fakeEngine struct {
	tagsCalls      atomic.Int32
	pullCalls      atomic.Int32
	generateCalls  atomic.Int32
	tagsShouldFail atomic.Bool
	modelPresent   bool
	response       string
}

func (f *fakeEngine) handler(t *testing.T) http.Handler {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		f.tagsCalls.Add(1)
		time.Sleep(20 * time.Millisecond)

		if f.tagsShouldFail.Load() {
			http.Error(w, "engine starting", http.StatusServiceUnavailable)

			return
		}

		models := `{"models":[]}`
		if f.modelPresent {
			models = `{"models":[{"name":"llama3.1:latest"}]}`
		}

		_, _ = w.Write([]byte(models))
	})

	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, _ *http.Request) {
		f.pullCalls.Add(1)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})

	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		f.generateCalls.Add(1)

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		assert.Equal(t, "llama3.1", body["model"])
		assert.Equal(t, false, body["stream"])

		payload, _ := json.Marshal(map[string]string{"response": f.response})
		_, _ = w.Write(payload)
	})

	return mux
}

func TestLocalTranslator_ConcurrentFirstUseLoadsOnce(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{modelPresent: false, response: "```text\n\"آپ کیسے ہیں؟\"\n```"}
	server := httptest.NewServer(engine.handler(t))
	defer server.Close()

	testLogger := newTestLogger(t)
	runtime := transform.NewRuntime(transform.RuntimeConfig{
		BaseURL: server.URL,
		Model:   "llama3.1",
		Timeout: 5 * time.Second,
	}, testLogger)
	defer runtime.Close()

	translator := transform.NewLocalTranslator(runtime, "en", "ur", 0.4, testLogger)

	const callers = 8

	var wg sync.WaitGroup

	results := make([]string, callers)
	errs := make([]error, callers)

	for i := range callers {
		wg.Add(1)

		go func(index int) {
			defer wg.Done()

			results[index], errs[index] = translator.Transform(context.Background(), "How are you?")
		}(i)
	}

	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "آپ کیسے ہیں؟", results[i])
	}

	assert.Equal(t, int32(1), engine.tagsCalls.Load())
	assert.Equal(t, int32(1), engine.pullCalls.Load())
	assert.Equal(t, int32(callers), engine.generateCalls.Load())
	assert.Equal(t, 1, runtime.Loads())
}

func TestRuntime_FailedInitIsRetried(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{modelPresent: true, response: "ok"}
	engine.tagsShouldFail.Store(true)

	server := httptest.NewServer(engine.handler(t))
	defer server.Close()

	runtime := transform.NewRuntime(transform.RuntimeConfig{
		BaseURL: server.URL,
		Model:   "llama3.1",
		Timeout: 5 * time.Second,
	}, newTestLogger(t))
	defer runtime.Close()

	err := runtime.Init(context.Background())
	require.ErrorIs(t, err, transform.ErrEngineStatus)
	assert.Equal(t, 0, runtime.Loads())

	engine.tagsShouldFail.Store(false)

	require.NoError(t, runtime.Init(context.Background()))
	require.NoError(t, runtime.Init(context.Background()))
	assert.Equal(t, 1, runtime.Loads())
	assert.Equal(t, int32(0), engine.pullCalls.Load())
}

func TestRuntime_GenerateAfterClose(t *testing.T) {
	t.Parallel()

	runtime := transform.NewRuntime(transform.RuntimeConfig{BaseURL: "http://127.0.0.1:1", Model: "m"}, newTestLogger(t))
	runtime.Close()

	_, err := runtime.Generate(context.Background(), "", "hi", 0.1)
	require.ErrorIs(t, err, transform.ErrRuntimeClosed)
}

func TestLocalTranslator_EmptyOutput(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{modelPresent: true, response: "  ``` ```  "}
	server := httptest.NewServer(engine.handler(t))
	defer server.Close()

	testLogger := newTestLogger(t)
	runtime := transform.NewRuntime(transform.RuntimeConfig{BaseURL: server.URL, Model: "llama3.1"}, testLogger)
	defer runtime.Close()

	_, err := transform.NewLocalTranslator(runtime, "en", "ur", 0.4, testLogger).Transform(context.Background(), "hi")
	require.ErrorIs(t, err, transform.ErrEmptyOutput)
	assert.Equal(t, core.KindTransform, core.KindOf(err))
}

func TestChatCleaner_SendsPromptTemplate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk_test", r.Header.Get("Authorization"))

		var body struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama-3.1-8b-instant", body.Model)
		assert.InEpsilon(t, 0.4, body.Temperature, 0.001)

		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "You are an expert Urdu linguist and editor.", body.Messages[0].Content)
			assert.Equal(t,
				"Fix and complete this Urdu text so it reads fluently and grammatically correct:\n\nمیں اسکول",
				body.Messages[1].Content)
		}

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  میں اسکول گیا۔\n"}}]}`))
	}))
	defer server.Close()

	cleaner, err := transform.NewChatCleaner(transform.ChatConfig{
		BaseURL:     server.URL,
		APIKey:      "gsk_test",
		Model:       "llama-3.1-8b-instant",
		Language:    "Urdu",
		Temperature: 0.4,
		Timeout:     5 * time.Second,
	}, newTestLogger(t))
	require.NoError(t, err)

	cleaned, err := cleaner.Transform(context.Background(), "میں اسکول")
	require.NoError(t, err)
	assert.Equal(t, "میں اسکول گیا۔", cleaned)
}

func TestChatCleaner_StatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	cleaner, err := transform.NewChatCleaner(transform.ChatConfig{BaseURL: server.URL, APIKey: "k"}, newTestLogger(t))
	require.NoError(t, err)

	_, err = cleaner.Transform(context.Background(), "text")

	var stageErr *core.Error
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, core.KindTransform, stageErr.Kind)
	assert.Equal(t, http.StatusUnauthorized, stageErr.StatusCode)

	_, err = transform.NewChatCleaner(transform.ChatConfig{}, newTestLogger(t))
	require.ErrorIs(t, err, transform.ErrMissingAPIKey)
}

type fakeGenerator struct {
	model      string
	config     *genai.GenerateContentConfig
	contents   []*genai.Content
	response   *genai.GenerateContentResponse
	shouldFail bool
}

func (f *fakeGenerator) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config

	if f.shouldFail {
		return nil, errors.New("quota exceeded")
	}

	return f.response, nil
}

func TestGeminiCleaner(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{
		response: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{Text: "Well "}, {Text: "done."}}},
			}},
		},
	}

	cleaner := transform.NewGeminiCleaner(generator, "gemini-2.0-flash", "Urdu", 0.4, newTestLogger(t))

	cleaned, err := cleaner.Transform(context.Background(), "well done")
	require.NoError(t, err)
	assert.Equal(t, "Well done.", cleaned)
	assert.Equal(t, "gemini-2.0-flash", generator.model)
	require.NotNil(t, generator.config.Temperature)
	assert.InEpsilon(t, float32(0.4), *generator.config.Temperature, 0.001)
	require.Len(t, generator.contents, 1)
	assert.Contains(t, generator.contents[0].Parts[0].Text, "Fix and complete this Urdu text")

	generator.shouldFail = true
	_, err = cleaner.Transform(context.Background(), "well done")
	assert.Equal(t, core.KindTransform, core.KindOf(err))

	generator.shouldFail = false
	generator.response = &genai.GenerateContentResponse{}
	_, err = cleaner.Transform(context.Background(), "well done")
	require.ErrorIs(t, err, transform.ErrEmptyOutput)
}

func TestNormalizer(t *testing.T) {
	t.Parallel()

	normalizer := transform.NewNormalizer()

	assert.Equal(t, "hello world", normalizer.Normalize("```text\nhello\n\n  world\n```"))
	assert.Equal(t, "quoted", normalizer.Normalize(`"quoted"`))
	assert.Equal(t, "inside", normalizer.Normalize("\"\"\"inside\"\"\""))
	assert.Equal(t, "items, one, two", normalizer.Normalize("items\n- one\n- two"))
	assert.Empty(t, normalizer.Normalize("   "))
}
