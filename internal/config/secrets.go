package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/book-expert/translation-service/internal/core"
	"github.com/joho/godotenv"
)

// Environment variables holding secrets. Secrets never live in the TOML file.
const (
	EnvGroqAPIKey         = "GROQ_API_KEY"
	EnvSupabaseURL        = "SUPABASE_URL"
	EnvSupabaseServiceKey = "SUPABASE_SERVICE_ROLE_KEY"
	EnvGeminiAPIKey       = "GEMINI_API_KEY"
	EnvElevenLabsAPIKey   = "ELEVEN_LABS_API_KEY"
	EnvMongoURI           = "MONGODB_URI"
)

// DefaultEnvFile is loaded into the environment when present.
const DefaultEnvFile = ".env.local"

// ErrMissingSecret is wrapped by the configuration error returned from Validate.
var ErrMissingSecret = errors.New("missing required secret")

// Secrets holds credentials read from the environment.
type Secrets struct {
	GroqAPIKey         string
	SupabaseURL        string
	SupabaseServiceKey string
	GeminiAPIKey       string
	ElevenLabsAPIKey   string
	MongoURI           string
}

// LoadSecrets loads envFile (if it exists) and reads every secret from the environment.
// Variables already set in the environment win over the file.
func LoadSecrets(envFile string) (Secrets, error) {
	if envFile != "" {
		err := godotenv.Load(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, fmt.Errorf("failed to load env file '%s': %w", envFile, err)
		}
	}

	return Secrets{
		GroqAPIKey:         strings.TrimSpace(os.Getenv(EnvGroqAPIKey)),
		SupabaseURL:        strings.TrimRight(strings.TrimSpace(os.Getenv(EnvSupabaseURL)), "/"),
		SupabaseServiceKey: strings.TrimSpace(os.Getenv(EnvSupabaseServiceKey)),
		GeminiAPIKey:       strings.TrimSpace(os.Getenv(EnvGeminiAPIKey)),
		ElevenLabsAPIKey:   strings.TrimSpace(os.Getenv(EnvElevenLabsAPIKey)),
		MongoURI:           strings.TrimSpace(os.Getenv(EnvMongoURI)),
	}, nil
}

// Validate checks that every backend selected in cfg has its secret. The service must
// refuse to start when this fails.
func (s Secrets) Validate(cfg *Config) error {
	missing := make(map[string]struct{})

	require := func(name, value string) {
		if value == "" {
			missing[name] = struct{}{}
		}
	}

	for _, direction := range []DirectionConfig{cfg.Pipeline.Forward, cfg.Pipeline.Backward} {
		switch direction.Recognizer {
		case RecognizerWhisperTranslate, RecognizerWhisperTranscribe:
			require(EnvGroqAPIKey, s.GroqAPIKey)
		}

		switch direction.Transformer {
		case TransformerChat:
			require(EnvGroqAPIKey, s.GroqAPIKey)
		case TransformerGemini:
			require(EnvGeminiAPIKey, s.GeminiAPIKey)
		}

		switch direction.Synthesizer {
		case SynthesizerGroq:
			require(EnvGroqAPIKey, s.GroqAPIKey)
		case SynthesizerElevenLabs:
			require(EnvElevenLabsAPIKey, s.ElevenLabsAPIKey)
		}
	}

	if cfg.Records.Backend == BackendSupabase || cfg.Publish.Backend == BackendSupabase {
		require(EnvSupabaseURL, s.SupabaseURL)
		require(EnvSupabaseServiceKey, s.SupabaseServiceKey)
	}

	if cfg.Records.Backend == BackendMongo && cfg.Records.MongoURI == "" {
		require(EnvMongoURI, s.MongoURI)
	}

	if len(missing) == 0 {
		return nil
	}

	names := make([]string, 0, len(missing))
	for _, name := range orderedSecretNames {
		if _, ok := missing[name]; ok {
			names = append(names, name)
		}
	}

	return core.ConfigurationError(
		"secrets not configured: "+strings.Join(names, ", "),
		ErrMissingSecret,
	)
}

var orderedSecretNames = []string{
	EnvGroqAPIKey,
	EnvSupabaseURL,
	EnvSupabaseServiceKey,
	EnvGeminiAPIKey,
	EnvElevenLabsAPIKey,
	EnvMongoURI,
}
