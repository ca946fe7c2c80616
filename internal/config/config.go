// Package config provides the configuration structure for the translation-service.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/core"
)

// Backend names accepted in the configuration file.
const (
	BackendSupabase    = "supabase"
	BackendMongo       = "mongo"
	BackendObjectStore = "objectstore"

	RecognizerWhisperTranslate  = "whisper_translate"
	RecognizerWhisperTranscribe = "whisper_transcribe"
	RecognizerGoogle            = "google"

	TransformerNone   = "none"
	TransformerLocal  = "local"
	TransformerChat   = "chat"
	TransformerGemini = "gemini"

	SynthesizerGroq       = "groq"
	SynthesizerElevenLabs = "elevenlabs"
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	JobSubjectPrefix       string `toml:"job_subject_prefix"`
	QueueGroup             string `toml:"queue_group"`
	StatusSubjectPrefix    string `toml:"status_subject_prefix"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// SupabaseConfig holds the non-secret Supabase settings.
type SupabaseConfig struct {
	StorageBucket string `toml:"storage_bucket"`
	MessagesTable string `toml:"messages_table"`
}

// RecordsConfig selects and configures the system-of-record.
type RecordsConfig struct {
	Backend              string `toml:"backend"`
	MongoURI             string `toml:"mongo_uri"`
	MongoDatabase        string `toml:"mongo_database"`
	MongoCollection      string `toml:"mongo_collection"`
	StatusTimeoutSeconds int    `toml:"status_timeout_seconds"`
	ResultTimeoutSeconds int    `toml:"result_timeout_seconds"`
}

// PublishConfig selects where synthesized audio is stored.
type PublishConfig struct {
	Backend        string `toml:"backend"`
	KeyPrefix      string `toml:"key_prefix"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// GroqConfig holds the OpenAI-compatible endpoint used for Whisper, chat and speech.
type GroqConfig struct {
	BaseURL        string `toml:"base_url"`
	WhisperModel   string `toml:"whisper_model"`
	ChatModel      string `toml:"chat_model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// DirectionConfig wires the backends of one direction.
type DirectionConfig struct {
	Recognizer      string           `toml:"recognizer"`
	LanguageHint    string           `toml:"language_hint"`
	Transformer     string           `toml:"transformer"`
	Synthesizer     string           `toml:"synthesizer"`
	Voice           core.VoiceConfig `toml:"voice"`
	CleanupLanguage string           `toml:"cleanup_language"`
	TranslateFrom   string           `toml:"translate_from"`
	TranslateTo     string           `toml:"translate_to"`
}

// PipelineConfig holds run-wide settings and the two directions.
type PipelineConfig struct {
	Forward             DirectionConfig `toml:"forward"`
	Backward            DirectionConfig `toml:"backward"`
	MaxConcurrentJobs   int             `toml:"max_concurrent_jobs"`
	JobTimeoutSeconds   int             `toml:"job_timeout_seconds"`
	FetchTimeoutSeconds int             `toml:"fetch_timeout_seconds"`
	TempDir             string          `toml:"temp_dir"`
}

// TransformConfig holds the text transform engines.
type TransformConfig struct {
	LocalURL       string  `toml:"local_url"`
	LocalModel     string  `toml:"local_model"`
	GeminiModel    string  `toml:"gemini_model"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// ElevenLabsConfig holds the ElevenLabs synthesis backend settings.
type ElevenLabsConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// GoogleConfig holds the Cloud Speech recognizer settings.
type GoogleConfig struct {
	Encoding        string `toml:"encoding"`
	SampleRateHertz int    `toml:"sample_rate_hertz"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS       NATSConfig       `toml:"nats"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Records    RecordsConfig    `toml:"records"`
	Publish    PublishConfig    `toml:"publish"`
	Groq       GroqConfig       `toml:"groq"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Transform  TransformConfig  `toml:"transform"`
	ElevenLabs ElevenLabsConfig `toml:"elevenlabs"`
	Google     GoogleConfig     `toml:"google"`
	Paths      PathsConfig      `toml:"paths"`
}

// Load loads the configuration for the translation-service and fills in defaults.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// Direction returns the settings of direction.
func (c *Config) Direction(direction core.Direction) DirectionConfig {
	if direction == core.DirectionBackward {
		return c.Pipeline.Backward
	}

	return c.Pipeline.Forward
}
