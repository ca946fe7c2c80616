// Package core defines the domain types and capability interfaces of the translation service.
package core

import (
	"context"
	"io"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, data io.Reader) error
	Bucket() string
}

// Recognizer turns a local audio file into text. Depending on the backend the text is
// either a transcript in the spoken language or already translated.
type Recognizer interface {
	Recognize(ctx context.Context, audioPath string) (RecognitionResult, error)
}

// Transformer refines or translates recognized text before synthesis.
type Transformer interface {
	Transform(ctx context.Context, text string) (string, error)
}

// Synthesizer writes speech for text to outputPath.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice VoiceConfig, outputPath string) error
}

// Publisher stores a synthesized file and returns its durable reference.
type Publisher interface {
	Publish(ctx context.Context, localPath, jobID, targetLanguage string) (string, error)
}

// RecordStore is the system-of-record for job state. Each call is one atomic update.
type RecordStore interface {
	UpdateStatus(ctx context.Context, jobID string, status JobStatus) error
	UpdateResult(ctx context.Context, jobID, translatedText, audioReference string, status JobStatus) error
}
