package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidJob indicates that a job descriptor is missing a required field.
var ErrInvalidJob = errors.New("invalid job descriptor")

// ErrUnknownDirection indicates that a direction name is not recognized.
var ErrUnknownDirection = errors.New("unknown direction")

// Direction selects which language-pair pipeline a job runs.
type Direction string

const (
	// DirectionForward translates while transcribing (student to mentor).
	DirectionForward Direction = "forward"
	// DirectionBackward transcribes in place, then translates the text (mentor to student).
	DirectionBackward Direction = "backward"
)

// ParseDirection accepts the canonical names and the legacy "stm"/"mts" aliases.
func ParseDirection(name string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case string(DirectionForward), "stm":
		return DirectionForward, nil
	case string(DirectionBackward), "mts":
		return DirectionBackward, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDirection, name)
	}
}

// JobStatus is the externally visible state of a job in the system-of-record.
type JobStatus string

const (
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is expected.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobDescriptor identifies one translation request.
type JobDescriptor struct {
	JobID          string `json:"messageId"`
	AudioReference string `json:"audioUrl"`
	SourceLanguage string `json:"sourceLang"`
	TargetLanguage string `json:"targetLang"`
}

// Validate checks that every required field is present.
func (j JobDescriptor) Validate() error {
	missing := make([]string, 0, 4)

	if strings.TrimSpace(j.JobID) == "" {
		missing = append(missing, "messageId")
	}

	if strings.TrimSpace(j.AudioReference) == "" {
		missing = append(missing, "audioUrl")
	}

	if strings.TrimSpace(j.SourceLanguage) == "" {
		missing = append(missing, "sourceLang")
	}

	if strings.TrimSpace(j.TargetLanguage) == "" {
		missing = append(missing, "targetLang")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidJob, strings.Join(missing, ", "))
	}

	return nil
}

// RecognitionResult is the output of the recognition stage. Text may be empty when no
// speech was detected.
type RecognitionResult struct {
	RawPayload json.RawMessage
	Text       string
}

// AudioFormatWAV is the only encoding this service produces.
const AudioFormatWAV = "wav"

// ContentTypeWAV is the content type of every synthesized file.
const ContentTypeWAV = "audio/wav"

// VoiceConfig selects the synthesis backend model and voice profile.
type VoiceConfig struct {
	Model  string `toml:"model"`
	Voice  string `toml:"voice"`
	Format string `toml:"format"`
}

// Result is returned to the caller of a successful run.
type Result struct {
	JobID                string `json:"messageId"`
	TranslatedText       string `json:"text_translated"`
	OutputAudioReference string `json:"translated_audio_url"`
}
