package media

import (
	"context"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
)

// MaxVoiceSeconds is the longest accepted voice clip.
const MaxVoiceSeconds = 60.0

var voiceMimes = map[string]string{
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
	"audio/mp4":   "mp4",
	"audio/m4a":   "m4a",
	"audio/x-m4a": "m4a",
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/wave":  "wav",
}

// VoiceExt returns the file extension for an accepted voice mime type.
func VoiceExt(mime string) (string, bool) {
	m := strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	ext, ok := voiceMimes[m]
	return ext, ok
}

// ValidateVoice checks format and duration. max defaults to MaxVoiceSeconds.
func ValidateVoice(mime string, durationSec, max float64, size int64) error {
	if max <= 0 {
		max = MaxVoiceSeconds
	}
	if size <= 0 {
		return apperr.Invalidf("voice note is empty")
	}
	if _, ok := VoiceExt(mime); !ok {
		return apperr.Invalidf("voice note must be mpeg, mp4, m4a or wav")
	}
	if durationSec <= 0 {
		return apperr.Invalidf("voice note duration is required")
	}
	if durationSec > max {
		return apperr.Invalidf("voice note exceeds %.0f seconds", max)
	}
	return nil
}

// Transcriber turns a voice clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// OpenAITranscriber calls the Whisper endpoint of an OpenAI-compatible API.
type OpenAITranscriber struct {
	Client *openai.Client
	Model  string
}

// NewOpenAITranscriber returns a transcriber for apiKey. A non-empty
// baseURL targets a compatible server.
func NewOpenAITranscriber(apiKey, baseURL string) *OpenAITranscriber {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAITranscriber{Client: openai.NewClientWithConfig(cfg), Model: openai.Whisper1}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	resp, err := t.Client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.Model,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.Unavailable, "transcription failed", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
