package media

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
	"github.com/tbourn/go-dating-realtime/internal/domain"
)

// Service validates uploads and writes them to Store. Each upload gets a
// fresh key, so concurrent uploads never overwrite each other.
type Service struct {
	Store           Store
	Transcriber     Transcriber // nil disables speech-to-text
	MaxPhotoBytes   int64
	MaxVoiceSeconds float64
	Log             zerolog.Logger
}

// UploadPhoto processes and stores a photo under prefix.
func (s *Service) UploadPhoto(ctx context.Context, prefix string, data []byte) (domain.Media, error) {
	p, err := ProcessPhoto(data, s.MaxPhotoBytes)
	if err != nil {
		return domain.Media{}, err
	}
	id := uuid.NewString()
	key := fmt.Sprintf("%s/%s.%s", prefix, id, p.Ext)
	thumbKey := fmt.Sprintf("%s/%s_thumb.%s", prefix, id, p.Ext)

	url, err := s.Store.Put(ctx, key, p.Mime, bytes.NewReader(p.Full), int64(len(p.Full)))
	if err != nil {
		return domain.Media{}, apperr.Wrap(apperr.Unavailable, "media upload failed", err)
	}
	thumbURL, err := s.Store.Put(ctx, thumbKey, p.Mime, bytes.NewReader(p.Thumbnail), int64(len(p.Thumbnail)))
	if err != nil {
		s.deleteKey(ctx, key)
		return domain.Media{}, apperr.Wrap(apperr.Unavailable, "media upload failed", err)
	}
	return domain.Media{
		URL:          url,
		ThumbnailURL: thumbURL,
		Key:          key,
		ThumbnailKey: thumbKey,
		Size:         int64(len(p.Full)),
		Mime:         p.Mime,
		Width:        p.Width,
		Height:       p.Height,
	}, nil
}

// UploadVoice validates and stores a voice clip. When a Transcriber is
// configured the transcript is returned; transcription failures only lose
// the transcript.
func (s *Service) UploadVoice(ctx context.Context, prefix, mime string, data []byte, durationSec float64) (domain.Media, string, error) {
	if err := ValidateVoice(mime, durationSec, s.MaxVoiceSeconds, int64(len(data))); err != nil {
		return domain.Media{}, "", err
	}
	ext, _ := VoiceExt(mime)
	key := fmt.Sprintf("%s/%s.%s", prefix, uuid.NewString(), ext)
	url, err := s.Store.Put(ctx, key, mime, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.Media{}, "", apperr.Wrap(apperr.Unavailable, "media upload failed", err)
	}
	d := durationSec
	m := domain.Media{URL: url, Key: key, DurationSec: &d, Size: int64(len(data)), Mime: mime}

	var transcript string
	if s.Transcriber != nil {
		transcript, err = s.Transcriber.Transcribe(ctx, "voice."+ext, bytes.NewReader(data))
		if err != nil {
			s.Log.Warn().Err(err).Str("media.key", key).Msg("transcription failed")
			transcript = ""
		}
	}
	return m, transcript, nil
}

// Release deletes the blobs of m. Failures are logged.
func (s *Service) Release(ctx context.Context, m domain.Media) {
	if m.Key != "" {
		s.deleteKey(ctx, m.Key)
	}
	if m.ThumbnailKey != "" {
		s.deleteKey(ctx, m.ThumbnailKey)
	}
}

func (s *Service) deleteKey(ctx context.Context, key string) {
	if err := s.Store.Delete(ctx, key); err != nil {
		s.Log.Warn().Err(err).Str("media.key", key).Msg("release media")
	}
}
