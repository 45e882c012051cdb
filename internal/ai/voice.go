package ai

import (
	"context"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

// Transcriber converts voice messages to text via Whisper so they flow
// through the same text pipeline afterwards.
type Transcriber struct {
	client *openai.Client
}

func NewTranscriber(apiKey string) *Transcriber {
	return &Transcriber{client: openai.NewClient(apiKey)}
}

// Transcribe reads OGG/Opus voice data and returns the transcript. The
// language hint matches the bot's primary audience.
func (t *Transcriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   audio,
		FilePath: filename,
		Language: "id",
	})
	if err != nil {
		return "", fmt.Errorf("voice transcription failed: %w", err)
	}
	return resp.Text, nil
}
