package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// ---------------------------------------------------------------------------
// OpenAI Text-to-Speech Service
// Alternative narration provider using the OpenAI speech endpoint.
// ---------------------------------------------------------------------------

type OpenAITTSService struct {
	client *openai.Client
}

var _ Synthesizer = (*OpenAITTSService)(nil)

func NewOpenAITTSService(apiKey string) *OpenAITTSService {
	return &OpenAITTSService{client: openai.NewClient(apiKey)}
}

// Synthesize converts one narration segment to MP3 at outPath.
func (s *OpenAITTSService) Synthesize(ctx context.Context, text, voiceID string, speed float64, outPath string) error {
	voice := openai.SpeechVoice(voiceID)
	if voiceID == "" {
		voice = openai.VoiceAlloy
	}
	if speed <= 0 {
		speed = 1.0
	}

	log.Printf("[OpenAI TTS] Generating speech (voice=%s, textLen=%d, speed=%.2f)", voice, len(text), speed)

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          speed,
	})
	if err != nil {
		return fmt.Errorf("OpenAI speech request failed: %w", err)
	}
	defer resp.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create audio file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, resp)
	if err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("OpenAI returned empty audio")
	}

	log.Printf("[OpenAI TTS] Speech generated (%d bytes) -> %s", n, outPath)
	return nil
}
