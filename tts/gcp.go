package tts

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	"github.com/mii443/ncb-tts-r2/audio"
	"github.com/mii443/ncb-tts-r2/ncberr"
)

const gcpSegmentBreak = `<break time="200ms"/>`

// GCPBackend synthesizes with Google Cloud Text-to-Speech.
// Authentication comes from GOOGLE_APPLICATION_CREDENTIALS or ADC.
type GCPBackend struct {
	client *texttospeech.Client
}

// NewGCPBackend creates the vendor-A backend.
func NewGCPBackend(ctx context.Context) (*GCPBackend, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP TTS client: %w", err)
	}
	return &GCPBackend{client: client}, nil
}

// Name identifies the backend.
func (b *GCPBackend) Name() string { return "gcp" }

// RenderInput wraps the segments in an SSML document with a short break
// between them. Each segment is escaped so user text cannot break the
// document or inject live markup.
func (b *GCPBackend) RenderInput(segments []string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = ncberr.EscapeSSML(s)
	}
	return "<speak>" + strings.Join(escaped, gcpSegmentBreak) + "</speak>"
}

// Synthesize performs the SynthesizeSpeech call and returns MP3 bytes.
func (b *GCPBackend) Synthesize(ctx context.Context, input string, req Request) ([]byte, audio.Format, error) {
	resp, err := b.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Ssml{Ssml: input},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: req.Voice.LanguageCode,
			Name:         req.Voice.Name,
			SsmlGender:   ssmlGender(req.Voice.SSMLGender),
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:  1.2,
			Pitch:         0.0,
		},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("gcp synthesize: %w", err)
	}
	return resp.AudioContent, audio.FormatMP3, nil
}

// ListVoiceStyles returns (display name, voice name) pairs for the
// configuration menu, filtered to the default language.
func (b *GCPBackend) ListVoiceStyles(ctx context.Context) ([][2]string, error) {
	resp, err := b.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{
		LanguageCode: DefaultVoice.LanguageCode,
	})
	if err != nil {
		return nil, fmt.Errorf("gcp list voices: %w", err)
	}

	styles := make([][2]string, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		display := fmt.Sprintf("%s (%s)", v.Name, strings.ToLower(v.SsmlGender.String()))
		styles = append(styles, [2]string{display, v.Name})
	}
	return styles, nil
}

func ssmlGender(gender string) texttospeechpb.SsmlVoiceGender {
	switch strings.ToLower(gender) {
	case "male":
		return texttospeechpb.SsmlVoiceGender_MALE
	case "female":
		return texttospeechpb.SsmlVoiceGender_FEMALE
	default:
		return texttospeechpb.SsmlVoiceGender_NEUTRAL
	}
}
