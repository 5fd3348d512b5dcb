// Package tts routes synthesis requests to the configured TTS backend,
// caching decoded audio and guarding each backend with a circuit breaker
// and retry policy.
package tts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mii443/ncb-tts-r2/audio"
)

// Engine selects which TTS vendor handles a request.
type Engine string

const (
	EngineGCP      Engine = "GCP"
	EngineVoicevox Engine = "VOICEVOX"
)

// VoiceSelectionParams are the vendor-A voice parameters persisted in a
// user config.
type VoiceSelectionParams struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
	SSMLGender   string `json:"ssmlGender"`
}

// DefaultVoice is the vendor-A voice assigned to new user configs.
var DefaultVoice = VoiceSelectionParams{
	LanguageCode: "ja-JP",
	Name:         "ja-JP-Wavenet-B",
	SSMLGender:   "neutral",
}

// DefaultVoicevoxSpeaker is the vendor-B speaker assigned to new user
// configs.
const DefaultVoicevoxSpeaker int64 = 1

// Request is one unit of synthesis. Segments are joined with a short
// pause by each backend in its own markup.
type Request struct {
	Engine          Engine
	Segments        []string
	Voice           VoiceSelectionParams
	VoicevoxSpeaker int64
}

// VoiceKey renders the request's voice parameters for cache keying.
func (r Request) VoiceKey() string {
	switch r.Engine {
	case EngineVoicevox:
		return fmt.Sprintf("speaker=%d", r.VoicevoxSpeaker)
	default:
		return strings.Join([]string{r.Voice.LanguageCode, r.Voice.Name, r.Voice.SSMLGender}, "|")
	}
}

// Backend is the capability a TTS vendor integration provides.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// RenderInput joins request segments into the backend's wire input
	// (SSML for vendor A, plain text for vendor B). The rendered input is
	// part of the cache key so SSML and literal text never collide.
	RenderInput(segments []string) string

	// Synthesize turns rendered input into raw audio bytes.
	Synthesize(ctx context.Context, input string, req Request) ([]byte, audio.Format, error)
}
