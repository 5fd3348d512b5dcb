// Package ncberr defines the error taxonomy shared across the bot and the
// input validation helpers that guard the synthesis pipeline.
package ncberr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match these with errors.Is.
var (
	// ErrCircuitOpen is returned when a backend's circuit breaker is open
	// and the call was rejected without touching the network.
	ErrCircuitOpen = errors.New("tts backend circuit open")

	// ErrEmptyVoiceChannel signals that a voice channel has no non-bot
	// occupants. It is a policy signal, not a transport failure.
	ErrEmptyVoiceChannel = errors.New("voice channel has no listeners")

	// ErrInstanceNotFound is returned when no TTS instance is registered
	// for a guild.
	ErrInstanceNotFound = errors.New("tts instance not found")

	// ErrAlreadyRunning is returned by setup when a guild already has an
	// active instance.
	ErrAlreadyRunning = errors.New("tts instance already running")

	// ErrProhibitedContent is returned for text containing constructs we
	// refuse to forward to a TTS vendor.
	ErrProhibitedContent = errors.New("text contains prohibited content")
)

// InvalidPatternError reports a dictionary regex that failed validation or
// compilation. The rule is skipped, never fatal to normalization.
type InvalidPatternError struct {
	Pattern string
	Reason  string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid regex pattern %q: %s", e.Pattern, e.Reason)
}

// SynthesisError reports a backend synthesis failure after the retry budget
// was exhausted.
type SynthesisError struct {
	Backend string
	Err     error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("%s synthesis failed: %v", e.Backend, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// VoiceJoinError reports a failure to join a guild voice channel.
type VoiceJoinError struct {
	GuildID   string
	ChannelID string
	Err       error
}

func (e *VoiceJoinError) Error() string {
	return fmt.Sprintf("failed to join voice channel %s in guild %s: %v", e.ChannelID, e.GuildID, e.Err)
}

func (e *VoiceJoinError) Unwrap() error { return e.Err }

// TextTooLongError reports message text over the synthesis ceiling.
type TextTooLongError struct {
	Max int
}

func (e *TextTooLongError) Error() string {
	return fmt.Sprintf("text too long (max %d characters)", e.Max)
}
