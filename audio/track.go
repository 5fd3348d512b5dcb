// Package audio holds decoded PCM tracks shared by the synthesis cache
// and the voice playback queue.
package audio

import (
	"fmt"
)

const (
	SampleRate = 48000 // Discord voice sample rate
	Channels   = 2     // stereo
	FrameSize  = 960   // 20ms at 48kHz
	FrameBytes = FrameSize * Channels * 2
)

// Track is an immutable decoded audio clip: 48kHz 16-bit stereo PCM.
// Tracks live in the synthesis cache and are shared across guilds, so
// playback state never lives here.
type Track struct {
	pcm []int16
}

// NewTrack wraps interleaved stereo PCM at SampleRate.
func NewTrack(pcm []int16) *Track {
	return &Track{pcm: pcm}
}

// Len returns the total number of samples (all channels).
func (t *Track) Len() int {
	return len(t.pcm)
}

// NewHandle returns an independent playback cursor over the track.
// Handles from the same track can play concurrently without interfering.
func (t *Track) NewHandle() *Handle {
	return &Handle{track: t}
}

// Handle is a seekable read cursor over a shared Track.
type Handle struct {
	track *Track
	pos   int
}

// NextFrame returns the next 20ms frame of interleaved samples, padding
// the final frame with silence. ok is false once the track is exhausted.
func (h *Handle) NextFrame() (frame []int16, ok bool) {
	if h.pos >= len(h.track.pcm) {
		return nil, false
	}

	want := FrameSize * Channels
	frame = make([]int16, want)
	n := copy(frame, h.track.pcm[h.pos:])
	h.pos += n
	return frame, true
}

// Rewind moves the cursor back to the start of the track.
func (h *Handle) Rewind() {
	h.pos = 0
}

// String describes the handle for logs.
func (h *Handle) String() string {
	return fmt.Sprintf("audio.Handle{%d/%d}", h.pos, len(h.track.pcm))
}
