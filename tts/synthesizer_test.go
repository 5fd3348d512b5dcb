package tts

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mii443/ncb-tts-r2/audio"
	"github.com/mii443/ncb-tts-r2/log"
	"github.com/mii443/ncb-tts-r2/ncberr"
)

// wavBytes builds a minimal 16-bit mono 48kHz WAV clip.
func wavBytes(samples []int16) []byte {
	dataLen := len(samples) * 2
	buf := make([]byte, 44+dataLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], audio.SampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], audio.SampleRate*2)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(s))
	}
	return buf
}

// stubBackend counts network invocations and can be scripted to fail.
type stubBackend struct {
	name     string
	calls    int
	failures int // fail this many calls before succeeding
	err      error
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) RenderInput(segments []string) string {
	out := ""
	for i, s := range segments {
		if i > 0 {
			out += "|"
		}
		out += s
	}
	return out
}

func (b *stubBackend) Synthesize(ctx context.Context, input string, req Request) ([]byte, audio.Format, error) {
	b.calls++
	if b.calls <= b.failures {
		return nil, 0, b.err
	}
	return wavBytes([]int16{1, 2, 3, 4}), audio.FormatWAV, nil
}

func newTestSynthesizer(t *testing.T, backend *stubBackend) *Synthesizer {
	t.Helper()
	s, err := NewSynthesizer(map[Engine]Backend{EngineVoicevox: backend}, SynthesizerOptions{
		CacheSize:        8,
		MaxAttempts:      3,
		RetryDelay:       time.Millisecond,
		AttemptTimeout:   time.Second,
		BreakerThreshold: 5,
		BreakerTimeout:   time.Minute,
	}, log.New(nil, ""))
	require.NoError(t, err)
	return s
}

func voicevoxRequest(text string) Request {
	return Request{Engine: EngineVoicevox, Segments: []string{text}, VoicevoxSpeaker: 1}
}

func TestSynthesize_CacheHitSkipsBackend(t *testing.T) {
	backend := &stubBackend{name: "stub"}
	s := newTestSynthesizer(t, backend)

	first, err := s.Synthesize(context.Background(), voicevoxRequest("hello"))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, backend.calls)

	second, err := s.Synthesize(context.Background(), voicevoxRequest("hello"))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 1, backend.calls, "identical request must not hit the backend again")
	assert.NotSame(t, first, second, "each playback gets an independent handle")
}

func TestSynthesize_DistinctVoiceParamsMiss(t *testing.T) {
	backend := &stubBackend{name: "stub"}
	s := newTestSynthesizer(t, backend)

	req := voicevoxRequest("hello")
	_, err := s.Synthesize(context.Background(), req)
	require.NoError(t, err)

	req.VoicevoxSpeaker = 2
	_, err = s.Synthesize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls)
}

func TestSynthesize_RetriesThenSucceeds(t *testing.T) {
	backend := &stubBackend{name: "stub", failures: 2, err: errors.New("flaky")}
	s := newTestSynthesizer(t, backend)

	h, err := s.Synthesize(context.Background(), voicevoxRequest("hello"))
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.Equal(t, 3, backend.calls)
}

func TestSynthesize_ExhaustedRetriesReturnTypedError(t *testing.T) {
	backend := &stubBackend{name: "stub", failures: 100, err: errors.New("down")}
	s := newTestSynthesizer(t, backend)

	_, err := s.Synthesize(context.Background(), voicevoxRequest("hello"))
	var serr *ncberr.SynthesisError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "stub", serr.Backend)
	assert.Equal(t, 3, backend.calls)
	assert.Equal(t, 0, s.CacheLen(), "failures are never cached")
}

func TestSynthesize_BreakerOpensAndFailsFast(t *testing.T) {
	backend := &stubBackend{name: "stub", failures: 100, err: errors.New("down")}
	s := newTestSynthesizer(t, backend)

	// Two exhausted requests record 6 consecutive failures, past the
	// threshold of 5.
	_, _ = s.Synthesize(context.Background(), voicevoxRequest("a"))
	_, _ = s.Synthesize(context.Background(), voicevoxRequest("b"))
	callsBefore := backend.calls

	_, err := s.Synthesize(context.Background(), voicevoxRequest("c"))
	assert.ErrorIs(t, err, ncberr.ErrCircuitOpen)
	assert.Equal(t, callsBefore, backend.calls, "open breaker must fail fast")
}

func TestGCPRenderInputEscapesUserText(t *testing.T) {
	b := &GCPBackend{}

	got := b.RenderInput([]string{"tom & jerry: 5 < 3", "next"})
	assert.Equal(t, `<speak>tom &amp; jerry: 5 &lt; 3<break time="200ms"/>next</speak>`, got)

	// Markup in a message is read as text, never executed.
	got = b.RenderInput([]string{`<break time="10000ms"/>`})
	assert.Equal(t, `<speak>&lt;break time=&quot;10000ms&quot;/&gt;</speak>`, got)
}

func TestSynthesize_UnknownEngine(t *testing.T) {
	s := newTestSynthesizer(t, &stubBackend{name: "stub"})
	_, err := s.Synthesize(context.Background(), Request{Engine: EngineGCP})
	assert.Error(t, err)
}
