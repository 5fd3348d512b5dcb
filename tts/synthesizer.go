package tts

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mii443/ncb-tts-r2/audio"
	"github.com/mii443/ncb-tts-r2/log"
	"github.com/mii443/ncb-tts-r2/ncberr"
	"github.com/mii443/ncb-tts-r2/resilience"
)

// cacheKey deduplicates synthesis requests. The rendered input is part of
// the key, so SSML-wrapped and literal text never collide.
type cacheKey struct {
	engine Engine
	input  string
	voice  string
}

type backendEntry struct {
	backend Backend
	breaker *resilience.CircuitBreaker
}

// SynthesizerOptions carries the tunables for the synthesis pipeline.
type SynthesizerOptions struct {
	CacheSize        int
	MaxAttempts      int
	RetryDelay       time.Duration
	AttemptTimeout   time.Duration
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// Synthesizer routes requests to the chosen backend, deduplicating
// identical requests through an LRU audio cache. The circuit breaker
// state is per backend and shared across guilds; it reflects the vendor's
// health, not guild-local conditions.
type Synthesizer struct {
	backends       map[Engine]*backendEntry
	cache          *lru.Cache[cacheKey, *audio.Track]
	retrier        *resilience.Retrier
	attemptTimeout time.Duration
	logger         *log.Logger
}

// NewSynthesizer wires the backends to their breakers and allocates the
// audio cache.
func NewSynthesizer(backends map[Engine]Backend, opts SynthesizerOptions, logger *log.Logger) (*Synthesizer, error) {
	cache, err := lru.New[cacheKey, *audio.Track](opts.CacheSize)
	if err != nil {
		return nil, err
	}

	entries := make(map[Engine]*backendEntry, len(backends))
	for engine, b := range backends {
		entries[engine] = &backendEntry{
			backend: b,
			breaker: resilience.NewCircuitBreaker(opts.BreakerThreshold, opts.BreakerTimeout),
		}
	}

	return &Synthesizer{
		backends:       entries,
		cache:          cache,
		retrier:        resilience.NewRetrier(opts.MaxAttempts, opts.RetryDelay),
		attemptTimeout: opts.AttemptTimeout,
		logger:         logger,
	}, nil
}

// Synthesize returns a playable handle for the request, from cache when an
// identical request was synthesized before. Concurrent playbacks of the
// same cached line get independent handles over shared samples.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (*audio.Handle, error) {
	entry, ok := s.backends[req.Engine]
	if !ok {
		return nil, fmt.Errorf("no backend registered for engine %s", req.Engine)
	}

	input := entry.backend.RenderInput(req.Segments)
	key := cacheKey{engine: req.Engine, input: input, voice: req.VoiceKey()}

	if track, ok := s.cache.Get(key); ok {
		s.logger.Debug("synthesis cache hit for " + entry.backend.Name())
		return track.NewHandle(), nil
	}

	if !entry.breaker.CanExecute() {
		return nil, fmt.Errorf("%s: %w", entry.backend.Name(), ncberr.ErrCircuitOpen)
	}

	var raw []byte
	var format audio.Format
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
		defer cancel()

		data, f, err := entry.backend.Synthesize(attemptCtx, input, req)
		if err != nil {
			entry.breaker.OnFailure()
			return err
		}
		entry.breaker.OnSuccess()
		raw, format = data, f
		return nil
	})
	if err != nil {
		return nil, &ncberr.SynthesisError{Backend: entry.backend.Name(), Err: err}
	}

	track, err := audio.Decode(raw, format)
	if err != nil {
		return nil, &ncberr.SynthesisError{Backend: entry.backend.Name(), Err: err}
	}

	s.cache.Add(key, track)
	return track.NewHandle(), nil
}

// CacheLen reports how many decoded tracks are cached.
func (s *Synthesizer) CacheLen() int {
	return s.cache.Len()
}
