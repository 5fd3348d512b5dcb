package instance

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mii443/ncb-tts-r2/audio"
	"github.com/mii443/ncb-tts-r2/database"
	"github.com/mii443/ncb-tts-r2/dictionary"
	"github.com/mii443/ncb-tts-r2/interfaces"
	"github.com/mii443/ncb-tts-r2/log"
	"github.com/mii443/ncb-tts-r2/tts"
)

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu            sync.Mutex
	serverConfigs map[string]*database.ServerConfig
	userConfigs   map[string]*database.UserConfig
	instances     map[string]*database.InstanceRecord
	stale         []string
	deleted       []string

	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		serverConfigs: make(map[string]*database.ServerConfig),
		userConfigs:   make(map[string]*database.UserConfig),
		instances:     make(map[string]*database.InstanceRecord),
	}
}

func (s *fakeStore) GetServerConfigOrDefault(ctx context.Context, guildID string) (*database.ServerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg, ok := s.serverConfigs[guildID]; ok {
		return cfg, nil
	}
	cfg := &database.ServerConfig{Dictionary: dictionary.NewDictionary()}
	s.serverConfigs[guildID] = cfg
	return cfg, nil
}

func (s *fakeStore) SetServerConfig(ctx context.Context, guildID string, cfg *database.ServerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverConfigs[guildID] = cfg
	return nil
}

func (s *fakeStore) GetUserConfigOrDefault(ctx context.Context, userID string) (*database.UserConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg, ok := s.userConfigs[userID]; ok {
		return cfg, nil
	}
	cfg := &database.UserConfig{
		Engine:          tts.EngineGCP,
		GCPVoice:        tts.DefaultVoice,
		VoicevoxSpeaker: tts.DefaultVoicevoxSpeaker,
	}
	s.userConfigs[userID] = cfg
	return cfg, nil
}

func (s *fakeStore) SetUserConfig(ctx context.Context, userID string, cfg *database.UserConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userConfigs[userID] = cfg
	return nil
}

func (s *fakeStore) SaveInstance(ctx context.Context, rec *database.InstanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.instances[rec.GuildID] = rec
	return nil
}

func (s *fakeStore) DeleteInstance(ctx context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, guildID)
	s.deleted = append(s.deleted, guildID)
	return nil
}

func (s *fakeStore) ListInstances(ctx context.Context) ([]*database.InstanceRecord, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*database.InstanceRecord, 0, len(s.instances))
	for _, rec := range s.instances {
		out = append(out, rec)
	}
	return out, s.stale, nil
}

func (s *fakeStore) hasInstance(guildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.instances[guildID]
	return ok
}

// fakeSynth records synthesis requests.
type fakeSynth struct {
	mu       sync.Mutex
	requests []tts.Request
	err      error
}

func (f *fakeSynth) Synthesize(ctx context.Context, req tts.Request) (*audio.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return audio.NewTrack(make([]int16, audio.FrameSize*audio.Channels)).NewHandle(), nil
}

func (f *fakeSynth) lastSegments(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1].Segments
}

// fakeTransport simulates the voice transport.
type fakeTransport struct {
	mu        sync.Mutex
	connected map[string]string   // guildID -> channelID
	members   map[string][]Member // channelID -> occupants
	enqueued  map[string]int
	skips     map[string]int
	joinErr   error
	joins     int
	leaves    int
}

// Member aliases the interfaces type for brevity in tests.
type Member = interfaces.Member

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connected: make(map[string]string),
		members:   make(map[string][]Member),
		enqueued:  make(map[string]int),
		skips:     make(map[string]int),
	}
}

func (f *fakeTransport) Join(guildID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins++
	if f.joinErr != nil {
		return f.joinErr
	}
	f.connected[guildID] = channelID
	return nil
}

func (f *fakeTransport) Leave(guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	delete(f.connected, guildID)
	return nil
}

func (f *fakeTransport) CurrentChannel(guildID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.connected[guildID]
	return ch, ok
}

func (f *fakeTransport) Enqueue(guildID string, h *audio.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued[guildID]++
}

func (f *fakeTransport) Skip(guildID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skips[guildID]++
}

func (f *fakeTransport) ListMembers(guildID, channelID string) ([]Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[channelID], nil
}

func (f *fakeTransport) setMembers(channelID string, members ...Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[channelID] = members
}

func newTestInstance(t *testing.T, guildID string, store *fakeStore, synth *fakeSynth, transport *fakeTransport) *Instance {
	t.Helper()
	cache, err := dictionary.NewRegexCache(16)
	require.NoError(t, err)
	logger := log.New(nil, "")
	return New(guildID, "vc-1", []string{"tc-1"}, store, synth, transport, dictionary.NewNormalizer(cache, logger), logger)
}
