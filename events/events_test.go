package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mii443/ncb-tts-r2/audio"
	"github.com/mii443/ncb-tts-r2/database"
	"github.com/mii443/ncb-tts-r2/dictionary"
	"github.com/mii443/ncb-tts-r2/instance"
	"github.com/mii443/ncb-tts-r2/interfaces"
	"github.com/mii443/ncb-tts-r2/log"
	"github.com/mii443/ncb-tts-r2/monitor"
	"github.com/mii443/ncb-tts-r2/tts"
)

type stubStore struct {
	mu            sync.Mutex
	serverConfigs map[string]*database.ServerConfig
	instances     map[string]*database.InstanceRecord
}

func newStubStore() *stubStore {
	return &stubStore{
		serverConfigs: make(map[string]*database.ServerConfig),
		instances:     make(map[string]*database.InstanceRecord),
	}
}

func (s *stubStore) GetServerConfigOrDefault(ctx context.Context, guildID string) (*database.ServerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg, ok := s.serverConfigs[guildID]; ok {
		return cfg, nil
	}
	cfg := &database.ServerConfig{Dictionary: dictionary.NewDictionary()}
	s.serverConfigs[guildID] = cfg
	return cfg, nil
}

func (s *stubStore) SetServerConfig(ctx context.Context, guildID string, cfg *database.ServerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverConfigs[guildID] = cfg
	return nil
}

func (s *stubStore) GetUserConfigOrDefault(ctx context.Context, userID string) (*database.UserConfig, error) {
	return &database.UserConfig{Engine: tts.EngineGCP, GCPVoice: tts.DefaultVoice}, nil
}

func (s *stubStore) SetUserConfig(ctx context.Context, userID string, cfg *database.UserConfig) error {
	return nil
}

func (s *stubStore) SaveInstance(ctx context.Context, rec *database.InstanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[rec.GuildID] = rec
	return nil
}

func (s *stubStore) DeleteInstance(ctx context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, guildID)
	return nil
}

func (s *stubStore) ListInstances(ctx context.Context) ([]*database.InstanceRecord, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*database.InstanceRecord, 0, len(s.instances))
	for _, rec := range s.instances {
		out = append(out, rec)
	}
	return out, nil, nil
}

func (s *stubStore) hasInstance(guildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.instances[guildID]
	return ok
}

type countingSynth struct {
	mu       sync.Mutex
	requests []tts.Request
}

func (f *countingSynth) Synthesize(ctx context.Context, req tts.Request) (*audio.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return audio.NewTrack(make([]int16, audio.FrameSize*audio.Channels)).NewHandle(), nil
}

func (f *countingSynth) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *countingSynth) lastSegments(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1].Segments
}

type stubTransport struct {
	mu        sync.Mutex
	connected map[string]string
	members   map[string][]interfaces.Member
	enqueued  int
	leaves    int
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		connected: make(map[string]string),
		members:   make(map[string][]interfaces.Member),
	}
}

func (f *stubTransport) Join(guildID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected[guildID] = channelID
	return nil
}

func (f *stubTransport) Leave(guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	delete(f.connected, guildID)
	return nil
}

func (f *stubTransport) CurrentChannel(guildID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.connected[guildID]
	return ch, ok
}

func (f *stubTransport) Enqueue(guildID string, h *audio.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued++
}

func (f *stubTransport) Skip(guildID string) {}

func (f *stubTransport) ListMembers(guildID, channelID string) ([]interfaces.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[channelID], nil
}

func (f *stubTransport) setMembers(channelID string, members ...interfaces.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[channelID] = members
}

type noopNotifier struct{}

func (noopNotifier) PostReconnected(channelID string) error { return nil }

func newTestHandler(t *testing.T) (*Handler, *instance.Manager, *stubStore, *countingSynth, *stubTransport) {
	t.Helper()
	cache, err := dictionary.NewRegexCache(16)
	require.NoError(t, err)
	logger := log.New(nil, "")
	store := newStubStore()
	synth := &countingSynth{}
	transport := newStubTransport()
	manager := instance.NewManager(
		instance.NewRegistry(), store, synth, transport,
		dictionary.NewNormalizer(cache, logger), logger,
	)
	return NewHandler(manager, store, nil, logger), manager, store, synth, transport
}

func gatewaySession(t *testing.T) *discordgo.Session {
	t.Helper()
	return &discordgo.Session{State: discordgo.NewState()}
}

func voiceJoin(guildID, channelID, userID string) *discordgo.VoiceStateUpdate {
	return &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{
			GuildID:   guildID,
			ChannelID: channelID,
			UserID:    userID,
			Member: &discordgo.Member{
				User: &discordgo.User{ID: userID, Username: "taro"},
			},
		},
	}
}

func TestClassifyMove(t *testing.T) {
	tests := []struct {
		name   string
		oldCh  string
		newCh  string
		target string
		want   moveState
	}{
		{"fresh join into target", "", "vc-1", "vc-1", moveJoin},
		{"fresh join elsewhere", "", "vc-2", "vc-1", moveNone},
		{"no previous state, disconnect", "", "", "vc-1", moveNone},
		{"mute toggle in target", "vc-1", "vc-1", "vc-1", moveNone},
		{"disconnect from target", "vc-1", "", "vc-1", moveLeave},
		{"disconnect from elsewhere", "vc-2", "", "vc-1", moveNone},
		{"move into target", "vc-2", "vc-1", "vc-1", moveJoin},
		{"move between unrelated channels", "vc-2", "vc-3", "vc-1", moveNone},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyMove(tc.oldCh, tc.newCh, tc.target))
		})
	}
}

func TestMessageCreateIgnoresBotsAndComments(t *testing.T) {
	h, manager, _, synth, transport := newTestHandler(t)
	s := gatewaySession(t)

	transport.setMembers("vc-1", interfaces.Member{UserID: "u1"})
	_, err := manager.Start(context.Background(), "g1", "vc-1", []string{"tc-1"}, true)
	require.NoError(t, err)

	h.MessageCreate(s, &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: "g1", ChannelID: "tc-1", Content: "beep",
		Author: &discordgo.User{ID: "b1", Bot: true},
	}})
	h.MessageCreate(s, &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: "g1", ChannelID: "tc-1", Content: ";silent",
		Author: &discordgo.User{ID: "u1", Username: "taro"},
	}})
	h.MessageCreate(s, &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: "g1", ChannelID: "tc-other", Content: "unbound channel",
		Author: &discordgo.User{ID: "u1", Username: "taro"},
	}})

	assert.Zero(t, synth.calls())
}

func TestVoiceStateAnnounceDisabled(t *testing.T) {
	h, manager, store, synth, transport := newTestHandler(t)
	s := gatewaySession(t)

	off := false
	store.serverConfigs["g1"] = &database.ServerConfig{
		Dictionary:         dictionary.NewDictionary(),
		VoiceStateAnnounce: &off,
	}

	transport.setMembers("vc-1", interfaces.Member{UserID: "u1"})
	_, err := manager.Start(context.Background(), "g1", "vc-1", []string{"tc-1"}, true)
	require.NoError(t, err)

	h.VoiceStateUpdate(s, voiceJoin("g1", "vc-1", "u2"))

	assert.Zero(t, synth.calls())
}

func TestVoiceStateJoinAnnounced(t *testing.T) {
	h, manager, _, synth, transport := newTestHandler(t)
	s := gatewaySession(t)

	transport.setMembers("vc-1", interfaces.Member{UserID: "u1"})
	_, err := manager.Start(context.Background(), "g1", "vc-1", []string{"tc-1"}, true)
	require.NoError(t, err)

	h.VoiceStateUpdate(s, voiceJoin("g1", "vc-1", "u2"))

	require.Equal(t, 1, synth.calls())
	assert.Equal(t, []string{"taro さんが通話に参加しました"}, synth.lastSegments(t))
}

func TestAutostartIgnoresOtherChannels(t *testing.T) {
	h, manager, store, _, _ := newTestHandler(t)
	s := gatewaySession(t)

	store.serverConfigs["g1"] = &database.ServerConfig{
		Dictionary:         dictionary.NewDictionary(),
		AutostartChannelID: "vc-auto",
	}

	h.VoiceStateUpdate(s, voiceJoin("g1", "vc-other", "u1"))

	assert.False(t, manager.Registry().Contains("g1"))
}

// Gateway handlers run on separate goroutines; the autostart welcome
// read must serialize with concurrent message reads through the
// registry lock. Run with the race detector to cover this.
func TestAutostartWelcomeSerializedWithMessages(t *testing.T) {
	h, manager, store, synth, transport := newTestHandler(t)
	s := gatewaySession(t)

	store.serverConfigs["g1"] = &database.ServerConfig{
		Dictionary:           dictionary.NewDictionary(),
		AutostartChannelID:   "vc-1",
		AutostartTextChannel: "tc-1",
	}
	transport.setMembers("vc-1", interfaces.Member{UserID: "u1"})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.VoiceStateUpdate(s, voiceJoin("g1", "vc-1", "u1"))
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			h.MessageCreate(s, &discordgo.MessageCreate{Message: &discordgo.Message{
				GuildID: "g1", ChannelID: "tc-1", Content: "hello",
				Author: &discordgo.User{ID: "u1", Username: "taro"},
			}})
		}
	}()
	wg.Wait()

	require.True(t, manager.Registry().Contains("g1"))
	assert.GreaterOrEqual(t, synth.calls(), 1)
}

// TestAutostartLifecycle walks the full flow: a user joining the
// autostart channel creates and persists a session and enqueues a
// welcome notice; messages in the bound channel are read with the
// speaker announced once; the monitor evicts once the channel empties.
func TestAutostartLifecycle(t *testing.T) {
	h, manager, store, synth, transport := newTestHandler(t)
	s := gatewaySession(t)
	ctx := context.Background()

	store.serverConfigs["g1"] = &database.ServerConfig{
		Dictionary:           dictionary.NewDictionary(),
		AutostartChannelID:   "vc-1",
		AutostartTextChannel: "tc-1",
	}
	transport.setMembers("vc-1", interfaces.Member{UserID: "u1"})

	// User joins the autostart channel.
	h.VoiceStateUpdate(s, voiceJoin("g1", "vc-1", "u1"))
	require.True(t, manager.Registry().Contains("g1"))
	require.True(t, store.hasInstance("g1"))
	require.Equal(t, 1, synth.calls()) // welcome notice
	require.Equal(t, 1, transport.enqueued)

	// First message announces its speaker.
	h.MessageCreate(s, &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: "g1", ChannelID: "tc-1", Content: "hello",
		Author: &discordgo.User{ID: "u1", Username: "taro"},
	}})
	require.Equal(t, 2, synth.calls())
	assert.Equal(t, []string{"taroさんの発言", "hello"}, synth.lastSegments(t))

	// Same speaker again: no announcement prefix.
	h.MessageCreate(s, &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: "g1", ChannelID: "tc-1", Content: "world",
		Author: &discordgo.User{ID: "u1", Username: "taro"},
	}})
	require.Equal(t, 3, synth.calls())
	assert.Equal(t, []string{"world"}, synth.lastSegments(t))

	// Channel empties; the monitor's next sweep evicts the session.
	transport.setMembers("vc-1")
	mon := monitor.New(manager, transport, noopNotifier{}, log.New(nil, ""),
		5*time.Second, 3, 2*time.Second)
	mon.Sweep(ctx)

	assert.False(t, manager.Registry().Contains("g1"))
	assert.False(t, store.hasInstance("g1"))
	assert.GreaterOrEqual(t, transport.leaves, 1)
}
