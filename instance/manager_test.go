package instance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mii443/ncb-tts-r2/database"
	"github.com/mii443/ncb-tts-r2/dictionary"
	"github.com/mii443/ncb-tts-r2/log"
	"github.com/mii443/ncb-tts-r2/ncberr"
)

func newTestManager(t *testing.T) (*Manager, *fakeStore, *fakeTransport) {
	t.Helper()
	store, synth, transport := newFakeStore(), &fakeSynth{}, newFakeTransport()
	cache, err := dictionary.NewRegexCache(16)
	require.NoError(t, err)
	logger := log.New(nil, "")
	m := NewManager(NewRegistry(), store, synth, transport, dictionary.NewNormalizer(cache, logger), logger)
	return m, store, transport
}

func TestManager_StartRegistersAndPersists(t *testing.T) {
	m, store, transport := newTestManager(t)
	transport.setMembers("vc-1", Member{UserID: "u1"})

	inst, err := m.Start(context.Background(), "g1", "vc-1", []string{"tc-1"}, false)
	require.NoError(t, err)
	require.NotNil(t, inst)

	assert.True(t, m.Registry().Contains("g1"))
	assert.True(t, store.hasInstance("g1"))
	_, connected := transport.CurrentChannel("g1")
	assert.True(t, connected)
}

func TestManager_StartDuplicateRejected(t *testing.T) {
	m, _, transport := newTestManager(t)
	transport.setMembers("vc-1", Member{UserID: "u1"})

	_, err := m.Start(context.Background(), "g1", "vc-1", []string{"tc-1"}, false)
	require.NoError(t, err)

	_, err = m.Start(context.Background(), "g1", "vc-1", []string{"tc-1"}, false)
	assert.ErrorIs(t, err, ncberr.ErrAlreadyRunning)
}

func TestManager_StartEmptyChannelNotRegistered(t *testing.T) {
	m, store, _ := newTestManager(t)

	_, err := m.Start(context.Background(), "g1", "vc-1", []string{"tc-1"}, false)
	assert.ErrorIs(t, err, ncberr.ErrEmptyVoiceChannel)
	assert.False(t, m.Registry().Contains("g1"))
	assert.False(t, store.hasInstance("g1"))
}

func TestManager_StopRemovesEverything(t *testing.T) {
	m, store, transport := newTestManager(t)
	transport.setMembers("vc-1", Member{UserID: "u1"})

	_, err := m.Start(context.Background(), "g1", "vc-1", []string{"tc-1", "tc-2"}, false)
	require.NoError(t, err)

	primary, err := m.Stop(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "tc-1", primary)
	assert.False(t, m.Registry().Contains("g1"))
	assert.False(t, store.hasInstance("g1"))
	_, connected := transport.CurrentChannel("g1")
	assert.False(t, connected)
}

func TestManager_StopWithoutSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Stop(context.Background(), "g1")
	assert.ErrorIs(t, err, ncberr.ErrInstanceNotFound)
}

func TestManager_RestoreRebuildsRegistry(t *testing.T) {
	m, store, transport := newTestManager(t)
	transport.setMembers("vc-1", Member{UserID: "u1"})
	transport.setMembers("vc-2", Member{UserID: "bot", Bot: true})

	store.instances["g1"] = &database.InstanceRecord{GuildID: "g1", VoiceChannelID: "vc-1", TextChannelIDs: []string{"tc-1"}}
	store.instances["g2"] = &database.InstanceRecord{GuildID: "g2", VoiceChannelID: "vc-2", TextChannelIDs: []string{"tc-2"}}

	restored, failed := m.Restore(context.Background())
	assert.Equal(t, 1, restored)
	assert.Equal(t, 1, failed)

	assert.True(t, m.Registry().Contains("g1"))
	assert.False(t, m.Registry().Contains("g2"))
	// The failed record is deleted so the next restart skips it.
	assert.False(t, store.hasInstance("g2"))
	assert.True(t, store.hasInstance("g1"))
}

func TestManager_RestoreDropsStaleSetMembers(t *testing.T) {
	m, store, transport := newTestManager(t)
	transport.setMembers("vc-1", Member{UserID: "u1"})

	store.instances["g1"] = &database.InstanceRecord{GuildID: "g1", VoiceChannelID: "vc-1", TextChannelIDs: []string{"tc-1"}}
	// A set member whose record blob is gone.
	store.stale = []string{"g9"}

	restored, failed := m.Restore(context.Background())
	assert.Equal(t, 1, restored)
	assert.Equal(t, 0, failed)
	assert.True(t, m.Registry().Contains("g1"))
	assert.Contains(t, store.deleted, "g9")
}

func TestManager_EvictBestEffort(t *testing.T) {
	m, store, transport := newTestManager(t)
	transport.setMembers("vc-1", Member{UserID: "u1"})

	_, err := m.Start(context.Background(), "g1", "vc-1", []string{"tc-1"}, false)
	require.NoError(t, err)

	m.Evict(context.Background(), "g1")
	assert.False(t, m.Registry().Contains("g1"))
	assert.False(t, store.hasInstance("g1"))

	// Evicting a missing guild is a no-op.
	m.Evict(context.Background(), "g1")
}
