package instance

import (
	"context"
	"errors"
	"fmt"

	"github.com/mii443/ncb-tts-r2/dictionary"
	"github.com/mii443/ncb-tts-r2/interfaces"
	"github.com/mii443/ncb-tts-r2/log"
	"github.com/mii443/ncb-tts-r2/ncberr"
)

// Manager owns the session lifecycle: setup, teardown, eviction and
// restart restoration. Every registry mutation is paired with the
// matching persistence write so the registry can be rebuilt after a
// restart.
type Manager struct {
	registry   *Registry
	store      interfaces.Store
	synth      interfaces.Synthesizer
	transport  interfaces.Transport
	normalizer *dictionary.Normalizer
	logger     *log.Logger
}

// NewManager wires the session lifecycle dependencies.
func NewManager(
	registry *Registry,
	store interfaces.Store,
	synth interfaces.Synthesizer,
	transport interfaces.Transport,
	normalizer *dictionary.Normalizer,
	logger *log.Logger,
) *Manager {
	return &Manager{
		registry:   registry,
		store:      store,
		synth:      synth,
		transport:  transport,
		normalizer: normalizer,
		logger:     logger,
	}
}

// Registry exposes the session registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Start creates a session, joins its voice channel, registers it and
// persists its record. skipEmptyCheck is set for setup and autostart
// (the triggering user occupies the channel); restoration keeps the
// check.
func (m *Manager) Start(ctx context.Context, guildID, voiceChannelID string, textChannelIDs []string, skipEmptyCheck bool) (*Instance, error) {
	if m.registry.Contains(guildID) {
		return nil, ncberr.ErrAlreadyRunning
	}
	if len(textChannelIDs) == 0 {
		return nil, fmt.Errorf("session needs at least one text channel")
	}

	inst := New(guildID, voiceChannelID, textChannelIDs, m.store, m.synth, m.transport, m.normalizer, m.logger)

	if err := inst.Reconnect(ctx, skipEmptyCheck); err != nil {
		return nil, err
	}

	if !m.registry.Insert(inst) {
		// Lost a race with a concurrent setup; undo the join.
		if err := m.transport.Leave(guildID); err != nil {
			m.logger.Error("could not undo voice join for guild "+guildID, err)
		}
		return nil, ncberr.ErrAlreadyRunning
	}

	if err := m.store.SaveInstance(ctx, inst.Record()); err != nil {
		// The session keeps running in memory; a restart after this
		// point loses it. Accepted degradation.
		m.logger.Error("could not persist session for guild "+guildID, err)
	}

	return inst, nil
}

// Stop tears a session down: registry removal, persisted record removal
// and voice leave. Returns the primary text channel for the caller's
// acknowledgement.
func (m *Manager) Stop(ctx context.Context, guildID string) (string, error) {
	inst, ok := m.registry.Remove(guildID)
	if !ok {
		return "", ncberr.ErrInstanceNotFound
	}

	if err := m.store.DeleteInstance(ctx, guildID); err != nil {
		m.logger.Error("could not delete session record for guild "+guildID, err)
	}
	if err := m.transport.Leave(guildID); err != nil {
		m.logger.Error("could not leave voice channel for guild "+guildID, err)
	}

	return inst.PrimaryTextChannel(), nil
}

// Evict removes a dead session. Same cleanup as Stop but best-effort
// everywhere; used by the connection monitor.
func (m *Manager) Evict(ctx context.Context, guildID string) {
	if _, ok := m.registry.Remove(guildID); !ok {
		return
	}
	if err := m.store.DeleteInstance(ctx, guildID); err != nil {
		m.logger.Error("could not delete session record for guild "+guildID, err)
	}
	if err := m.transport.Leave(guildID); err != nil {
		m.logger.Error("could not force-leave voice for guild "+guildID, err)
	}
	m.logger.Info("evicted session for guild " + guildID)
}

// Restore rebuilds the registry from durable storage after a restart.
// One guild's failure never blocks the others; failed and stale records
// are deleted. Returns the restored and failed counts.
func (m *Manager) Restore(ctx context.Context) (restored, failed int) {
	records, stale, err := m.store.ListInstances(ctx)
	if err != nil {
		m.logger.Error("could not list persisted sessions", err)
		return 0, 0
	}

	for _, guildID := range stale {
		if derr := m.store.DeleteInstance(ctx, guildID); derr != nil {
			m.logger.Error("could not drop stale session member for guild "+guildID, derr)
		}
	}

	for _, rec := range records {
		inst := New(rec.GuildID, rec.VoiceChannelID, rec.TextChannelIDs, m.store, m.synth, m.transport, m.normalizer, m.logger)

		err := inst.Reconnect(ctx, false)
		if err != nil {
			failed++
			if !errors.Is(err, ncberr.ErrEmptyVoiceChannel) {
				m.logger.Error("could not restore session for guild "+rec.GuildID, err)
			}
			if derr := m.store.DeleteInstance(ctx, rec.GuildID); derr != nil {
				m.logger.Error("could not delete stale session record for guild "+rec.GuildID, derr)
			}
			continue
		}

		if m.registry.Insert(inst) {
			restored++
		}
	}

	m.logger.Info(fmt.Sprintf("session restoration complete: %d restored, %d failed", restored, failed))
	return restored, failed
}
