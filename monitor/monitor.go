// Package monitor audits active sessions' voice connectivity on a fixed
// timer, reconnecting dropped sessions with bounded backoff and evicting
// sessions nobody is listening to.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/mii443/ncb-tts-r2/instance"
	"github.com/mii443/ncb-tts-r2/interfaces"
	"github.com/mii443/ncb-tts-r2/log"
)

// ConnectionMonitor periodically checks every registered session against
// the voice transport. Disconnections are only trusted when observed by
// this poll, never from push notifications.
type ConnectionMonitor struct {
	manager   *instance.Manager
	transport interfaces.Transport
	notifier  interfaces.Notifier
	logger    *log.Logger

	interval    time.Duration
	maxAttempts int
	backoffBase time.Duration

	// per-guild consecutive reconnection failures
	attempts map[string]int

	sleep func(context.Context, time.Duration) // injected for tests
}

// New creates a ConnectionMonitor.
func New(
	manager *instance.Manager,
	transport interfaces.Transport,
	notifier interfaces.Notifier,
	logger *log.Logger,
	interval time.Duration,
	maxAttempts int,
	backoffBase time.Duration,
) *ConnectionMonitor {
	return &ConnectionMonitor{
		manager:     manager,
		transport:   transport,
		notifier:    notifier,
		logger:      logger,
		interval:    interval,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		attempts:    make(map[string]int),
		sleep:       sleepCtx,
	}
}

// Run ticks until ctx is cancelled.
func (m *ConnectionMonitor) Run(ctx context.Context) {
	m.logger.Info(fmt.Sprintf("starting connection monitor (interval %s)", m.interval))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep audits every session once. One guild's failure never aborts the
// rest of the sweep; each audit is isolated and logged locally.
func (m *ConnectionMonitor) Sweep(ctx context.Context) {
	var evict []string

	for _, inst := range m.manager.Registry().Snapshot() {
		if inst.CheckConnection(ctx) {
			delete(m.attempts, inst.GuildID)
			// Still connected, but nobody listening means the session
			// is done.
			occupied, err := m.hasListeners(inst)
			if err != nil {
				m.logger.Error("could not check voice channel occupancy for guild "+inst.GuildID, err)
				continue
			}
			if !occupied {
				m.logger.Info("voice channel emptied in guild " + inst.GuildID + ", evicting session")
				evict = append(evict, inst.GuildID)
			}
			continue
		}
		if m.auditDisconnected(ctx, inst) {
			evict = append(evict, inst.GuildID)
		}
	}

	for _, guildID := range evict {
		delete(m.attempts, guildID)
		m.manager.Evict(ctx, guildID)
	}
}

// auditDisconnected handles one disconnected session and reports whether
// it should be evicted.
func (m *ConnectionMonitor) auditDisconnected(ctx context.Context, inst *instance.Instance) bool {
	m.logger.Warn("bot disconnected from voice channel in guild " + inst.GuildID)

	occupied, err := m.hasListeners(inst)
	if err != nil {
		m.logger.Error("could not check voice channel occupancy for guild "+inst.GuildID, err)
		return false
	}
	if !occupied {
		m.logger.Info("no listeners left in guild " + inst.GuildID + ", evicting session")
		return true
	}

	attempts := m.attempts[inst.GuildID]
	if attempts >= m.maxAttempts {
		m.logger.Warn(fmt.Sprintf("guild %s exhausted %d reconnection attempts, evicting", inst.GuildID, attempts))
		return true
	}

	if attempts > 0 {
		backoff := m.backoffBase * (1 << attempts)
		m.sleep(ctx, backoff)
	}

	if err := inst.Reconnect(ctx, true); err != nil {
		m.attempts[inst.GuildID] = attempts + 1
		m.logger.Error(fmt.Sprintf("reconnection attempt %d failed for guild %s", attempts+1, inst.GuildID), err)
		return m.attempts[inst.GuildID] >= m.maxAttempts
	}

	delete(m.attempts, inst.GuildID)
	m.logger.Info("reconnected voice for guild " + inst.GuildID)
	if err := m.notifier.PostReconnected(inst.PrimaryTextChannel()); err != nil {
		m.logger.Error("could not post reconnection notice for guild "+inst.GuildID, err)
	}
	return false
}

func (m *ConnectionMonitor) hasListeners(inst *instance.Instance) (bool, error) {
	members, err := m.transport.ListMembers(inst.GuildID, inst.VoiceChannelID)
	if err != nil {
		return false, err
	}
	for _, member := range members {
		if !member.Bot {
			return true, nil
		}
	}
	return false, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
