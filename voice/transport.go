// Package voice binds the session core to Discord's voice gateway:
// joining and leaving channels, occupancy lookups and per-guild opus
// playback.
package voice

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/mii443/ncb-tts-r2/audio"
	"github.com/mii443/ncb-tts-r2/interfaces"
	"github.com/mii443/ncb-tts-r2/log"
)

// Transport implements interfaces.Transport over discordgo. It owns one
// Player per connected guild.
type Transport struct {
	session *discordgo.Session
	logger  *log.Logger

	players   map[string]*Player
	playersMu sync.Mutex
}

// NewTransport creates a Transport over an open Discord session.
func NewTransport(session *discordgo.Session, logger *log.Logger) *Transport {
	return &Transport{
		session: session,
		logger:  logger,
		players: make(map[string]*Player),
	}
}

// Join connects the bot to a voice channel, replacing any existing
// connection for the guild. The guild's player survives a rejoin; only
// its connection is swapped.
func (t *Transport) Join(guildID, channelID string) error {
	vc, err := t.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return fmt.Errorf("join voice channel %s: %w", channelID, err)
	}

	t.playersMu.Lock()
	defer t.playersMu.Unlock()

	if player, ok := t.players[guildID]; ok {
		player.setConnection(vc)
		return nil
	}

	player, err := newPlayer(guildID, vc, t.logger)
	if err != nil {
		_ = vc.Disconnect()
		return fmt.Errorf("create player for guild %s: %w", guildID, err)
	}
	t.players[guildID] = player
	return nil
}

// Leave stops the guild's player and disconnects from voice.
func (t *Transport) Leave(guildID string) error {
	t.playersMu.Lock()
	player, ok := t.players[guildID]
	delete(t.players, guildID)
	t.playersMu.Unlock()

	if ok {
		player.Stop()
	}

	t.session.RLock()
	vc := t.session.VoiceConnections[guildID]
	t.session.RUnlock()
	if vc == nil {
		return nil
	}
	if err := vc.Disconnect(); err != nil {
		return fmt.Errorf("disconnect voice for guild %s: %w", guildID, err)
	}
	return nil
}

// CurrentChannel reports the channel the bot's voice connection is bound
// to, if any.
func (t *Transport) CurrentChannel(guildID string) (string, bool) {
	t.session.RLock()
	vc := t.session.VoiceConnections[guildID]
	t.session.RUnlock()
	if vc == nil {
		return "", false
	}

	vc.RLock()
	defer vc.RUnlock()
	if !vc.Ready {
		return "", false
	}
	return vc.ChannelID, true
}

// Enqueue hands audio to the guild's player. Audio for a guild without a
// player is dropped.
func (t *Transport) Enqueue(guildID string, h *audio.Handle) {
	t.playersMu.Lock()
	player, ok := t.players[guildID]
	t.playersMu.Unlock()
	if !ok {
		t.logger.Warn("dropping audio for guild " + guildID + ": no active player")
		return
	}
	player.Enqueue(h)
}

// Skip aborts the guild's currently playing utterance.
func (t *Transport) Skip(guildID string) {
	t.playersMu.Lock()
	player, ok := t.players[guildID]
	t.playersMu.Unlock()
	if ok {
		player.Skip()
	}
}

// ListMembers returns the occupants of a voice channel from gateway
// state.
func (t *Transport) ListMembers(guildID, channelID string) ([]interfaces.Member, error) {
	guild, err := t.session.State.Guild(guildID)
	if err != nil {
		return nil, fmt.Errorf("guild %s not in state: %w", guildID, err)
	}

	var members []interfaces.Member
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		members = append(members, interfaces.Member{
			UserID: vs.UserID,
			Bot:    t.isBot(guildID, vs.UserID),
		})
	}
	return members, nil
}

func (t *Transport) isBot(guildID, userID string) bool {
	member, err := t.session.State.Member(guildID, userID)
	if err == nil && member.User != nil {
		return member.User.Bot
	}
	member, err = t.session.GuildMember(guildID, userID)
	if err == nil && member.User != nil {
		return member.User.Bot
	}
	return false
}
