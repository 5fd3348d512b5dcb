// Package instance holds the per-guild TTS session state machine and the
// registry that owns every active session.
package instance

import (
	"context"
	"fmt"

	"github.com/mii443/ncb-tts-r2/database"
	"github.com/mii443/ncb-tts-r2/dictionary"
	"github.com/mii443/ncb-tts-r2/interfaces"
	"github.com/mii443/ncb-tts-r2/log"
	"github.com/mii443/ncb-tts-r2/ncberr"
	"github.com/mii443/ncb-tts-r2/tts"
)

// UtteranceKind tags the closed set of things a session can read aloud.
type UtteranceKind int

const (
	// KindMessage is a user chat message.
	KindMessage UtteranceKind = iota
	// KindAnnouncement is a bot-origin notice (join/leave/system).
	KindAnnouncement
)

// Utterance is one unit of text destined for synthesis.
type Utterance struct {
	Kind        UtteranceKind
	UserID      string
	Username    string // display name resolved by the event layer
	Text        string
	Attachments int
}

// Instance is the live "TTS is active in this guild" record. It is owned
// by the Registry and must only be touched under the registry lock.
type Instance struct {
	GuildID        string
	VoiceChannelID string
	TextChannelIDs []string

	// lastSpokenUserID remembers the most recent message author so
	// consecutive messages from the same speaker skip the name prefix.
	lastSpokenUserID string
	hasLastSpoken    bool

	store      interfaces.Store
	synth      interfaces.Synthesizer
	transport  interfaces.Transport
	normalizer *dictionary.Normalizer
	logger     *log.Logger
}

// New creates a session bound to a voice channel and one or more text
// channels. The first text channel is the primary one for bot notices.
func New(
	guildID, voiceChannelID string,
	textChannelIDs []string,
	store interfaces.Store,
	synth interfaces.Synthesizer,
	transport interfaces.Transport,
	normalizer *dictionary.Normalizer,
	logger *log.Logger,
) *Instance {
	return &Instance{
		GuildID:        guildID,
		VoiceChannelID: voiceChannelID,
		TextChannelIDs: textChannelIDs,
		store:          store,
		synth:          synth,
		transport:      transport,
		normalizer:     normalizer,
		logger:         logger,
	}
}

// PrimaryTextChannel is the channel bot-origin notices go to.
func (i *Instance) PrimaryTextChannel() string {
	if len(i.TextChannelIDs) == 0 {
		return ""
	}
	return i.TextChannelIDs[0]
}

// ReadsChannel reports whether messages in the channel are read aloud.
func (i *Instance) ReadsChannel(channelID string) bool {
	for _, id := range i.TextChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}

// Record returns the persisted shape of this session.
func (i *Instance) Record() *database.InstanceRecord {
	return &database.InstanceRecord{
		GuildID:        i.GuildID,
		VoiceChannelID: i.VoiceChannelID,
		TextChannelIDs: i.TextChannelIDs,
	}
}

// Read normalizes, synthesizes and enqueues an utterance. Synthesis
// failures degrade to silence for that single utterance; they never tear
// down the session.
func (i *Instance) Read(ctx context.Context, utt Utterance) error {
	if err := ncberr.ValidateTTSText(utt.Text); err != nil {
		return fmt.Errorf("rejecting utterance: %w", err)
	}

	serverCfg, err := i.store.GetServerConfigOrDefault(ctx, i.GuildID)
	if err != nil {
		return fmt.Errorf("could not load server config: %w", err)
	}

	var segments []string
	switch utt.Kind {
	case KindMessage:
		text := i.normalizer.Apply(serverCfg.Dictionary, utt.Text)

		announce := serverCfg.ReadUsernameEnabled() &&
			(!i.hasLastSpoken || i.lastSpokenUserID != utt.UserID)
		if announce {
			segments = append(segments, utt.Username+"さんの発言")
		}
		segments = append(segments, text)
		if utt.Attachments > 0 {
			segments = append(segments, fmt.Sprintf("%d個の添付ファイル", utt.Attachments))
		}

		i.lastSpokenUserID = utt.UserID
		i.hasLastSpoken = true

	case KindAnnouncement:
		segments = append(segments, utt.Text)
		// The next real message must re-announce its speaker.
		i.hasLastSpoken = false
		i.lastSpokenUserID = ""
	}

	userCfg, err := i.store.GetUserConfigOrDefault(ctx, utt.UserID)
	if err != nil {
		return fmt.Errorf("could not load user config: %w", err)
	}

	handle, err := i.synth.Synthesize(ctx, tts.Request{
		Engine:          userCfg.Engine,
		Segments:        segments,
		Voice:           userCfg.GCPVoice,
		VoicevoxSpeaker: userCfg.VoicevoxSpeaker,
	})
	if err != nil {
		return fmt.Errorf("synthesis for guild %s: %w", i.GuildID, err)
	}

	i.transport.Enqueue(i.GuildID, handle)
	return nil
}

// Skip drops the currently playing item from the playback queue.
func (i *Instance) Skip(ctx context.Context) {
	i.transport.Skip(i.GuildID)
}

// CheckConnection reports whether the voice transport is currently bound
// to this session's guild. Pure observation, never joins or leaves.
func (i *Instance) CheckConnection(ctx context.Context) bool {
	_, ok := i.transport.CurrentChannel(i.GuildID)
	return ok
}

// Reconnect (re)joins the bound voice channel. Idempotent when already
// connected. Unless skipEmptyCheck, an occupant-free channel is left
// again immediately and ErrEmptyVoiceChannel returned so the caller can
// decide whether to evict the session.
func (i *Instance) Reconnect(ctx context.Context, skipEmptyCheck bool) error {
	if i.CheckConnection(ctx) {
		return nil
	}

	if err := i.transport.Join(i.GuildID, i.VoiceChannelID); err != nil {
		return &ncberr.VoiceJoinError{GuildID: i.GuildID, ChannelID: i.VoiceChannelID, Err: err}
	}

	if skipEmptyCheck {
		return nil
	}

	occupied, err := i.hasListeners()
	if err != nil {
		i.logger.Error("could not check voice channel occupancy for guild "+i.GuildID, err)
		return nil
	}
	if !occupied {
		if err := i.transport.Leave(i.GuildID); err != nil {
			i.logger.Error("could not leave empty voice channel for guild "+i.GuildID, err)
		}
		return ncberr.ErrEmptyVoiceChannel
	}
	return nil
}

// hasListeners reports whether any non-bot member occupies the bound
// voice channel.
func (i *Instance) hasListeners() (bool, error) {
	members, err := i.transport.ListMembers(i.GuildID, i.VoiceChannelID)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if !m.Bot {
			return true, nil
		}
	}
	return false, nil
}
