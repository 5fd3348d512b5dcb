package events

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/mii443/ncb-tts-r2/instance"
)

// moveState classifies a voice-state change relative to the session's
// bound voice channel.
type moveState int

const (
	moveNone moveState = iota
	moveJoin
	moveLeave
)

// classifyMove decides whether a voice-state transition is a join into or
// a leave from the target channel. oldChannelID is "" when the previous
// state is unknown; newChannelID is "" on full disconnect.
func classifyMove(oldChannelID, newChannelID, targetChannelID string) moveState {
	if oldChannelID == "" {
		if newChannelID == targetChannelID && newChannelID != "" {
			return moveJoin
		}
		return moveNone
	}

	switch {
	case newChannelID == oldChannelID:
		return moveNone
	case newChannelID == "":
		if oldChannelID == targetChannelID {
			return moveLeave
		}
		return moveNone
	case newChannelID == targetChannelID:
		return moveJoin
	default:
		return moveNone
	}
}

// VoiceStateUpdate announces joins and leaves on the session's voice
// channel, tears the session down when the channel empties, and starts a
// session when a user joins the guild's autostart channel.
func (h *Handler) VoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.GuildID == "" {
		return
	}
	if v.Member != nil && v.Member.User != nil && v.Member.User.Bot {
		return
	}

	ctx := context.Background()

	if !h.manager.Registry().Contains(v.GuildID) {
		h.maybeAutostart(ctx, s, v)
		return
	}

	oldChannelID := ""
	if v.BeforeUpdate != nil {
		oldChannelID = v.BeforeUpdate.ChannelID
	}

	var teardown bool
	h.manager.Registry().WithInstance(v.GuildID, func(inst *instance.Instance) {
		state := classifyMove(oldChannelID, v.ChannelID, inst.VoiceChannelID)
		if state == moveNone {
			return
		}

		h.announceMove(ctx, s, v, inst, state)

		if state == moveLeave {
			empty, err := h.channelEmpty(s, v.GuildID, inst.VoiceChannelID)
			if err != nil {
				h.logger.Error("could not check voice channel occupancy for guild "+v.GuildID, err)
				return
			}
			teardown = empty
		}
	})

	// Evict outside the registry lock.
	if teardown {
		h.manager.Evict(ctx, v.GuildID)
	}
}

func (h *Handler) announceMove(ctx context.Context, s *discordgo.Session, v *discordgo.VoiceStateUpdate, inst *instance.Instance, state moveState) {
	cfg, err := h.store.GetServerConfigOrDefault(ctx, v.GuildID)
	if err != nil {
		h.logger.Error("could not load server config for guild "+v.GuildID, err)
		return
	}
	if !cfg.AnnounceEnabled() {
		return
	}

	user := h.voiceStateUser(s, v)
	if user == nil {
		return
	}
	name := h.displayName(s, v.GuildID, user)

	var text string
	switch state {
	case moveJoin:
		text = name + " さんが通話に参加しました"
	case moveLeave:
		text = name + " さんが通話から退出しました"
	default:
		return
	}

	utt := instance.Utterance{Kind: instance.KindAnnouncement, Text: text}
	if err := inst.Read(ctx, utt); err != nil {
		h.logger.Error("could not read voice-state announcement in guild "+v.GuildID, err)
	}
}

// maybeAutostart creates a session when a user joins the guild's
// configured autostart channel.
func (h *Handler) maybeAutostart(ctx context.Context, s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.ChannelID == "" {
		return
	}
	if v.BeforeUpdate != nil && v.BeforeUpdate.ChannelID == v.ChannelID {
		return
	}

	cfg, err := h.store.GetServerConfigOrDefault(ctx, v.GuildID)
	if err != nil {
		h.logger.Error("could not load server config for guild "+v.GuildID, err)
		return
	}
	if cfg.AutostartChannelID == "" || cfg.AutostartChannelID != v.ChannelID {
		return
	}

	textChannel := cfg.AutostartTextChannel
	if textChannel == "" {
		textChannel = v.ChannelID
	}

	if _, err := h.manager.Start(ctx, v.GuildID, v.ChannelID, []string{textChannel}, true); err != nil {
		h.logger.Error("autostart failed for guild "+v.GuildID, err)
		return
	}
	h.logger.Info("autostarted session for guild " + v.GuildID)

	// The welcome read goes through the registry lock like every other
	// read; message handlers may already be racing for this session.
	welcome := instance.Utterance{Kind: instance.KindAnnouncement, Text: "読み上げを開始します"}
	h.manager.Registry().WithInstance(v.GuildID, func(inst *instance.Instance) {
		if err := inst.Read(ctx, welcome); err != nil {
			h.logger.Error("could not read autostart welcome in guild "+v.GuildID, err)
		}
	})
}

func (h *Handler) voiceStateUser(s *discordgo.Session, v *discordgo.VoiceStateUpdate) *discordgo.User {
	if v.Member != nil && v.Member.User != nil {
		return v.Member.User
	}
	member, err := s.State.Member(v.GuildID, v.UserID)
	if err == nil && member.User != nil {
		return member.User
	}
	user, err := s.User(v.UserID)
	if err != nil {
		return nil
	}
	return user
}

// channelEmpty reports whether no non-bot member remains in the channel.
func (h *Handler) channelEmpty(s *discordgo.Session, guildID, channelID string) (bool, error) {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return false, err
	}
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		member, err := s.State.Member(guildID, vs.UserID)
		if err == nil && member.User != nil && member.User.Bot {
			continue
		}
		return false, nil
	}
	return true, nil
}
