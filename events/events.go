// Package events handles Discord gateway events and routes them into the
// session core: chat messages to be read aloud, voice-state changes for
// join/leave announcements and autostart, and startup restoration.
package events

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/mii443/ncb-tts-r2/commands"
	"github.com/mii443/ncb-tts-r2/instance"
	"github.com/mii443/ncb-tts-r2/interfaces"
	"github.com/mii443/ncb-tts-r2/log"
)

// commentPrefix silences a message: lines starting with it are never
// read aloud.
const commentPrefix = ";"

// Handler receives gateway events and drives session reads.
type Handler struct {
	manager  *instance.Manager
	store    interfaces.Store
	commands *commands.Handler
	logger   *log.Logger
}

// NewHandler creates a gateway event handler.
func NewHandler(manager *instance.Manager, store interfaces.Store, cmds *commands.Handler, logger *log.Logger) *Handler {
	return &Handler{
		manager:  manager,
		store:    store,
		commands: cmds,
		logger:   logger,
	}
}

// Ready registers the slash commands and restores persisted sessions.
func (h *Handler) Ready(s *discordgo.Session, r *discordgo.Ready) {
	h.logger.Info(r.User.Username + " is connected")

	if err := h.commands.Register(r.Application.ID); err != nil {
		h.logger.Error("could not register application commands", err)
	}

	go h.manager.Restore(context.Background())
}

// MessageCreate reads guild messages posted in a session's bound text
// channels.
func (h *Handler) MessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.GuildID == "" {
		return
	}
	if strings.HasPrefix(m.Content, commentPrefix) {
		return
	}

	username := h.displayName(s, m.GuildID, m.Author)
	ctx := context.Background()

	h.manager.Registry().WithInstance(m.GuildID, func(inst *instance.Instance) {
		if !inst.ReadsChannel(m.ChannelID) {
			return
		}
		utt := instance.Utterance{
			Kind:        instance.KindMessage,
			UserID:      m.Author.ID,
			Username:    username,
			Text:        m.Content,
			Attachments: len(m.Attachments),
		}
		if err := inst.Read(ctx, utt); err != nil {
			h.logger.Error("could not read message in guild "+m.GuildID, err)
		}
	})
}

// displayName resolves the name announced before a user's messages:
// server nickname, then global name, then account name.
func (h *Handler) displayName(s *discordgo.Session, guildID string, user *discordgo.User) string {
	member, err := s.State.Member(guildID, user.ID)
	if err == nil && member.Nick != "" {
		return member.Nick
	}
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}
