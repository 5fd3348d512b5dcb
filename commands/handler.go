// Package commands implements the bot's slash command surface: setup,
// stop, skip and the config UI.
package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/mii443/ncb-tts-r2/instance"
	"github.com/mii443/ncb-tts-r2/interfaces"
	"github.com/mii443/ncb-tts-r2/log"
	"github.com/mii443/ncb-tts-r2/tts"
)

// Handler routes slash commands, component interactions and modal
// submissions to their implementations.
type Handler struct {
	session  *discordgo.Session
	manager  *instance.Manager
	store    interfaces.Store
	gcp      *tts.GCPBackend
	voicevox *tts.VoicevoxBackend
	logger   *log.Logger
}

// NewHandler creates a command handler.
func NewHandler(
	session *discordgo.Session,
	manager *instance.Manager,
	store interfaces.Store,
	gcp *tts.GCPBackend,
	voicevox *tts.VoicevoxBackend,
	logger *log.Logger,
) *Handler {
	return &Handler{
		session:  session,
		manager:  manager,
		store:    store,
		gcp:      gcp,
		voicevox: voicevox,
		logger:   logger,
	}
}

// Definitions returns the application commands this bot registers.
func Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "setup",
			Description: "Setup tts",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mode",
					Description: "TTS channel",
					Required:    false,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Text Channel", Value: setupModeTextChannel},
						{Name: "New Thread", Value: setupModeNewThread},
						{Name: "Voice Channel", Value: setupModeVoiceChannel},
					},
				},
			},
		},
		{Name: "stop", Description: "Stop tts"},
		{Name: "skip", Description: "skip tts message"},
		{Name: "config", Description: "Config"},
	}
}

// Register overwrites the bot's global application commands.
func (h *Handler) Register(appID string) error {
	if _, err := h.session.ApplicationCommandBulkOverwrite(appID, "", Definitions()); err != nil {
		return fmt.Errorf("register application commands: %w", err)
	}
	return nil
}

// HandleInteraction is the gateway InteractionCreate entry point.
func (h *Handler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		h.handleCommand(s, i)
	case discordgo.InteractionMessageComponent:
		h.handleComponent(s, i)
	case discordgo.InteractionModalSubmit:
		h.handleModal(s, i)
	}
}

func (h *Handler) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name
	var err error
	switch name {
	case "setup":
		err = h.handleSetup(s, i)
	case "stop":
		err = h.handleStop(s, i)
	case "skip":
		err = h.handleSkip(s, i)
	case "config":
		err = h.handleConfig(s, i)
	default:
		return
	}
	if err != nil {
		h.logger.Error("command /"+name+" failed", err)
	}
}

// respond sends the initial interaction response.
func (h *Handler) respond(s *discordgo.Session, i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

// respondText sends a plain message response.
func (h *Handler) respondText(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	return h.respond(s, i, &discordgo.InteractionResponseData{Content: content})
}

// respondEphemeral sends a message only the invoking user can see.
func (h *Handler) respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	return h.respond(s, i, &discordgo.InteractionResponseData{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
}

// updateMessage replaces the component interaction's source message.
func (h *Handler) updateMessage(s *discordgo.Session, i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: data,
	})
}

// invokerVoiceChannel returns the voice channel the invoking user is in,
// or "" when they are not in one.
func (h *Handler) invokerVoiceChannel(s *discordgo.Session, i *discordgo.InteractionCreate) string {
	user := interactionUser(i)
	if user == nil {
		return ""
	}
	vs, err := s.State.VoiceState(i.GuildID, user.ID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}
