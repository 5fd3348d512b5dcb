package commands

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/mii443/ncb-tts-r2/ncberr"
)

// handleStop tears the guild's session down and archives the TTS thread
// if the primary text channel was one.
func (h *Handler) handleStop(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	if i.GuildID == "" {
		return h.respondEphemeral(s, i, "このコマンドはサーバーでのみ使用可能です．")
	}
	if h.invokerVoiceChannel(s, i) == "" {
		return h.respondEphemeral(s, i, "ボイスチャンネルに参加してから実行してください．")
	}

	primary, err := h.manager.Stop(context.Background(), i.GuildID)
	if err != nil {
		if errors.Is(err, ncberr.ErrInstanceNotFound) {
			return h.respondEphemeral(s, i, "すでに停止しています")
		}
		return err
	}

	if err := h.respondText(s, i, "停止しました"); err != nil {
		return err
	}

	h.archiveThread(s, primary)
	return nil
}

// archiveThread archives the primary text channel when it is a thread
// the bot created for reading. Best-effort; plain channels just fail the
// edit and are ignored.
func (h *Handler) archiveThread(s *discordgo.Session, channelID string) {
	ch, err := s.State.Channel(channelID)
	if err != nil {
		ch, err = s.Channel(channelID)
	}
	if err != nil || ch == nil || !ch.IsThread() {
		return
	}
	archived := true
	if _, err := s.ChannelEditComplex(channelID, &discordgo.ChannelEdit{Archived: &archived}); err != nil {
		h.logger.Error("could not archive tts thread "+channelID, err)
	}
}
