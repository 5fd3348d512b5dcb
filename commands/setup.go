package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/mii443/ncb-tts-r2/ncberr"
)

const (
	setupModeTextChannel  = "TEXT_CHANNEL"
	setupModeNewThread    = "NEW_THREAD"
	setupModeVoiceChannel = "VOICE_CHANNEL"
)

// handleSetup starts a session bound to the invoking user's voice
// channel. The optional mode option picks which text channels are read.
func (h *Handler) handleSetup(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	if i.GuildID == "" {
		return h.respondEphemeral(s, i, "このコマンドはサーバーでのみ使用可能です．")
	}

	voiceChannelID := h.invokerVoiceChannel(s, i)
	if voiceChannelID == "" {
		return h.respondEphemeral(s, i, "ボイスチャンネルに参加してから実行してください．")
	}

	if h.manager.Registry().Contains(i.GuildID) {
		return h.respondEphemeral(s, i, "すでにセットアップしています．")
	}

	textChannelIDs, err := h.resolveTextChannels(s, i, voiceChannelID)
	if err != nil {
		h.logger.Error("could not resolve setup text channels", err)
		return h.respondEphemeral(s, i, "セットアップに失敗しました．")
	}

	ctx := context.Background()
	if _, err := h.manager.Start(ctx, i.GuildID, voiceChannelID, textChannelIDs, true); err != nil {
		if errors.Is(err, ncberr.ErrAlreadyRunning) {
			return h.respondEphemeral(s, i, "すでにセットアップしています．")
		}
		h.logger.Error("setup failed for guild "+i.GuildID, err)
		return h.respondEphemeral(s, i, "ボイスチャンネルへの接続に失敗しました．")
	}

	primary := textChannelIDs[0]
	content := fmt.Sprintf("TTS Channel: <#%s>", primary)
	if primary == voiceChannelID {
		content += "\nボイスチャンネルを右クリックし `チャットを開く` を押して開くことが出来ます。"
	}
	if err := h.respondText(s, i, content); err != nil {
		return err
	}

	h.postSetupNotice(s, primary)
	return nil
}

func (h *Handler) resolveTextChannels(s *discordgo.Session, i *discordgo.InteractionCreate, voiceChannelID string) ([]string, error) {
	mode := ""
	if opts := i.ApplicationCommandData().Options; len(opts) > 0 {
		mode = opts[0].StringValue()
	}

	switch mode {
	case setupModeTextChannel:
		return []string{i.ChannelID}, nil
	case setupModeNewThread:
		thread, err := s.ThreadStart(i.ChannelID, "TTS", discordgo.ChannelTypeGuildPublicThread, 60)
		if err != nil {
			return nil, fmt.Errorf("create tts thread: %w", err)
		}
		return []string{thread.ID}, nil
	case setupModeVoiceChannel:
		return []string{voiceChannelID}, nil
	default:
		// Read both the invoking channel and the voice channel's chat.
		if voiceChannelID != i.ChannelID {
			return []string{i.ChannelID, voiceChannelID}, nil
		}
		return []string{voiceChannelID}, nil
	}
}

// postSetupNotice posts the startup embed with VOICEVOX credits to the
// session's primary text channel.
func (h *Handler) postSetupNotice(s *discordgo.Session, channelID string) {
	credits := "VOICEVOX API unavailable"
	if speakers, err := h.voicevox.ListSpeakers(context.Background()); err == nil {
		names := make([]string, 0, len(speakers))
		for _, sp := range speakers {
			names = append(names, sp[0])
		}
		credits = strings.Join(names, "\n")
	} else {
		h.logger.Error("could not list VOICEVOX speakers", err)
	}

	embed := &discordgo.MessageEmbed{
		Title: "読み上げ",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "VOICEVOXクレジット", Value: "```\n" + credits + "\n```"},
			{Name: "設定コマンド", Value: "`/config`"},
		},
	}
	if _, err := s.ChannelMessageSendEmbed(channelID, embed); err != nil {
		h.logger.Error("could not post setup notice", err)
	}
}
