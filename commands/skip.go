package commands

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/mii443/ncb-tts-r2/instance"
)

// handleSkip drops the currently playing utterance.
func (h *Handler) handleSkip(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	if i.GuildID == "" {
		return h.respondEphemeral(s, i, "このコマンドはサーバーでのみ使用可能です．")
	}
	if h.invokerVoiceChannel(s, i) == "" {
		return h.respondEphemeral(s, i, "ボイスチャンネルに参加してから実行してください．")
	}

	ok := h.manager.Registry().WithInstance(i.GuildID, func(inst *instance.Instance) {
		inst.Skip(context.Background())
	})
	if !ok {
		return h.respondEphemeral(s, i, "読み上げしていません")
	}

	return h.respondText(s, i, "スキップしました")
}
