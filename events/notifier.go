package events

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Notifier posts bot-origin notices through the Discord REST API. It
// implements interfaces.Notifier for the connection monitor.
type Notifier struct {
	session *discordgo.Session
}

// NewNotifier creates a Notifier over an open session.
func NewNotifier(session *discordgo.Session) *Notifier {
	return &Notifier{session: session}
}

// PostReconnected posts the automatic-reconnection embed to a text
// channel.
func (n *Notifier) PostReconnected(channelID string) error {
	if channelID == "" {
		return nil
	}
	embed := &discordgo.MessageEmbed{
		Title:       "🔄 自動再接続しました",
		Description: "読み上げを停止したい場合は `/stop` コマンドを使用してください。",
		Color:       0x00ff00,
	}
	if _, err := n.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		return fmt.Errorf("post reconnection notice to %s: %w", channelID, err)
	}
	return nil
}
