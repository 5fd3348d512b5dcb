// Package session creates the Discord gateway session.
package session

import (
	"github.com/bwmarrin/discordgo"
)

// New creates a Discord session with the gateway intents this bot needs:
// guild metadata, messages with content, and voice states.
func New(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers |
		discordgo.IntentMessageContent

	s.State.TrackVoice = true
	s.State.TrackMembers = true

	return s, nil
}
