package database

import (
	"github.com/mii443/ncb-tts-r2/dictionary"
	"github.com/mii443/ncb-tts-r2/tts"
)

// ServerConfig is the per-guild persisted configuration.
type ServerConfig struct {
	Dictionary            dictionary.Dictionary `json:"dictionary"`
	AutostartChannelID    string                `json:"autostart_channel_id,omitempty"`
	AutostartTextChannel  string                `json:"autostart_text_channel_id,omitempty"`
	VoiceStateAnnounce    *bool                 `json:"voice_state_announce,omitempty"`
	ReadUsername          *bool                 `json:"read_username,omitempty"`
}

// AnnounceEnabled reports the voice-state-announcement toggle, on by
// default.
func (c *ServerConfig) AnnounceEnabled() bool {
	return c.VoiceStateAnnounce == nil || *c.VoiceStateAnnounce
}

// ReadUsernameEnabled reports the speaker-name-announcement toggle, on by
// default.
func (c *ServerConfig) ReadUsernameEnabled() bool {
	return c.ReadUsername == nil || *c.ReadUsername
}

// UserConfig is the per-user persisted configuration.
type UserConfig struct {
	Engine          tts.Engine               `json:"tts_type"`
	GCPVoice        tts.VoiceSelectionParams `json:"gcp_tts_voice"`
	VoicevoxSpeaker int64                    `json:"voicevox_speaker"`
}

// InstanceRecord is the persisted shape of an active TTS session. The
// last-spoken-message memory is transient and deliberately absent.
type InstanceRecord struct {
	GuildID        string   `json:"guild_id"`
	VoiceChannelID string   `json:"voice_channel_id"`
	TextChannelIDs []string `json:"text_channel_ids"`
}

func defaultServerConfig() *ServerConfig {
	return &ServerConfig{Dictionary: dictionary.NewDictionary()}
}

func defaultUserConfig() *UserConfig {
	return &UserConfig{
		Engine:          tts.EngineGCP,
		GCPVoice:        tts.DefaultVoice,
		VoicevoxSpeaker: tts.DefaultVoicevoxSpeaker,
	}
}
