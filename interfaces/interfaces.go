// Package interfaces defines the narrow contracts between the session
// core and its external collaborators, so each side can be replaced with
// a fake in tests.
package interfaces

import (
	"context"

	"github.com/mii443/ncb-tts-r2/audio"
	"github.com/mii443/ncb-tts-r2/database"
	"github.com/mii443/ncb-tts-r2/tts"
)

// Store is the persistence capability: JSON blobs by key plus the
// active-session set.
type Store interface {
	GetServerConfigOrDefault(ctx context.Context, guildID string) (*database.ServerConfig, error)
	SetServerConfig(ctx context.Context, guildID string, cfg *database.ServerConfig) error
	GetUserConfigOrDefault(ctx context.Context, userID string) (*database.UserConfig, error)
	SetUserConfig(ctx context.Context, userID string, cfg *database.UserConfig) error
	SaveInstance(ctx context.Context, rec *database.InstanceRecord) error
	DeleteInstance(ctx context.Context, guildID string) error
	// ListInstances returns every loadable session record plus the guild
	// IDs whose set membership points at a missing or corrupt record.
	ListInstances(ctx context.Context) (records []*database.InstanceRecord, stale []string, err error)
}

// Member is a voice channel occupant.
type Member struct {
	UserID string
	Bot    bool
}

// Transport is the voice transport capability over the chat platform.
type Transport interface {
	// Join binds the bot to a voice channel, replacing any existing
	// binding for the guild.
	Join(guildID, channelID string) error

	// Leave drops the guild's voice binding and its playback queue.
	Leave(guildID string) error

	// CurrentChannel reports the channel the bot is bound to right now.
	CurrentChannel(guildID string) (string, bool)

	// Enqueue appends audio to the guild's sequential playback queue.
	Enqueue(guildID string, h *audio.Handle)

	// Skip drops the currently playing queue head. No-op when idle.
	Skip(guildID string)

	// ListMembers returns the occupants of a voice channel.
	ListMembers(guildID, channelID string) ([]Member, error)
}

// Synthesizer is the synthesis capability consumed by sessions.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (*audio.Handle, error)
}

// Notifier posts bot-origin notices to text channels.
type Notifier interface {
	PostReconnected(channelID string) error
}
