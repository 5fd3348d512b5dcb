// Package database is the redis-backed persistence layer: per-guild and
// per-user configuration plus the durable record of active TTS sessions.
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes.
const (
	serverPrefix     = "discord:server:"
	userPrefix       = "discord:user:"
	instancePrefix   = "tts:instance:"
	instanceIDSetKey = "tts:instances"
)

// DB is the redis persistence client.
type DB struct {
	rdb *redis.Client
}

// New connects to redis and verifies the connection.
func New(addr, password string, db int) (*DB, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}

	return &DB{rdb: rdb}, nil
}

// GetServerConfigOrDefault loads a guild's config, creating and persisting
// the default on first read. Never returns "no config".
func (db *DB) GetServerConfigOrDefault(ctx context.Context, guildID string) (*ServerConfig, error) {
	var cfg ServerConfig
	found, err := db.getJSON(ctx, serverPrefix+guildID, &cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		def := defaultServerConfig()
		if err := db.SetServerConfig(ctx, guildID, def); err != nil {
			return nil, err
		}
		return def, nil
	}
	return &cfg, nil
}

// SetServerConfig persists a guild's config.
func (db *DB) SetServerConfig(ctx context.Context, guildID string, cfg *ServerConfig) error {
	return db.setJSON(ctx, serverPrefix+guildID, cfg)
}

// GetUserConfigOrDefault loads a user's config, creating and persisting
// the default on first read.
func (db *DB) GetUserConfigOrDefault(ctx context.Context, userID string) (*UserConfig, error) {
	var cfg UserConfig
	found, err := db.getJSON(ctx, userPrefix+userID, &cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		def := defaultUserConfig()
		if err := db.SetUserConfig(ctx, userID, def); err != nil {
			return nil, err
		}
		return def, nil
	}
	return &cfg, nil
}

// SetUserConfig persists a user's config.
func (db *DB) SetUserConfig(ctx context.Context, userID string, cfg *UserConfig) error {
	return db.setJSON(ctx, userPrefix+userID, cfg)
}

// SaveInstance persists an active session record and adds the guild to
// the active-instance set.
func (db *DB) SaveInstance(ctx context.Context, rec *InstanceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("could not marshal instance record: %w", err)
	}

	pipe := db.rdb.Pipeline()
	pipe.Set(ctx, instancePrefix+rec.GuildID, data, 0)
	pipe.SAdd(ctx, instanceIDSetKey, rec.GuildID)
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteInstance removes a session record and its set membership.
func (db *DB) DeleteInstance(ctx context.Context, guildID string) error {
	pipe := db.rdb.Pipeline()
	pipe.Del(ctx, instancePrefix+guildID)
	pipe.SRem(ctx, instanceIDSetKey, guildID)
	_, err := pipe.Exec(ctx)
	return err
}

// ListInstances loads every persisted session record. Set members whose
// record is missing or corrupt come back as stale guild IDs so the
// caller can delete them; transient read errors are skipped without
// being marked stale.
func (db *DB) ListInstances(ctx context.Context) ([]*InstanceRecord, []string, error) {
	guildIDs, err := db.rdb.SMembers(ctx, instanceIDSetKey).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("could not list instance guild ids: %w", err)
	}

	records := make([]*InstanceRecord, 0, len(guildIDs))
	var stale []string
	for _, guildID := range guildIDs {
		var rec InstanceRecord
		found, err := db.getJSON(ctx, instancePrefix+guildID, &rec)
		if err != nil {
			continue
		}
		if !found {
			stale = append(stale, guildID)
			continue
		}
		records = append(records, &rec)
	}
	return records, stale, nil
}

func (db *DB) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := db.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		// A corrupt blob behaves like a missing one so the default
		// config path can repair it.
		return false, nil
	}
	return true, nil
}

func (db *DB) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not marshal %s: %w", key, err)
	}
	return db.rdb.Set(ctx, key, data, 0).Err()
}
