// Package log provides the bot's logger: zerolog console output with an
// optional mirror to a Discord log channel.
package log

import (
	"fmt"
	"os"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// Logger writes structured logs to the console and, when a log channel is
// configured, mirrors warnings and errors to Discord.
type Logger struct {
	zl           zerolog.Logger
	session      *discordgo.Session
	logChannelID string

	mu    sync.Mutex
	ready bool
}

// New creates a Logger. session and channelID may be empty, in which case
// logs go to the console only.
func New(session *discordgo.Session, channelID string) *Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	l := &Logger{
		zl:           zl,
		session:      session,
		logChannelID: channelID,
	}

	if session != nil {
		// Hold Discord mirroring until the gateway reports ready.
		session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
			l.mu.Lock()
			l.ready = true
			l.mu.Unlock()
		})
	}

	return l
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.zl.Debug().Msg(msg)
}

// Info logs an informational message.
func (l *Logger) Info(msg string) {
	l.zl.Info().Msg(msg)
}

// Warn logs a warning and mirrors it to the log channel.
func (l *Logger) Warn(msg string) {
	l.zl.Warn().Msg(msg)
	l.post("⚠️ " + msg)
}

// Error logs an error with its context and mirrors it to the log channel.
func (l *Logger) Error(context string, err error) {
	l.zl.Error().Err(err).Msg(context)
	l.post(fmt.Sprintf("❌ %s: `%v`", context, err))
}

// Fatal logs an error and exits the process.
func (l *Logger) Fatal(context string, err error) {
	l.post(fmt.Sprintf("💀 %s: `%v`", context, err))
	l.zl.Fatal().Err(err).Msg(context)
}

// With returns a zerolog event builder for structured fields. Console only.
func (l *Logger) With() zerolog.Context {
	return l.zl.With()
}

func (l *Logger) post(msg string) {
	if l.session == nil || l.logChannelID == "" {
		return
	}
	l.mu.Lock()
	ready := l.ready
	l.mu.Unlock()
	if !ready {
		return
	}
	if len(msg) > 1900 {
		msg = msg[:1900] + "..."
	}
	// Best effort. A failed log post must never take the bot down.
	go func() {
		_, _ = l.session.ChannelMessageSend(l.logChannelID, msg)
	}()
}
