// Package app wires every component together and runs the bot.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"

	"github.com/mii443/ncb-tts-r2/commands"
	"github.com/mii443/ncb-tts-r2/config"
	"github.com/mii443/ncb-tts-r2/database"
	"github.com/mii443/ncb-tts-r2/dictionary"
	"github.com/mii443/ncb-tts-r2/events"
	"github.com/mii443/ncb-tts-r2/instance"
	"github.com/mii443/ncb-tts-r2/log"
	"github.com/mii443/ncb-tts-r2/monitor"
	"github.com/mii443/ncb-tts-r2/session"
	"github.com/mii443/ncb-tts-r2/tts"
	"github.com/mii443/ncb-tts-r2/voice"
)

// App owns the long-lived components of the bot.
type App struct {
	Config  *config.Config
	Session *discordgo.Session
	Logger  *log.Logger
	DB      *database.DB
	Manager *instance.Manager
	Monitor *monitor.ConnectionMonitor
}

// New loads configuration and constructs every component, bottom-up.
func New(configPath string) (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	s, err := session.New(cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("create Discord session: %w", err)
	}

	logger := log.New(s, cfg.Discord.LogChannelID)

	db, err := database.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	ctx := context.Background()
	gcp, err := tts.NewGCPBackend(ctx)
	if err != nil {
		return nil, fmt.Errorf("create Google TTS client: %w", err)
	}
	voicevox := tts.NewVoicevoxBackend(cfg.TTS.VoicevoxKey, cfg.TTS.VoicevoxAPIURL)

	synth, err := tts.NewSynthesizer(
		map[tts.Engine]tts.Backend{
			tts.EngineGCP:      gcp,
			tts.EngineVoicevox: voicevox,
		},
		tts.SynthesizerOptions{
			CacheSize:        cfg.Tuning.AudioCacheSize,
			MaxAttempts:      cfg.Tuning.SynthesisMaxAttempts,
			RetryDelay:       cfg.Tuning.SynthesisRetryDelay,
			AttemptTimeout:   cfg.Tuning.SynthesisAttemptTimeout,
			BreakerThreshold: cfg.Tuning.BreakerThreshold,
			BreakerTimeout:   cfg.Tuning.BreakerTimeout,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("create synthesizer: %w", err)
	}

	regexCache, err := dictionary.NewRegexCache(cfg.Tuning.RegexCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create regex cache: %w", err)
	}
	normalizer := dictionary.NewNormalizer(regexCache, logger)

	transport := voice.NewTransport(s, logger)
	manager := instance.NewManager(instance.NewRegistry(), db, synth, transport, normalizer, logger)

	cmds := commands.NewHandler(s, manager, db, gcp, voicevox, logger)
	handler := events.NewHandler(manager, db, cmds, logger)
	notifier := events.NewNotifier(s)

	mon := monitor.New(
		manager, transport, notifier, logger,
		cfg.Tuning.MonitorInterval,
		cfg.Tuning.MaxReconnectAttempts,
		cfg.Tuning.ReconnectBackoffBase,
	)

	s.AddHandler(handler.Ready)
	s.AddHandler(handler.MessageCreate)
	s.AddHandler(handler.VoiceStateUpdate)
	s.AddHandler(cmds.HandleInteraction)

	return &App{
		Config:  cfg,
		Session: s,
		Logger:  logger,
		DB:      db,
		Manager: manager,
		Monitor: mon,
	}, nil
}

// Run opens the gateway connection and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	if err := a.Session.Open(); err != nil {
		return fmt.Errorf("open Discord connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Monitor.Run(ctx)

	a.Logger.Info("bot is now running, press CTRL-C to exit")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	cancel()
	if err := a.Session.Close(); err != nil {
		a.Logger.Error("error closing Discord session", err)
	}
	a.Logger.Info("bot shut down")
	return nil
}
