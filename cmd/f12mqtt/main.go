package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/f12mqtt/internal/api"
	"github.com/snarg/f12mqtt/internal/config"
	"github.com/snarg/f12mqtt/internal/event"
	"github.com/snarg/f12mqtt/internal/feed"
	"github.com/snarg/f12mqtt/internal/model"
	"github.com/snarg/f12mqtt/internal/mqttclient"
	"github.com/snarg/f12mqtt/internal/pipeline"
	"github.com/snarg/f12mqtt/internal/playback"
	"github.com/snarg/f12mqtt/internal/publisher"
	"github.com/snarg/f12mqtt/internal/recorder"
	"github.com/snarg/f12mqtt/internal/settings"
	"github.com/snarg/f12mqtt/internal/storage"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level")
	flag.StringVar(&overrides.MQTTBrokerURL, "mqtt-broker", "", "MQTT broker URL")
	flag.StringVar(&overrides.RecordingsDir, "recordings-dir", "", "recordings directory")
	flag.StringVar(&overrides.Favourites, "favourites", "", "comma-separated favourite driver numbers")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("f12mqtt starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Settings store; env config seeds values on first run only
	store, err := settings.Open(cfg.SettingsDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open settings store")
	}
	defer store.Close()

	favourites, err := store.Favourites()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read favourites")
	}
	if favourites == nil {
		favourites = cfg.FavouriteDrivers()
		if len(favourites) > 0 {
			if err := store.SetFavourites(favourites); err != nil {
				log.Warn().Err(err).Msg("failed to seed favourites")
			}
		}
	}
	notifierEnabled, err := store.NotifierEnabled(cfg.NotifierEnabled)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read notifier toggle")
	}

	// Publisher topic tree, needed before MQTT for the Last-Will topic
	willTopic := cfg.TopicPrefix + "/status"

	// MQTT
	mqtt, err := mqttclient.Connect(mqttclient.Options{
		BrokerURL:   cfg.MQTTBrokerURL,
		ClientID:    cfg.MQTTClientID,
		Username:    cfg.MQTTUsername,
		Password:    cfg.MQTTPassword,
		WillTopic:   willTopic,
		WillPayload: "offline",
		Log:         log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
	}
	defer mqtt.Close()

	pub := publisher.New(publisher.Options{
		Client:          mqtt,
		Prefix:          cfg.TopicPrefix,
		DiscoveryPrefix: cfg.DiscoveryPrefix,
		Favourites:      favourites,
		Notifier: publisher.NotifierOptions{
			Enabled: notifierEnabled,
			Prefix:  cfg.NotifierPrefix,
		},
		Log: log,
	})
	pub.Online()
	defer pub.Offline()
	pub.RegisterPersistentEntities()
	publishSeasonTopics(store, pub, log)

	// Recordings
	rec := recorder.New(cfg.RecordingsDir, log)
	defer rec.Stop()
	recStore := recorder.NewStore(cfg.RecordingsDir, log)
	go func() {
		if err := recStore.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("recordings watcher unavailable, falling back to rescans")
		}
	}()

	// Optional S3 archival of finished recordings
	var archiver *storage.Archiver
	if cfg.S3ArchiveEnabled {
		s3, err := storage.NewS3Store(cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create s3 store")
		}
		if err := s3.HeadBucket(ctx); err != nil {
			log.Fatal().Err(err).Str("bucket", cfg.S3Bucket).Msg("s3 bucket check failed")
		}
		archiver = storage.NewArchiver(s3, cfg.RecordingsDir, log)
		archiver.Start(2)
		defer archiver.Stop()

		if cfg.S3RetentionDays > 0 {
			pruner := storage.NewPruner(cfg.RecordingsDir,
				time.Duration(cfg.S3RetentionDays)*24*time.Hour, s3, log)
			pruner.Start()
			defer pruner.Stop()
		}
	}

	// WebSocket fan-out
	hub := api.NewHub(log)

	// Live pipeline: feed -> accumulator -> detectors -> publisher/recorder/ws
	var live api.LiveSource
	var bridge *feed.Bridge
	if cfg.LiveEnabled {
		pipe := pipeline.New(pipeline.Options{Log: log})
		pipe.Register(pub)
		pipe.Register(hub.LiveObserver())

		var arch feed.Archiver
		if archiver != nil {
			arch = archiver
		}
		bridge = feed.NewBridge(feed.BridgeOptions{
			Pipeline:  pipe,
			Recorder:  rec,
			Publisher: pub,
			Archiver:  arch,
			Log:       log,
		})
		feedClient := feed.NewClient(feed.Options{
			BaseURL: cfg.FeedURL,
			Handler: bridge,
			Log:     log,
		})
		go feedClient.Run(ctx)
		live = pipe.Accumulator()
	}

	// Playback controller with its own pipeline, fanned out to MQTT and WS
	ctrl := playback.NewController(playback.Options{Log: log})
	ctrl.AddListener(hub)
	ctrl.AddListener(playbackPublisher{pub})

	commands := &api.Commands{
		Store:      recStore,
		Controller: ctrl,
		ArchiveURL: cfg.ArchiveURL,
		Log:        log,
	}
	if err := mqtt.Subscribe(pub.CommandTopic(), func(_ string, payload []byte) {
		commands.HandleMQTT(payload)
	}); err != nil {
		log.Warn().Err(err).Msg("playback command subscription failed")
	}

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.Options{
		Config:       cfg,
		Live:         live,
		MQTT:         mqtt,
		Commands:     commands,
		Settings:     store,
		Hub:          hub,
		OnFavourites: pub.SetFavourites,
		OnNotifier:   func(bool) {}, // applied at next restart; session entities are stable
		Version:      version,
		StartTime:    startTime,
		Log:          httpLog,
	})

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ctrl.Stop()
	if bridge != nil {
		bridge.EndSession()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("f12mqtt stopped")
}

// publishSeasonTopics republishes the persisted season standings and schedule
// so the retained topics survive broker restarts.
func publishSeasonTopics(store *settings.Store, pub *publisher.Publisher, log zerolog.Logger) {
	get := func(key string) string {
		v, err := store.Get(key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("settings read failed")
		}
		return v
	}
	pub.PublishStandings(
		get(settings.KeyLastWinner),
		get(settings.KeyDriversLeader),
		get(settings.KeyConstructorsLeader),
	)
	pub.PublishNextRace(get(settings.KeyNextRace))
}

// playbackPublisher mirrors playback output onto the MQTT topic tree.
type playbackPublisher struct {
	pub *publisher.Publisher
}

func (p playbackPublisher) OnLoaded(st playback.State) {
	// Playback counts as a session for the entity lifecycle, so replays
	// light up Home Assistant even with live ingest disabled.
	p.pub.RegisterSessionEntities()
	p.pub.PublishPlaybackState(st)
}

func (p playbackPublisher) OnStateChange(st playback.State) {
	p.pub.PublishPlaybackState(st)
}

func (p playbackPublisher) OnUpdate(u pipeline.Update, st playback.State) {
	p.pub.PublishState(u.Snapshot)
	p.pub.PublishPlaybackState(st)
}

func (p playbackPublisher) OnEvent(e event.Event) {
	p.pub.PublishEvent(e)
}

func (p playbackPublisher) OnSeek(snap *model.Snapshot, st playback.State) {
	p.pub.PublishState(snap)
	p.pub.PublishPlaybackState(st)
}

func (p playbackPublisher) OnFinished() {
	p.pub.PublishPlaybackState(playback.State{Status: playback.StatusStopped, Speed: 1})
}
