package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/fitsched/internal/artifacts"
	"github.com/example/fitsched/internal/bookings"
	"github.com/example/fitsched/internal/config"
	"github.com/example/fitsched/internal/crypto"
	"github.com/example/fitsched/internal/db"
	"github.com/example/fitsched/internal/engine"
	"github.com/example/fitsched/internal/heitz"
	"github.com/example/fitsched/internal/metrics"
	"github.com/example/fitsched/internal/migrate"
	"github.com/example/fitsched/internal/notify"
	"github.com/example/fitsched/internal/planning"
	"github.com/example/fitsched/internal/retry"
	"github.com/example/fitsched/internal/users"
	"github.com/example/fitsched/internal/weather"
)

// openDB connects, pings and optionally migrates. Every command that touches
// the database goes through here.
func openDB(ctx context.Context, cfg config.Config, migrateUp bool) (*db.DB, error) {
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if migrateUp {
		if err := migrate.Up(ctx, d); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

// monitor bundles everything the polling daemon needs.
type monitor struct {
	engine    *engine.Engine
	users     *users.Repo
	attempts  *bookings.Repo
	snapshots *planning.Store
	registry  *prometheus.Registry
}

func buildMonitor(cfg config.Config, d *db.DB, log *slog.Logger) (*monitor, error) {
	sealer, err := crypto.New(cfg.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("credential key: %w", err)
	}

	userRepo := users.NewRepo(d, sealer)
	attemptRepo := bookings.NewRepo(d)
	snapStore := planning.NewStore(d)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	var wc *weather.Client
	if cfg.WeatherAPIKey != "" {
		wc = weather.NewClient(cfg.WeatherAPIKey)
	}
	dispatcher := notify.NewDispatcher(notify.Options{
		WebhookURL:        cfg.DiscordWebhookURL,
		Enabled:           cfg.DiscordEnabled,
		Username:          cfg.DiscordUsername,
		AvatarURL:         cfg.DiscordAvatarURL,
		City:              cfg.WeatherCity,
		Weather:           wc,
		Log:               log,
		OnDeliveryFailure: collector.NotifyFailed,
	})

	site := heitz.NewClient(heitz.Options{
		BaseURL:  cfg.SiteBaseURL,
		CenterID: cfg.CenterID,
		Monitor:  heitz.Credentials{Login: cfg.MonitorEmail, Password: cfg.MonitorPassword},
		Timeout:  cfg.PageTimeout,
		Sink:     artifacts.NewSink(cfg.ArtifactsDir, log),
		Log:      log,
	})

	fetchPolicy := &retry.Policy{
		Name:           "fetch",
		MaxAttempts:    cfg.RetryAttempts,
		Delay:          cfg.RetryDelay,
		OutageInterval: cfg.OutageRetryInterval,
		Clock:          retry.RealClock{},
		Log:            log,
		Alerter:        dispatcher,
		OnAttemptFailure: func(error) {
			collector.FetchFailed()
		},
		OnOutage: collector.OutageEntered,
	}
	bookPolicy := &retry.Policy{
		Name:           "book",
		MaxAttempts:    cfg.RetryAttempts,
		Delay:          cfg.RetryDelay,
		OutageInterval: cfg.OutageRetryInterval,
		Clock:          retry.RealClock{},
		Log:            log,
		Alerter:        dispatcher,
		OnOutage:       collector.OutageEntered,
		// a member's rejected credentials fail that member's attempt only;
		// the book call site must stay available for everyone else
		Isolate: func(err error) bool {
			var ae *heitz.AuthError
			return errors.As(err, &ae)
		},
	}

	eng := engine.New(
		engine.Options{
			TargetDayOffset: cfg.TargetDayOffset,
			CheckInterval:   cfg.CheckInterval,
			CheckStart:      cfg.CheckStartTime,
			CheckEnd:        cfg.CheckEndTime,
			ShutdownGrace:   cfg.ShutdownGrace,
		},
		site, snapStore, userRepo, attemptRepo, dispatcher,
		fetchPolicy, bookPolicy, retry.RealClock{}, log, collector,
	)

	return &monitor{
		engine:    eng,
		users:     userRepo,
		attempts:  attemptRepo,
		snapshots: snapStore,
		registry:  registry,
	}, nil
}
