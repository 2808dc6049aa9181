package engine

import (
	"context"

	"github.com/sensen312/GobTrades-sub000/internal/auth"
	"github.com/sensen312/GobTrades-sub000/internal/bus"
	"github.com/sensen312/GobTrades-sub000/internal/cache"
	"github.com/sensen312/GobTrades-sub000/internal/config"
	"github.com/sensen312/GobTrades-sub000/internal/conn"
	"github.com/sensen312/GobTrades-sub000/internal/history"
	"github.com/sensen312/GobTrades-sub000/internal/hub"
	"github.com/sensen312/GobTrades-sub000/internal/lock"
	"github.com/sensen312/GobTrades-sub000/internal/logging"
	"github.com/sensen312/GobTrades-sub000/internal/market"
	"github.com/sensen312/GobTrades-sub000/internal/rest"
	"github.com/sensen312/GobTrades-sub000/internal/session"
	"github.com/sensen312/GobTrades-sub000/internal/status"
	"github.com/sensen312/GobTrades-sub000/internal/store"
	"github.com/sensen312/GobTrades-sub000/internal/unread"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile passed to the fx module.
type Params struct {
	Profile string
}

// Module returns the fx module for the chat engine, composing all
// providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("engine",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideCache,
			provideStore,
			provideRESTClient,
			provideTracker,
			provideDialer,
			provideManager,
			providePersister,
			provideSyncer,
			provideMarketClock,
			provideIdentity,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	logPath, err := session.LogPath(p.Profile)
	if err != nil {
		return nil, err
	}
	return logging.New(logPath, p.Profile)
}

func provideConfig(p Params, logger *zap.Logger) (*config.Profile, error) {
	path, err := session.ProfileConfigPath(p.Profile)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadProfile(path)
	if err != nil {
		logger.Info("no profile config, writing defaults", zap.String("path", path))
		cfg = config.DefaultProfile()
		if err := config.SaveProfile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	dir, err := session.EnsureDir(p.Profile)
	if err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideCache(p Params, logger *zap.Logger) (*cache.DB, error) {
	dbPath, err := session.CachePath(p.Profile)
	if err != nil {
		return nil, err
	}
	db, err := cache.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideStore(b *bus.Bus, logger *zap.Logger) *store.Store {
	return store.New(b, logger)
}

func provideRESTClient(cfg *config.Profile, logger *zap.Logger) *rest.Client {
	return rest.NewClient(cfg.APIBaseURL, logger)
}

func provideTracker(client *rest.Client, b *bus.Bus, logger *zap.Logger) *unread.Tracker {
	return unread.New(client, b, logger)
}

func provideDialer(cfg *config.Profile, logger *zap.Logger) *hub.WebsocketDialer {
	return hub.NewDialer(cfg.HubURL, logger)
}

func provideManager(d *hub.WebsocketDialer, m *status.Machine, s *store.Store, t *unread.Tracker, b *bus.Bus, cfg *config.Profile, logger *zap.Logger) *conn.Manager {
	opts := conn.DefaultOptions()
	opts.SendTimeout = cfg.SendTimeout()
	if backoff := cfg.Backoff(); backoff != nil {
		opts.Backoff = backoff
	}
	return conn.NewManager(d, m, s, t, b, opts, logger)
}

func providePersister(db *cache.DB, b *bus.Bus, logger *zap.Logger) *cache.Persister {
	return cache.NewPersister(db, b, logger)
}

func provideSyncer(client *rest.Client, s *store.Store, t *unread.Tracker, db *cache.DB, logger *zap.Logger) *history.Syncer {
	return history.NewSyncer(client, s, t, db, logger)
}

func provideMarketClock(cfg *config.Profile, b *bus.Bus, logger *zap.Logger) (*market.Clock, error) {
	return market.NewClock(cfg.Market.OpenCron, cfg.Market.CloseCron, b, logger)
}

func provideIdentity(b *bus.Bus, logger *zap.Logger) *auth.Identity {
	return auth.New(b, logger)
}

// watchIdentity reacts to sign-in and sign-out: a new user id restarts
// the hub connection and re-syncs history, an empty id tears down.
func watchIdentity(events <-chan bus.Event, mgr *conn.Manager, client *rest.Client, syncer *history.Syncer, logger *zap.Logger) {
	for ev := range events {
		userID, ok := ev.Payload.(string)
		if !ok {
			continue
		}
		if userID == "" {
			mgr.Stop()
			client.SetIdentity("")
			continue
		}
		client.SetIdentity(userID)
		mgr.Start(userID)
		go func() {
			if _, err := syncer.Bootstrap(context.Background()); err != nil {
				logger.Warn("bootstrap after sign-in failed", zap.Error(err))
			}
		}()
	}
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, cfg *config.Profile, b *bus.Bus, mgr *conn.Manager, persister *cache.Persister, clock *market.Clock, client *rest.Client, syncer *history.Syncer, identity *auth.Identity, logger *zap.Logger) {
	var cancelWatch func()

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			persister.Start(context.Background())
			clock.Start()

			events, cancel := b.Subscribe("auth.", 16)
			cancelWatch = cancel
			go watchIdentity(events, mgr, client, syncer, logger)

			if cfg.UserID != "" {
				identity.Set(cfg.UserID)
			} else {
				logger.Info("no user configured, waiting for sign-in")
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			mgr.Stop()
			clock.Stop()
			persister.Stop()
			if cancelWatch != nil {
				cancelWatch()
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("engine stopped")
			return nil
		},
	})
}
