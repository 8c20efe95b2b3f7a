package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"xdao.co/nref/cache"
	"xdao.co/nref/config"
	"xdao.co/nref/contacts"
	"xdao.co/nref/relay"
	"xdao.co/nref/relay/registry"
	"xdao.co/nref/resolver"
	"xdao.co/nref/settingsdb"
	"xdao.co/nref/storage"
	"xdao.co/nref/storage/localfs"

	_ "xdao.co/nref/relay/grpcrelay"
	_ "xdao.co/nref/relay/wsrelay"
)

type globalOptions struct {
	dbPath  string
	verbose bool
	timeout time.Duration
}

// app is the state shared by every command of one process.
type app struct {
	logger   *slog.Logger
	db       *settingsdb.DB
	env      config.Env
	settings config.Settings
	contacts *contacts.Book
	cache    *cache.Cache
	timeout  time.Duration

	root     string
	store    storage.Store
	resolver *resolver.Resolver
}

func openApp(g globalOptions, errOut io.Writer) (*app, error) {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	env, err := config.ParseEnv()
	if err != nil {
		return nil, err
	}
	dbPath := g.dbPath
	if dbPath == "" {
		dbPath = env.DBPath
	}
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate home dir: %w", err)
		}
		dbPath = filepath.Join(home, ".xdao", "nref", "settings.db")
	}
	db, err := settingsdb.Open(dbPath)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	settings, err := config.Load(ctx, db)
	if err != nil {
		logger.Warn("stored settings invalid, using defaults", "err", err)
		settings = config.Defaults()
	}
	book, err := contacts.Load(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	timeout := g.timeout
	if timeout == 0 {
		timeout = env.FetchTimeout
	}
	a := &app{
		logger:   logger,
		db:       db,
		env:      env,
		settings: settings,
		contacts: book,
		cache:    cache.New(),
		timeout:  timeout,
	}
	if err := a.build(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// effective is the stored settings with environment overrides applied.
func (a *app) effective() config.Settings {
	return a.env.Apply(a.settings)
}

// build (re)creates the store and resolver from the effective settings. The
// memory cache survives a rebuild.
func (a *app) build() error {
	s := a.effective()
	primary, err := localfs.New(s.SaveFolder, localfs.Options{Logger: a.logger})
	if err != nil {
		return err
	}
	var store storage.Store = primary
	if len(a.env.BackupFolders) > 0 {
		backends := []storage.NamedStore{{Name: "primary", Store: primary}}
		for i, dir := range a.env.BackupFolders {
			b, err := localfs.New(dir, localfs.Options{Logger: a.logger})
			if err != nil {
				return err
			}
			backends = append(backends, storage.NamedStore{Name: fmt.Sprintf("backup%d", i+1), Store: b})
		}
		store = storage.Replicating{Backends: backends}
	}
	r, err := resolver.New(resolver.Options{
		Store: store,
		Cache: a.cache,
		Fetcher: &relay.Fetcher{
			Dialer:  registry.Dialer(),
			Timeout: a.timeout,
			Logger:  a.logger,
		},
		Relays: resolver.RelayListFunc(func() []string { return a.effective().EnabledRelays() }),
		Logger: a.logger,
	})
	if err != nil {
		return err
	}
	a.root = primary.Root()
	a.store = store
	a.resolver = r
	return nil
}

func (a *app) saveSettings(ctx context.Context) error {
	return config.Save(ctx, a.db, a.settings)
}

func (a *app) close() {
	a.resolver.Shutdown()
	_ = a.db.Close()
}
