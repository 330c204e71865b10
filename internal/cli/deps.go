package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/evcraddock/listings/internal/db"
	"github.com/evcraddock/listings/internal/geocode"
	"github.com/evcraddock/listings/internal/kv"
	"github.com/evcraddock/listings/internal/logging"
	"github.com/evcraddock/listings/internal/paragon"
	"github.com/evcraddock/listings/internal/property"
)

// deps is everything a feed-backed command needs.
type deps struct {
	cfg        Config
	feed       *paragon.Client
	properties *property.Service
	closers    []func() error
}

// newDeps loads configuration, installs the logger writing to logTo and
// wires the store, feed client and cached property service.
func newDeps(ctx context.Context, logTo io.Writer) (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(logging.NewHandler(logTo, cfg.DevMode)))

	if err := cfg.requireFeed(); err != nil {
		return nil, err
	}

	rt := &deps{cfg: cfg}
	store, err := rt.openStore(ctx)
	if err != nil {
		return nil, err
	}

	var opts []paragon.Option
	if cfg.Geocoder.URL != "" {
		g, err := geocode.NewClient(cfg.Geocoder.URL, cfg.Geocoder.Timeout)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("configuring geocoder: %w", err)
		}
		opts = append(opts, paragon.WithGeocoder(g))
	}

	feed, err := paragon.New(cfg.feedConfig(), store, opts...)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("configuring feed client: %w", err)
	}
	rt.feed = feed
	rt.properties = property.NewService(feed, store, cfg.Cache.TTL)
	return rt, nil
}

// openStore opens the configured key-value backend.
func (rt *deps) openStore(ctx context.Context) (kv.Store, error) {
	switch rt.cfg.Cache.Backend {
	case "memory":
		return kv.NewMemory(), nil

	case "redis":
		r := kv.NewRedis(rt.cfg.Redis.Addr, rt.cfg.Redis.Password, rt.cfg.Redis.DB, rt.cfg.Redis.Prefix)
		if err := r.Ping(ctx); err != nil {
			if cerr := r.Close(); cerr != nil {
				slog.Debug("closing redis client", "error", cerr)
			}
			return nil, fmt.Errorf("connecting to redis at %s: %w", rt.cfg.Redis.Addr, err)
		}
		rt.closers = append(rt.closers, r.Close)
		return r, nil
	}

	path := flagDB
	if path == "" {
		var err error
		path, err = db.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, database.Close)

	s := kv.NewSQLite(database)
	if n, err := s.Purge(ctx); err != nil {
		slog.Warn("purging expired cache entries", "error", err)
	} else if n > 0 {
		slog.Debug("purged expired cache entries", "count", n)
	}
	return s, nil
}

// close releases the store, logging any error to stderr.
func (rt *deps) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing store: %v\n", err)
		}
	}
	rt.closers = nil
}
