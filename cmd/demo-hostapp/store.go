package main

import (
	"context"
	"log/slog"

	"cloud.google.com/go/datastore"
	"github.com/pkg/errors"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	sa "github.com/panyam/siteauth"
	"github.com/panyam/siteauth/stores/fs"
	"github.com/panyam/siteauth/stores/gae"
	gormstore "github.com/panyam/siteauth/stores/gorm"
	"github.com/panyam/siteauth/stores/postgres"
)

// buildAdapter opens the configured store. cleanup releases its connections.
func buildAdapter(ctx context.Context, cfg *Config, log *slog.Logger) (sa.Adapter, func(), error) {
	noop := func() {}
	switch cfg.Store.Driver {
	case "fs":
		log.Info("using file store", "path", cfg.Store.Path)
		return fs.NewFSAdapter(cfg.Store.Path), noop, nil

	case "postgres":
		db, err := postgres.Connect(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, noop, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, noop, err
		}
		return postgres.NewAdapter(db), func() { db.Close() }, nil

	case "gorm":
		db, err := gorm.Open(gormpostgres.Open(cfg.Store.DSN), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Warn),
			TranslateError: true,
		})
		if err != nil {
			return nil, noop, errors.Wrap(err, "open gorm")
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, noop, errors.Wrap(err, "migrate gorm")
		}
		cleanup := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return gormstore.NewGORMAdapter(db), cleanup, nil

	case "datastore":
		client, err := datastore.NewClient(ctx, cfg.Store.ProjectID)
		if err != nil {
			return nil, noop, errors.Wrap(err, "datastore client")
		}
		return gae.NewDatastoreAdapter(client, cfg.Store.Namespace), func() { client.Close() }, nil
	}
	return nil, noop, errors.Errorf("unknown store driver %q", cfg.Store.Driver)
}
