package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/datastore"
	scsgorm "github.com/alexedwards/scs/gormstore"
	"github.com/alexedwards/scs/v2"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	secrets "github.com/panyam/secrets"
	"github.com/panyam/secrets/stores/fs"
	gaestore "github.com/panyam/secrets/stores/gae"
	gormstore "github.com/panyam/secrets/stores/gorm"
	mongostore "github.com/panyam/secrets/stores/mongo"
)

// backend is an opened identity store plus the session store that goes with
// it. A nil session store means scs's in-memory default.
type backend struct {
	identities secrets.IdentityStore
	sessions   scs.Store
	close      func()
}

func openBackend(ctx context.Context, cfg *secrets.Config) (*backend, error) {
	switch cfg.Store {
	case secrets.StoreFS:
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		slog.Info("using filesystem store", "dir", cfg.DataDir)
		return &backend{identities: fs.NewFSIdentityStore(cfg.DataDir), close: func() {}}, nil

	case secrets.StoreMongo:
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		slog.Info("using mongo store", "database", cfg.MongoDatabase)
		return &backend{identities: store, close: func() { store.Close(context.Background()) }}, nil

	case secrets.StoreGorm:
		db, err := openGormDB(cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		sessions, err := scsgorm.New(db)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		slog.Info("using gorm store", "dialect", db.Dialector.Name())
		return &backend{
			identities: gormstore.NewIdentityStore(db),
			sessions:   sessions,
			close: func() {
				sessions.StopCleanup()
				sqlDB.Close()
			},
		}, nil

	case secrets.StoreGAE:
		client, err := datastore.NewClient(ctx, cfg.GAEProjectID)
		if err != nil {
			return nil, fmt.Errorf("datastore client: %w", err)
		}
		slog.Info("using datastore store", "project", cfg.GAEProjectID, "namespace", cfg.GAENamespace)
		return &backend{identities: gaestore.NewIdentityStore(client, cfg.GAENamespace), close: func() { client.Close() }}, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// openGormDB picks postgres for postgres:// DSNs and sqlite for anything else
func openGormDB(dsn string) (*gorm.DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	}
	if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
