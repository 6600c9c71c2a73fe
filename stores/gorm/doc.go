//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based implementation of secrets.IdentityStore.
// It supports any database that GORM supports (PostgreSQL, SQLite, etc.).
//
// # Database Schema
//
// AutoMigrate creates a single identities table. Username, google_id and
// facebook_id are nullable with unique indexes, and a CHECK constraint
// rejects rows with no login path.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	if err := gormstore.AutoMigrate(db); err != nil { ... }
//	store := gormstore.NewIdentityStore(db)
package gorm
