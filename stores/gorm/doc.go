//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based implementation of siteauth.Adapter.
// It supports any database that GORM supports (PostgreSQL, MySQL, SQLite, etc.)
// and is suitable for production deployments requiring relational database storage.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: User accounts, unique on email when set
//   - accounts: External identities linked to users, unique on (provider_id, provider_account_id)
//   - sessions: Database-mode sessions keyed by the SHA-256 of the session token
//   - verification_tokens: Pending email sign-in links
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	if err := gormstore.AutoMigrate(db); err != nil {
//	    log.Fatal(err)
//	}
//	adapter := gormstore.NewGORMAdapter(db)
package gorm
