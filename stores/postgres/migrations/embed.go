package migrations

import "embed"

// Files exposes the adapter's SQL migrations embedded into the binary.
//
//go:embed *.sql
var Files embed.FS
