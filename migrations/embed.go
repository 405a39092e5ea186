// Package migrations embeds the catalog schema so the binary migrates its
// database without SQL files on disk.
package migrations

import "embed"

// FS holds the *.sql migration files at its root.
//
//go:embed *.sql
var FS embed.FS
