// Package database provides SQLite connectivity for the poweredup port
// catalog.
//
// It opens the database with WAL mode and a busy timeout, restricts the
// file to 0600, and applies versioned migrations read from an fs.FS
// (normally the embedded migrations package).
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are named YYYYMMDD_HHMMSS_description.up.sql with an optional
// matching .down.sql. All queries use parameterised statements.
package database
