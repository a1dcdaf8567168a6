// Package database provides SQLite connectivity for HVAC Link Core.
//
// This package manages:
//   - The connection (WAL mode, busy timeout, foreign keys, immediate transactions)
//   - Embedded schema migrations
//   - Health checks
//
// SQLite has a single writer, so the pool is capped at one open connection
// and every transaction takes the write lock up front (_txlock=immediate).
// Read-merge-write sequences in the device registry rely on this.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are registered by the migrations package (see Register) and
// named YYYYMMDD_HHMMSS_description.up.sql / .down.sql.
package database
