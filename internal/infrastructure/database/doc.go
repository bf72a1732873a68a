// Package database owns the SQLite file backing the door event log.
//
// It wraps database/sql with the setup the service needs: WAL mode so
// event queries never block behind writes, a busy timeout instead of
// "database is locked" errors, 0600 file permissions, and embedded
// schema migrations applied on startup.
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations live in the top-level migrations/ directory, are embedded
// into the binary, and stay additive: new columns are nullable or carry
// defaults, and nothing is dropped or renamed. The down files exist for
// development, not for production rollback.
package database
