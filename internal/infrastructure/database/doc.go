// Package database provides SQLite database connectivity for the vault.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations embedded via the migrations package
//   - Connection lifecycle and health checks
//
// The vault persists hub lifecycle events and registry archives here:
// the live reconciliation state itself is in-memory only and is rebuilt
// from hub telemetry after a restart.
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	// Run migrations
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration Strategy:
//
// Migrations are additive-only to support safe rollbacks:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Each migration file has both .up.sql and .down.sql
package database
