// Package database provides SQLite connectivity for homedash.
//
// The database holds the identity provider's data only: user accounts and
// refresh-token sessions. Device state never touches SQLite; it lives in
// the realtime store.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Schema migrations loaded from any fs.FS (the binary embeds them)
//   - Transaction helper with commit/rollback handling
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600
//   - Passwords are stored as Argon2id hashes, refresh tokens as SHA-256 hashes
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns must be nullable or carry a
// default, and every .up.sql should ship a matching .down.sql.
package database
