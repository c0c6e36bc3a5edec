// Package database provides SQLite connection management and schema
// migrations for Parley Core.
//
// SQLite was chosen over a client/server database deliberately: Parley
// serves a single broker's authorization checks from one process, the
// dataset fits comfortably on local disk, and a zero-dependency embedded
// store keeps deployment to a single binary plus one file. WAL mode is
// enabled for concurrent reads during the webhook hot path, and the
// connection pool is capped at one writer to sidestep SQLITE_BUSY.
//
// Migrations are embedded in the binary via the migrations package and
// applied automatically at startup. Each migration runs in its own
// transaction and is tracked in the schema_migrations table, so a failed
// migration leaves the database at the last good version.
package database
