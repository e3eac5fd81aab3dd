// Package database persists product records and run reports.
//
// Two Store implementations are provided:
//   - SQLiteStore keeps everything in a single file under the XDG data
//     directory, using the CGO-free modernc.org/sqlite driver in WAL mode.
//   - PostgresStore writes to a PostgreSQL database through a pgx pool and
//     stores the opaque product fields as JSONB.
//
// Both enforce product identity with a unique index whose columns follow the
// configured dedup scope, and both insert with ON CONFLICT DO NOTHING so that
// two ingestion runs racing on the same product never produce a duplicate row.
package database
