// Package adapters hides the three supported PostgreSQL client libraries (pgxpool.Pool, sql.DB, sqlx.DB)
// behind one DBAdapter, so the trace store builds its SQL once and runs it on any of them.
package adapters
