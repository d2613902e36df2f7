// Package tracestore keeps parsed trace lines in PostgreSQL, so calls and failures can be compared across test runs.
//
// Every stored call belongs to a run, usually one CI job or one local `go test` invocation.
// The store works on pgxpool.Pool, sql.DB, or sqlx.DB:
//
//	db, _ := pgxpool.New(ctx, dsn)
//	store, _ := tracestore.NewTraceStoreFromPGXPool(db, tracestore.WithLogger(slog.Default()))
//	_ = store.CreateTable(ctx)
//
//	lines, _ := tracelog.ReadAll(logFile)
//	_ = store.Append(ctx, "ci-4711", lines...)
//
//	failures, _ := store.FailureCounts(ctx, time.Now().Add(-7*24*time.Hour))
package tracestore
