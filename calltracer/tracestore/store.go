package tracestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"

	"github.com/AntonStoeckl/calltracer-go/calltracer"
	"github.com/AntonStoeckl/calltracer-go/calltracer/tracelog"
	"github.com/AntonStoeckl/calltracer-go/calltracer/tracestore/internal/adapters"
)

const (
	defaultTableName    = "call_traces"
	appendBatchSize     = 500
	dialectPostgres     = "postgres"
	colID               = "id"
	colRunID            = "run_id"
	colTag              = "tag"
	colStatus           = "status"
	colFunctionName     = "function_name"
	colCalledBy         = "called_by"
	colTestName         = "test_name"
	colOwningTest       = "owning_test"
	colStartedAt        = "started_at"
	colDurationSeconds  = "duration_seconds"
	colTraceback        = "traceback"
	colSkipped          = "skipped"
	colMessage          = "message"
	colSource           = "source"
	colSourceClass      = "source_class"
	colDescription      = "description"
	colStack            = "stack"
	colArgs             = "args"
	aliasFailures       = "failures"
	aliasRuns           = "runs"
	aliasLastFailure    = "last_failure"
	logMsgSQLExecuted   = "executed sql for: "
	logMsgOperation     = "tracestore operation: "
	logMsgTableCreated  = "table created"
	logMsgCallsAppended = "calls appended"
	logMsgCallsQueried  = "calls queried"
	logMsgQueryFailed   = "database query execution failed"
	logMsgExecFailed    = "database execution failed"
	logMsgScanFailed    = "failed to scan database row"
	logMsgCloseFailed   = "failed to close database rows"
	logAttrError        = "error"
	logAttrQuery        = "query"
	logAttrTable        = "table"
	logAttrRunID        = "run_id"
	logAttrCallCount    = "call_count"
	logAttrDurationMS   = "duration_ms"
	logActionCreate     = "create"
	logActionAppend     = "append"
	logActionQuery      = "query"
	logActionFailures   = "failure_counts"
	metricOperation     = "tracestore_operation_duration_seconds"
	labelOperation      = "operation"
	labelStatus         = "status"
	statusOK            = "ok"
	statusError         = "error"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
	id               BIGSERIAL PRIMARY KEY,
	run_id           TEXT NOT NULL,
	tag              TEXT NOT NULL,
	status           TEXT NOT NULL,
	function_name    TEXT NOT NULL,
	called_by        TEXT NOT NULL,
	test_name        TEXT NOT NULL,
	owning_test      TEXT NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	duration_seconds BIGINT NOT NULL,
	traceback        BOOLEAN NOT NULL,
	skipped          BOOLEAN NOT NULL,
	message          TEXT NOT NULL,
	source           TEXT NOT NULL,
	source_class     TEXT NOT NULL,
	description      TEXT NOT NULL,
	stack            JSONB,
	args             TEXT
)`

const createIndexSQL = `CREATE INDEX IF NOT EXISTS %s ON %s (owning_test, status, started_at)`

var selectColumns = []any{
	colID, colRunID, colTag, colFunctionName, colCalledBy, colTestName, colStartedAt, colDurationSeconds,
	colTraceback, colSkipped, colMessage, colSource, colSourceClass, colDescription, colStack, colArgs,
}

// TraceStore persists trace lines into one PostgreSQL table.
type TraceStore struct {
	db               adapters.DBAdapter
	tableName        string
	logger           calltracer.Logger
	metricsCollector calltracer.MetricsCollector
}

// Option defines a functional option for configuring TraceStore.
type Option func(*TraceStore) error

// WithTableName sets the table name, "call_traces" by default.
func WithTableName(tableName string) Option {
	return func(ts *TraceStore) error {
		if tableName == "" {
			return ErrEmptyTableNameSupplied
		}

		ts.tableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the TraceStore.
//
// Debug level: SQL statements with execution timing
// Info level: row counts and durations of completed operations
// Warn level: failures to release database rows
// Error level: failed statements.
func WithLogger(logger calltracer.Logger) Option {
	return func(ts *TraceStore) error {
		ts.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector, which receives the duration of every database operation.
func WithMetrics(collector calltracer.MetricsCollector) Option {
	return func(ts *TraceStore) error {
		ts.metricsCollector = collector
		return nil
	}
}

// StoredCall is one persisted trace line.
type StoredCall struct {
	ID    int64
	RunID string
	tracelog.Line
}

// Filter narrows a Query. Zero fields do not filter.
type Filter struct {
	RunID  string
	Tags   []calltracer.Tag
	Status string
	Test   string
	Since  time.Time
	Limit  uint
}

// TestFailures aggregates the failed calls attributed to one test.
type TestFailures struct {
	Test        string
	Failures    int64
	Runs        int64
	LastFailure time.Time
}

// NewTraceStoreFromPGXPool creates a new TraceStore using a pgx Pool with optional configuration.
func NewTraceStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (TraceStore, error) {
	if db == nil {
		return TraceStore{}, ErrNilDatabaseConnection
	}

	return newTraceStore(adapters.NewPGXAdapter(db), options...)
}

// NewTraceStoreFromSQLDB creates a new TraceStore using a sql.DB with optional configuration.
func NewTraceStoreFromSQLDB(db *sql.DB, options ...Option) (TraceStore, error) {
	if db == nil {
		return TraceStore{}, ErrNilDatabaseConnection
	}

	return newTraceStore(adapters.NewSQLAdapter(db), options...)
}

// NewTraceStoreFromSQLX creates a new TraceStore using a sqlx.DB with optional configuration.
func NewTraceStoreFromSQLX(db *sqlx.DB, options ...Option) (TraceStore, error) {
	if db == nil || db.DB == nil {
		return TraceStore{}, ErrNilDatabaseConnection
	}

	return newTraceStore(adapters.NewSQLXAdapter(db), options...)
}

func newTraceStore(db adapters.DBAdapter, options ...Option) (TraceStore, error) {
	ts := TraceStore{
		db:        db,
		tableName: defaultTableName,
	}

	for _, option := range options {
		if err := option(&ts); err != nil {
			return TraceStore{}, err
		}
	}

	return ts, nil
}

// Ping verifies that the database is reachable.
func (ts TraceStore) Ping(ctx context.Context) error {
	return ts.db.Ping(ctx)
}

// CreateTable creates the trace table and its index unless they exist.
func (ts TraceStore) CreateTable(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(createTableSQL, pq.QuoteIdentifier(ts.tableName)),
		fmt.Sprintf(createIndexSQL, pq.QuoteIdentifier(ts.tableName+"_owning_test_idx"), pq.QuoteIdentifier(ts.tableName)),
	}

	for _, statement := range statements {
		if _, err := ts.exec(ctx, logActionCreate, statement); err != nil {
			return errors.Join(ErrCreatingTableFailed, err)
		}
	}

	ts.logOperation(logMsgTableCreated, logAttrTable, ts.tableName)

	return nil
}

// Append stores lines as calls of the run runID, in batches.
func (ts TraceStore) Append(ctx context.Context, runID string, lines ...tracelog.Line) error {
	if runID == "" {
		return ErrEmptyRunID
	}

	for start := 0; start < len(lines); start += appendBatchSize {
		batch := lines[start:min(start+appendBatchSize, len(lines))]

		sqlQuery, buildErr := ts.buildInsertQuery(runID, batch)
		if buildErr != nil {
			return buildErr
		}

		if _, execErr := ts.exec(ctx, logActionAppend, sqlQuery); execErr != nil {
			return errors.Join(ErrAppendingCallsFailed, execErr)
		}
	}

	ts.logOperation(logMsgCallsAppended, logAttrRunID, runID, logAttrCallCount, len(lines))

	return nil
}

// Query returns the stored calls matching filter, oldest first.
func (ts TraceStore) Query(ctx context.Context, filter Filter) ([]StoredCall, error) {
	sqlQuery, buildErr := ts.buildSelectQuery(filter)
	if buildErr != nil {
		return nil, buildErr
	}

	rows, queryErr := ts.query(ctx, logActionQuery, sqlQuery)
	if queryErr != nil {
		return nil, errors.Join(ErrQueryingCallsFailed, queryErr)
	}
	defer ts.closeRows(rows)

	calls := make([]StoredCall, 0)
	for rows.Next() {
		call, scanErr := scanCall(rows)
		if scanErr != nil {
			ts.logError(logMsgScanFailed, scanErr)
			return nil, errors.Join(ErrScanningDBRowFailed, scanErr)
		}

		calls = append(calls, call)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrQueryingCallsFailed, err)
	}

	ts.logOperation(logMsgCallsQueried, logAttrCallCount, len(calls))

	return calls, nil
}

// FailureCounts ranks the tests with failed calls since the given time, most failures first.
// A zero since counts every stored failure.
func (ts TraceStore) FailureCounts(ctx context.Context, since time.Time) ([]TestFailures, error) {
	sqlQuery, buildErr := ts.buildFailureCountsQuery(since)
	if buildErr != nil {
		return nil, buildErr
	}

	rows, queryErr := ts.query(ctx, logActionFailures, sqlQuery)
	if queryErr != nil {
		return nil, errors.Join(ErrQueryingCallsFailed, queryErr)
	}
	defer ts.closeRows(rows)

	failures := make([]TestFailures, 0)
	for rows.Next() {
		var f TestFailures
		if scanErr := rows.Scan(&f.Test, &f.Failures, &f.Runs, &f.LastFailure); scanErr != nil {
			ts.logError(logMsgScanFailed, scanErr)
			return nil, errors.Join(ErrScanningDBRowFailed, scanErr)
		}

		failures = append(failures, f)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrQueryingCallsFailed, err)
	}

	return failures, nil
}

func (ts TraceStore) buildInsertQuery(runID string, lines []tracelog.Line) (string, error) {
	rows := make([]any, 0, len(lines))
	for _, line := range lines {
		record, err := toRecord(runID, line)
		if err != nil {
			return "", errors.Join(ErrBuildingQueryFailed, err)
		}

		rows = append(rows, record)
	}

	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Insert(ts.tableName).
		Rows(rows...).
		ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (ts TraceStore) buildSelectQuery(filter Filter) (string, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(ts.tableName).
		Select(selectColumns...).
		Order(goqu.C(colID).Asc())

	conditions := goqu.Ex{}
	if filter.RunID != "" {
		conditions[colRunID] = filter.RunID
	}

	if len(filter.Tags) > 0 {
		tags := make([]string, 0, len(filter.Tags))
		for _, tag := range filter.Tags {
			tags = append(tags, string(tag))
		}

		conditions[colTag] = tags
	}

	if filter.Status != "" {
		conditions[colStatus] = filter.Status
	}

	if filter.Test != "" {
		conditions[colOwningTest] = filter.Test
	}

	if len(conditions) > 0 {
		selectStmt = selectStmt.Where(conditions)
	}

	if !filter.Since.IsZero() {
		selectStmt = selectStmt.Where(goqu.C(colStartedAt).Gte(filter.Since.UTC()))
	}

	if filter.Limit > 0 {
		selectStmt = selectStmt.Limit(filter.Limit)
	}

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (ts TraceStore) buildFailureCountsQuery(since time.Time) (string, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(ts.tableName).
		Select(
			goqu.C(colOwningTest),
			goqu.COUNT(goqu.Star()).As(aliasFailures),
			goqu.COUNT(goqu.DISTINCT(colRunID)).As(aliasRuns),
			goqu.MAX(colStartedAt).As(aliasLastFailure),
		).
		Where(
			goqu.C(colStatus).Eq(calltracer.StatusFailure),
			goqu.C(colOwningTest).Neq(""),
		).
		GroupBy(colOwningTest).
		Order(goqu.I(aliasFailures).Desc(), goqu.C(colOwningTest).Asc())

	if !since.IsZero() {
		selectStmt = selectStmt.Where(goqu.C(colStartedAt).Gte(since.UTC()))
	}

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func toRecord(runID string, line tracelog.Line) (goqu.Record, error) {
	var stack any
	if line.HasStack {
		frames := line.Stack
		if frames == nil {
			frames = []string{}
		}

		rendered, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(frames)
		if err != nil {
			return nil, err
		}

		stack = rendered
	}

	var args any
	if line.HasArgs {
		args = line.Args
	}

	record := line.Record

	return goqu.Record{
		colRunID:           runID,
		colTag:             string(record.Tag),
		colStatus:          record.Status(),
		colFunctionName:    record.FunctionName,
		colCalledBy:        record.CalledBy,
		colTestName:        record.TestName,
		colOwningTest:      tracelog.TestOf(line),
		colStartedAt:       time.Unix(record.StartTimestamp, 0).UTC(),
		colDurationSeconds: record.DurationSeconds,
		colTraceback:       record.HadTraceback,
		colSkipped:         record.WasSkipped,
		colMessage:         record.Message,
		colSource:          record.SourceLocation,
		colSourceClass:     record.SourceClassName,
		colDescription:     record.Description,
		colStack:           stack,
		colArgs:            args,
	}, nil
}

func scanCall(rows adapters.DBRows) (StoredCall, error) {
	var (
		call      StoredCall
		tag       string
		startedAt time.Time
		stack     []byte
		args      sql.NullString
	)

	record := &call.Record
	err := rows.Scan(
		&call.ID, &call.RunID, &tag, &record.FunctionName, &record.CalledBy, &record.TestName,
		&startedAt, &record.DurationSeconds, &record.HadTraceback, &record.WasSkipped, &record.Message,
		&record.SourceLocation, &record.SourceClassName, &record.Description, &stack, &args,
	)
	if err != nil {
		return StoredCall{}, err
	}

	record.Tag = calltracer.Tag(tag)
	record.StartTimestamp = startedAt.Unix()

	if stack != nil {
		call.HasStack = true
		if unmarshalErr := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(stack, &call.Stack); unmarshalErr != nil {
			return StoredCall{}, unmarshalErr
		}
	}

	call.HasArgs = args.Valid
	call.Args = args.String

	return call, nil
}

func (ts TraceStore) exec(ctx context.Context, action, sqlQuery string) (adapters.DBResult, error) {
	start := time.Now()
	result, err := ts.db.Exec(ctx, sqlQuery)
	duration := time.Since(start)

	ts.logQueryWithDuration(sqlQuery, action, duration)
	ts.recordDuration(action, duration, err)

	if err != nil {
		ts.logError(logMsgExecFailed, err, logAttrQuery, sqlQuery)
		return nil, err
	}

	return result, nil
}

func (ts TraceStore) query(ctx context.Context, action, sqlQuery string) (adapters.DBRows, error) {
	start := time.Now()
	rows, err := ts.db.Query(ctx, sqlQuery)
	duration := time.Since(start)

	ts.logQueryWithDuration(sqlQuery, action, duration)
	ts.recordDuration(action, duration, err)

	if err != nil {
		ts.logError(logMsgQueryFailed, err, logAttrQuery, sqlQuery)
		return nil, err
	}

	return rows, nil
}

func (ts TraceStore) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil && ts.logger != nil {
		ts.logger.Warn(logMsgCloseFailed, logAttrError, closeErr.Error())
	}
}

// logQueryWithDuration logs SQL statements with execution time at debug level if the logger is configured.
func (ts TraceStore) logQueryWithDuration(sqlQuery, action string, duration time.Duration) {
	if ts.logger != nil {
		ts.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if the logger is configured.
func (ts TraceStore) logOperation(action string, args ...any) {
	if ts.logger != nil {
		ts.logger.Info(logMsgOperation+action, args...)
	}
}

func (ts TraceStore) logError(message string, err error, args ...any) {
	if ts.logger != nil {
		allArgs := []any{logAttrError, err.Error()}
		allArgs = append(allArgs, args...)
		ts.logger.Error(message, allArgs...)
	}
}

func (ts TraceStore) recordDuration(action string, duration time.Duration, err error) {
	if ts.metricsCollector == nil {
		return
	}

	status := statusOK
	if err != nil {
		status = statusError
	}

	ts.metricsCollector.RecordDuration(metricOperation, duration, map[string]string{
		labelOperation: action,
		labelStatus:    status,
	})
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
