package tracestore

import (
	"errors"
)

var ErrNilDatabaseConnection = errors.New("nil database connection supplied")
var ErrEmptyTableNameSupplied = errors.New("empty table name supplied")
var ErrEmptyRunID = errors.New("empty run id supplied")

var ErrBuildingQueryFailed = errors.New("building query failed")
var ErrCreatingTableFailed = errors.New("creating trace table failed")
var ErrAppendingCallsFailed = errors.New("appending calls failed")
var ErrQueryingCallsFailed = errors.New("querying calls failed")
var ErrScanningDBRowFailed = errors.New("scanning db row failed")
