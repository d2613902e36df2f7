package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/calltracer-go/calltracer/tracestore"
)

func givenNoDSNInEnvironment(t *testing.T) {
	t.Helper()

	original := lookupEnv
	lookupEnv = func(string) string { return "" }
	t.Cleanup(func() { lookupEnv = original })
}

func Test_Store_RequiresDSN(t *testing.T) {
	givenNoDSNInEnvironment(t)

	_, err := executeReport(t, givenTestLog(), "store")

	assert.ErrorIs(t, err, ErrMissingDSN)
}

func Test_History_RequiresDSN(t *testing.T) {
	givenNoDSNInEnvironment(t)

	_, err := executeReport(t, "", "history")

	assert.ErrorIs(t, err, ErrMissingDSN)
}

func Test_History_RejectsArguments(t *testing.T) {
	_, err := executeReport(t, "", "history", "ci.log")

	assert.Error(t, err)
}

func Test_WriteHistory(t *testing.T) {
	// arrange
	var out bytes.Buffer
	lastFailure := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	// act
	err := writeHistory(&out, []tracestore.TestFailures{
		{Test: "Test_Cart", Failures: 3, Runs: 2, LastFailure: lastFailure},
	})

	// assert
	require.NoError(t, err)

	for _, header := range historyHeaders {
		assert.Contains(t, out.String(), header)
	}

	assert.Contains(t, out.String(), "Test_Cart")
	assert.Contains(t, out.String(), "2025-03-14 09:26:53")
}

func Test_StoreAndHistory_AgainstPostgres(t *testing.T) {
	dsn := os.Getenv("CALLTRACER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CALLTRACER_TEST_POSTGRES_DSN not set")
	}

	table := "call_traces_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	t.Cleanup(func() {
		pool, err := pgxpool.New(context.Background(), dsn)
		if err != nil {
			return
		}
		defer pool.Close()

		_, _ = pool.Exec(context.Background(), `DROP TABLE IF EXISTS "`+table+`"`)
	})

	out, err := executeReport(t, givenTestLog(), "store", "--dsn", dsn, "--table", table, "--create-table", "--run-id", "ci-1")
	require.NoError(t, err)
	assert.Contains(t, out, "stored 3 calls as run ci-1")
	assert.Contains(t, out, "malformed trace lines: 1")

	out, err = executeReport(t, "", "history", "--dsn", dsn, "--table", table, "--since", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Test_Cart")
}
