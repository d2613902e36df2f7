package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/calltracer-go/calltracer/tracestore"
)

const (
	dsnEnv              = "CALLTRACER_REPORT_DSN"
	defaultHistoryRange = 7 * 24 * time.Hour
	timestampLayout     = "2006-01-02 15:04:05"
)

var ErrMissingDSN = errors.New("no database configured, set --dsn or " + dsnEnv)

var lookupEnv = os.Getenv

var historyHeaders = []string{"TEST", "FAILURES", "RUNS", "LAST FAILURE"}

type databaseOptions struct {
	dsn     string
	table   string
	verbose bool
}

func (o *databaseOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.dsn, "dsn", "", "PostgreSQL connection string, defaults to $"+dsnEnv)
	cmd.Flags().StringVar(&o.table, "table", "call_traces", "table holding the stored calls")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "log executed SQL to stderr")
}

func (o *databaseOptions) open(ctx context.Context, cmd *cobra.Command) (tracestore.TraceStore, func(), error) {
	dsn := o.dsn
	if dsn == "" {
		dsn = lookupEnv(dsnEnv)
	}

	if dsn == "" {
		return tracestore.TraceStore{}, nil, ErrMissingDSN
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return tracestore.TraceStore{}, nil, err
	}

	store, err := tracestore.NewTraceStoreFromPGXPool(pool,
		tracestore.WithTableName(o.table),
		tracestore.WithLogger(newLogger(cmd.ErrOrStderr(), o.verbose)),
	)
	if err != nil {
		pool.Close()
		return tracestore.TraceStore{}, nil, err
	}

	return store, pool.Close, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newStoreCommand() *cobra.Command {
	db := &databaseOptions{}
	var runID string
	var createTable bool

	cmd := &cobra.Command{
		Use:   "store [log file...]",
		Short: "Stores the trace lines found in test logs in PostgreSQL",
		Long: `Reads test log output like the report does and appends every trace line to the trace table,
tagged with a run id. Without --run-id a random one is generated and printed.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				runID = uuid.NewString()
			}

			lines, malformed, err := readLines(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, closeStore, err := db.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			if createTable {
				if err := store.CreateTable(ctx); err != nil {
					return err
				}
			}

			if err := store.Append(ctx, runID, lines...); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "stored %d calls as run %s\n", len(lines), runID)
			if malformed > 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "malformed trace lines: %d\n", malformed)
			}

			return nil
		},
	}

	db.register(cmd)
	cmd.Flags().StringVar(&runID, "run-id", "", "run id the calls are stored under")
	cmd.Flags().BoolVar(&createTable, "create-table", false, "create the trace table if it does not exist")

	return cmd
}

func newHistoryCommand() *cobra.Command {
	db := &databaseOptions{}
	var since time.Duration

	cmd := &cobra.Command{
		Use:          "history",
		Short:        "Ranks the tests with stored failures, most failures first",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, closeStore, err := db.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}

			failures, err := store.FailureCounts(ctx, from)
			if err != nil {
				return err
			}

			return writeHistory(cmd.OutOrStdout(), failures)
		},
	}

	db.register(cmd)
	cmd.Flags().DurationVar(&since, "since", defaultHistoryRange, "only count failures this recent, 0 for all")

	return cmd
}

func writeHistory(w io.Writer, failures []tracestore.TestFailures) error {
	table := newTable(w, historyHeaders)

	for _, f := range failures {
		row := []string{
			f.Test,
			strconv.FormatInt(f.Failures, 10),
			strconv.FormatInt(f.Runs, 10),
			f.LastFailure.UTC().Format(timestampLayout),
		}

		if err := table.Append(row); err != nil {
			return err
		}
	}

	return table.Render()
}
