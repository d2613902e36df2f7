package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/calltracer-go/calltracer"
	"github.com/AntonStoeckl/calltracer-go/calltracer/tracelog"
)

const stdinPath = "-"

var ErrUnknownTag = errors.New("unknown tag")

type reportOptions struct {
	failuresOnly bool
	tags         []string
	asJSON       bool
}

type jsonReport struct {
	tracelog.Summary
	Malformed int `json:"malformed"`
}

func newRootCommand() *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "tracereport [log file...]",
		Short: "Summarizes the calltracer trace lines found in test logs",
		Long: `Reads test log output from the given files, or from stdin when no file or "-" is given,
and prints every traced call as a table row followed by a summary per tag and outcome.`,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts, args)
		},
	}

	cmd.AddCommand(newStoreCommand(), newHistoryCommand())

	cmd.Flags().BoolVar(&opts.failuresOnly, "failures-only", false, "only report failed calls")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "only report calls with this tag, repeatable")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the summary as JSON instead of tables")

	return cmd
}

func runReport(cmd *cobra.Command, opts *reportOptions, paths []string) error {
	tags, err := parseTags(opts.tags)
	if err != nil {
		return err
	}

	lines, malformed, err := readLines(cmd.InOrStdin(), paths)
	if err != nil {
		return err
	}

	var predicates []func(tracelog.Line) bool
	if opts.failuresOnly {
		predicates = append(predicates, tracelog.FailuresOnly)
	}

	if len(tags) > 0 {
		predicates = append(predicates, tracelog.WithTags(tags...))
	}

	lines = tracelog.Filter(lines, predicates...)
	summary := tracelog.Summarize(lines)

	if opts.asJSON {
		return writeJSON(cmd.OutOrStdout(), jsonReport{Summary: summary, Malformed: malformed})
	}

	return writeTables(cmd.OutOrStdout(), lines, summary, malformed)
}

func parseTags(raw []string) ([]calltracer.Tag, error) {
	tags := make([]calltracer.Tag, 0, len(raw))
	for _, r := range raw {
		tag := calltracer.Tag(r)
		if !slices.Contains(calltracer.Tags, tag) {
			return nil, fmt.Errorf("%w: %q - must be one of: %v", ErrUnknownTag, r, calltracer.Tags)
		}

		tags = append(tags, tag)
	}

	return tags, nil
}

func readLines(stdin io.Reader, paths []string) ([]tracelog.Line, int, error) {
	if len(paths) == 0 {
		paths = []string{stdinPath}
	}

	lines := make([]tracelog.Line, 0)
	malformed := 0

	for _, path := range paths {
		read, skipped, err := readSource(stdin, path)
		if err != nil {
			return nil, 0, err
		}

		lines = append(lines, read...)
		malformed += skipped
	}

	return lines, malformed, nil
}

func readSource(stdin io.Reader, path string) ([]tracelog.Line, int, error) {
	r := stdin
	if path != stdinPath {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		defer func() { _ = f.Close() }()

		r = f
	}

	scanner := tracelog.NewScanner(r)

	lines := make([]tracelog.Line, 0)
	for scanner.Scan() {
		lines = append(lines, scanner.Line())
	}

	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", path, err)
	}

	return lines, scanner.Malformed(), nil
}

func writeJSON(w io.Writer, report jsonReport) error {
	encoder := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(report)
}
