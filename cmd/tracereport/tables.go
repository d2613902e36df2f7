package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/AntonStoeckl/calltracer-go/calltracer"
	"github.com/AntonStoeckl/calltracer-go/calltracer/tracelog"
)

const maxMessageRunes = 60

var (
	callHeaders    = []string{"TAG", "FUNCTION", "CALLED BY", "TEST", "DURATION", "STATUS", "MESSAGE"}
	summaryHeaders = []string{"TAG", "CALLS"}
)

func newTable(w io.Writer, headers []string) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}

	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

func writeTables(w io.Writer, lines []tracelog.Line, summary tracelog.Summary, malformed int) error {
	if len(lines) > 0 {
		if err := writeCalls(w, lines); err != nil {
			return err
		}

		_, _ = fmt.Fprintln(w)
	}

	return writeSummary(w, summary, malformed)
}

func writeCalls(w io.Writer, lines []tracelog.Line) error {
	table := newTable(w, callHeaders)

	for _, line := range lines {
		row := []string{
			string(line.Record.Tag),
			line.Record.FunctionName,
			line.Record.CalledBy,
			tracelog.TestOf(line),
			strconv.FormatInt(line.Record.DurationSeconds, 10) + "s",
			line.Record.Status(),
			shorten(line.Record.Message),
		}

		if err := table.Append(row); err != nil {
			return err
		}
	}

	return table.Render()
}

func writeSummary(w io.Writer, summary tracelog.Summary, malformed int) error {
	table := newTable(w, summaryHeaders)

	for _, tag := range calltracer.Tags {
		count, ok := summary.ByTag[tag]
		if !ok {
			continue
		}

		if err := table.Append([]string{string(tag), strconv.Itoa(count)}); err != nil {
			return err
		}
	}

	if err := table.Render(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "\n%d calls: %d %s, %d %s, %d %s\n",
		summary.Total,
		summary.ByStatus[calltracer.StatusSuccess], calltracer.StatusSuccess,
		summary.ByStatus[calltracer.StatusSkipped], calltracer.StatusSkipped,
		summary.ByStatus[calltracer.StatusFailure], calltracer.StatusFailure,
	)

	if len(summary.FailedTests) > 0 {
		_, _ = fmt.Fprintf(w, "failed tests: %s\n", strings.Join(summary.FailedTests, ", "))
	}

	if malformed > 0 {
		_, _ = fmt.Fprintf(w, "malformed trace lines: %d\n", malformed)
	}

	return nil
}

// shorten keeps table rows on one line.
func shorten(message string) string {
	message = strings.ReplaceAll(message, "\n", " ")

	runes := []rune(message)
	if len(runes) <= maxMessageRunes {
		return message
	}

	return string(runes[:maxMessageRunes-3]) + "..."
}
