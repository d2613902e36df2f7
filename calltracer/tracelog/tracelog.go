// Package tracelog reads calltracer trace lines back out of log output.
//
// A trace line may appear on its own, embedded in a plain text log line, as the quoted
// msg value of a slog.TextHandler line, or as the "msg" field of a slog.JSONHandler line.
package tracelog

import (
	"errors"
	"regexp"
	"slices"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/calltracer-go/calltracer"
)

const (
	linePrefix        = "TRACER <"
	failurePrefix     = "TRACER Failed"
	jsonMessageField  = "msg"
	jsonObjectOpening = "{"
)

var ErrNotATraceLine = errors.New("not a trace line")

var linePattern = regexp.MustCompile(
	`(?s)^TRACER <([a-z_]+)>(\{.*?\})</([a-z_]+)>` +
		`( stack=(\[(?:"(?:[^"\\]|\\.)*"(?:,"(?:[^"\\]|\\.)*")*)?\]))?` +
		`( args=(\(.*\)))?$`,
)

// Line is one trace line split back into its parts.
type Line struct {
	Record   calltracer.InvocationRecord
	Stack    []string
	HasStack bool
	Args     string
	HasArgs  bool
}

// Parse parses "TRACER <tag>{json}</tag>[ stack=[...]][ args=(...)]".
func Parse(line string) (Line, error) {
	match := linePattern.FindStringSubmatch(line)
	if match == nil || match[1] != match[3] || !slices.Contains(calltracer.Tags, calltracer.Tag(match[1])) {
		return Line{}, ErrNotATraceLine
	}

	var parsed Line
	if err := jsoniter.ConfigFastest.UnmarshalFromString(match[2], &parsed.Record); err != nil {
		return Line{}, errors.Join(ErrNotATraceLine, err)
	}

	parsed.Record.Tag = calltracer.Tag(match[1])

	if match[4] != "" {
		parsed.HasStack = true
		if err := jsoniter.ConfigFastest.UnmarshalFromString(match[5], &parsed.Stack); err != nil {
			return Line{}, errors.Join(ErrNotATraceLine, err)
		}
	}

	if match[6] != "" {
		parsed.HasArgs = true
		parsed.Args = match[7]
	}

	return parsed, nil
}

// Extract finds the trace line inside one line of log output.
// The bool result is false for log lines that do not carry a trace line.
func Extract(logLine string) (string, bool) {
	if strings.HasPrefix(logLine, jsonObjectOpening) {
		if msg := jsoniter.ConfigFastest.Get([]byte(logLine), jsonMessageField); msg.LastError() == nil {
			return candidate(msg.ToString())
		}
	}

	idx := strings.Index(logLine, linePrefix)
	if idx < 0 {
		return "", false
	}

	if idx > 0 && logLine[idx-1] == '"' {
		quoted, err := strconv.QuotedPrefix(logLine[idx-1:])
		if err == nil {
			if unquoted, unquoteErr := strconv.Unquote(quoted); unquoteErr == nil {
				return candidate(unquoted)
			}
		}
	}

	return candidate(logLine[idx:])
}

func candidate(s string) (string, bool) {
	if !strings.HasPrefix(s, linePrefix) || strings.HasPrefix(s, failurePrefix) {
		return "", false
	}

	return s, true
}
