package calltracer

import (
	"fmt"
	"reflect"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Tag classifies one invocation by the context it was called from.
type Tag string

const (
	TagTest               Tag = "test"
	TagSkippedTest        Tag = "skipped_test"
	TagOtherFunction      Tag = "other_function"
	TagTestFunction       Tag = "test_function"
	TagTestSubfunction    Tag = "test_subfunction"
	TagCleanupFunction    Tag = "cleanup_function"
	TagCleanupSubfunction Tag = "cleanup_subfunction"
	TagSetupFunction      Tag = "setup_function"
	TagSetupSubfunction   Tag = "setup_subfunction"
)

// Tags lists every tag, test tags first.
var Tags = []Tag{
	TagTest,
	TagSkippedTest,
	TagTestFunction,
	TagTestSubfunction,
	TagCleanupFunction,
	TagCleanupSubfunction,
	TagSetupFunction,
	TagSetupSubfunction,
	TagOtherFunction,
}

// Outcome of one traced call, as used for metric labels.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailure = "failure"
)

const (
	linePrefix  = "TRACER "
	testCleanup = "cleanup"
	testSetup   = "setup"
)

var recordJSON = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// InvocationRecord is built fresh for every traced call and discarded after its line is emitted.
//
// The JSON field order is part of the line format.
type InvocationRecord struct {
	FunctionName    string `json:"function_name"`
	CalledBy        string `json:"called_by"`
	StartTimestamp  int64  `json:"start"`
	DurationSeconds int64  `json:"duration"`
	HadTraceback    bool   `json:"traceback"`
	WasSkipped      bool   `json:"skipped"`
	Message         string `json:"msg"`
	TestName        string `json:"test"`
	SourceLocation  string `json:"source"`
	SourceClassName string `json:"source_class"`
	Description     string `json:"desc"`

	Tag Tag `json:"-"`
}

// Status reports the outcome of the call: skipped wins over failure.
func (r InvocationRecord) Status() string {
	switch {
	case r.WasSkipped:
		return StatusSkipped
	case r.HadTraceback:
		return StatusFailure
	default:
		return StatusSuccess
	}
}

// renderLine assembles "TRACER <tag>{json}</tag>[ stack=[...]][ args=(...)]".
// A nil stack omits the stack suffix, a nil args slice omits the args suffix.
func renderLine(record InvocationRecord, stack []string, args []any) (string, error) {
	body, err := recordJSON.Marshal(record)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(linePrefix)
	sb.WriteString("<" + string(record.Tag) + ">")
	sb.Write(body)
	sb.WriteString("</" + string(record.Tag) + ">")

	if stack != nil {
		rendered, stackErr := recordJSON.Marshal(stack)
		if stackErr != nil {
			return "", stackErr
		}

		sb.WriteString(" stack=")
		sb.Write(rendered)
	}

	if args != nil {
		sb.WriteString(" args=")
		sb.WriteString(formatArgs(args))
	}

	return sb.String(), nil
}

// formatArgs renders positional arguments as received: (1, "x", [a b]).
func formatArgs(args []any) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, formatArg(arg))
	}

	return "(" + strings.Join(parts, ", ") + ")"
}

func formatArg(arg any) string {
	switch v := arg.(type) {
	case nil:
		return "nil"
	case string:
		return fmt.Sprintf("%q", v)
	}

	if reflect.TypeOf(arg).Kind() == reflect.Func {
		return reflect.TypeOf(arg).String()
	}

	return argLineBreaks.Replace(fmt.Sprintf("%+v", arg))
}

// argLineBreaks keeps a trace line on one log line when a value prints line breaks.
var argLineBreaks = strings.NewReplacer("\n", `\n`, "\r", `\r`)
