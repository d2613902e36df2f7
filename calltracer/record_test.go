package calltracer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func givenRecord() InvocationRecord {
	return InvocationRecord{
		FunctionName:    "addToCart",
		CalledBy:        "TestCheckout",
		StartTimestamp:  1700000000,
		DurationSeconds: 2,
		HadTraceback:    true,
		Message:         "out of <stock>",
		TestName:        "TestCheckout",
		SourceLocation:  "checkout/checkout_test.go [42]",
		SourceClassName: "CartSteps",
		Description:     "cart & checkout",
		Tag:             TagTestFunction,
	}
}

func Test_RenderLine_KeyOrderAndTags(t *testing.T) {
	line, err := renderLine(givenRecord(), nil, nil)

	require.NoError(t, err)
	assert.Equal(t,
		`TRACER <test_function>{"function_name":"addToCart","called_by":"TestCheckout","start":1700000000,`+
			`"duration":2,"traceback":true,"skipped":false,"msg":"out of <stock>","test":"TestCheckout",`+
			`"source":"checkout/checkout_test.go [42]","source_class":"CartSteps","desc":"cart & checkout"}</test_function>`,
		line,
	)
}

func Test_RenderLine_Suffixes(t *testing.T) {
	line, err := renderLine(givenRecord(), []string{"checkout_test.go:TestCheckout:42"}, []any{1, "x", nil})

	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(line,
		`</test_function> stack=["checkout_test.go:TestCheckout:42"] args=(1, "x", nil)`), line)
}

func Test_RenderLine_EmptyStackAndNoArguments(t *testing.T) {
	line, err := renderLine(givenRecord(), []string{}, []any{})

	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(line, `</test_function> stack=[] args=()`), line)
}

func Test_FormatArg(t *testing.T) {
	type item struct {
		SKU string
		Qty int
	}

	assert.Equal(t, "nil", formatArg(nil))
	assert.Equal(t, `"a\"b"`, formatArg(`a"b`))
	assert.Equal(t, "42", formatArg(42))
	assert.Equal(t, "{SKU:A-1 Qty:2}", formatArg(item{SKU: "A-1", Qty: 2}))
	assert.Equal(t, "[1 2]", formatArg([]int{1, 2}))
	assert.Equal(t, "func(int) error", formatArg(func(int) error { return nil }))
	assert.Equal(t, "boom", formatArg(errors.New("boom")))
	assert.Equal(t, `{SKU:A-1\nA-2 Qty:2}`, formatArg(item{SKU: "A-1\nA-2", Qty: 2}))
	assert.Equal(t, `first\r\nsecond`, formatArg(errors.New("first\r\nsecond")))
}

func Test_InvocationRecord_String(t *testing.T) {
	record := givenRecord()

	assert.True(t, strings.HasPrefix(record.String(), "TRACER <test_function>{"))
	assert.True(t, strings.HasSuffix(record.String(), "}</test_function>"))
}

func Test_FloorSeconds(t *testing.T) {
	assert.Equal(t, int64(0), floorSeconds(999_999_999))
	assert.Equal(t, int64(1), floorSeconds(1_999_999_999))
	assert.Equal(t, int64(0), floorSeconds(-5))
}

func Test_InvocationRecord_Status(t *testing.T) {
	tests := []struct {
		name      string
		traceback bool
		skipped   bool
		expected  string
	}{
		{name: "success", expected: StatusSuccess},
		{name: "failure", traceback: true, expected: StatusFailure},
		{name: "skipped", skipped: true, expected: StatusSkipped},
		{name: "skipped wins over failure", traceback: true, skipped: true, expected: StatusSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := InvocationRecord{HadTraceback: tt.traceback, WasSkipped: tt.skipped}

			assert.Equal(t, tt.expected, record.Status())
		})
	}
}
