package calltracer

import (
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
)

const (
	maxStackDepth       = 64
	reflectFramePrefix  = "reflect."
	methodValueSuffix   = "-fm"
	frameFieldSeparator = ":"
)

// packageFramePrefix identifies frames of this package, which are wrapper plumbing.
var packageFramePrefix = reflect.TypeOf(CallFrame{}).PkgPath() + "."

// CallFrame is a read-only view of one entry of the caller stack.
// Depth 0 is the wrapper, depth 1 its immediate caller.
type CallFrame struct {
	File     string
	Function string
	Line     int
	Depth    int
}

// ShortName returns the function name without its import path, e.g. "TestCheckout.func1".
func (f CallFrame) ShortName() string {
	return shortFunctionName(f.Function)
}

// String renders the frame as "file:function:line" with the base name of the file.
func (f CallFrame) String() string {
	return filepath.Base(f.File) + frameFieldSeparator + f.ShortName() + frameFieldSeparator + strconv.Itoa(f.Line)
}

func shortFunctionName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}

	return strings.TrimSuffix(name, methodValueSuffix)
}

// callerPCs captures the program counters of the calling goroutine, innermost first.
func callerPCs() []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2, pcs)

	return pcs[:n]
}

// resolveFrames turns captured program counters into call frames.
// Plumbing frames of this package and of reflect are dropped; the innermost of them
// stands in for the wrapper at depth 0.
func resolveFrames(pcs []uintptr) []CallFrame {
	out := make([]CallFrame, 0, len(pcs))
	if len(pcs) == 0 {
		return out
	}

	frames := runtime.CallersFrames(pcs)
	for {
		frame, more := frames.Next()

		if isPlumbingFrame(frame.Function) {
			if len(out) == 0 {
				out = append(out, CallFrame{File: frame.File, Function: frame.Function, Line: frame.Line, Depth: 0})
			}
		} else {
			if len(out) == 0 {
				// the wrapper frame got inlined away
				out = append(out, CallFrame{Function: packageFramePrefix + "wrapper", Depth: 0})
			}

			out = append(out, CallFrame{File: frame.File, Function: frame.Function, Line: frame.Line, Depth: len(out)})
		}

		if !more {
			break
		}
	}

	return out
}

func isPlumbingFrame(function string) bool {
	return strings.HasPrefix(function, packageFramePrefix) || strings.HasPrefix(function, reflectFramePrefix)
}

// RenderStack renders the frames from depth 1 up to and including maxDepth as
// "file:function:line", innermost first. Pass Classification.WalkDepth to render the visited frames.
func RenderStack(frames []CallFrame, maxDepth int) []string {
	rendered := make([]string, 0, max(maxDepth, 0))
	for _, frame := range frames {
		if frame.Depth == 0 || frame.Depth > maxDepth {
			continue
		}

		rendered = append(rendered, frame.String())
	}

	return rendered
}
