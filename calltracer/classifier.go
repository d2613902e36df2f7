package calltracer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	goTestPrefix        = "Test"
	goTestMain          = "TestMain"
	goTestCleanupHook   = "testing.(*common).runCleanup"
	goTestCleanupRunner = "testing.(*common).Cleanup.func1"
	closureMarker       = ".func"
)

// Conventions names the test runner hooks the Classifier looks for on the stack.
// Hook names match either the fully qualified runtime symbol or the short name.
type Conventions struct {
	// TestPrefix starts the name of every test function. Closures declared inside
	// a test (TestX.func1, subtest bodies) carry the prefix too and count as test frames.
	// A prefix ending in a letter must be followed by a rune that is not lower case,
	// as go test requires: TestCart and Test_cart are tests, Testable is not.
	TestPrefix string

	// SetupHook is the function that runs per-package setup. Neither it nor the
	// closures declared inside it count as tests.
	SetupHook string

	// CleanupHook is the runner function that executes registered cleanups.
	CleanupHook string

	// CleanupRunner is the function that directly invokes one registered cleanup.
	CleanupRunner string
}

// GoTestConventions describes the hooks of the go test runner.
func GoTestConventions() Conventions {
	return Conventions{
		TestPrefix:    goTestPrefix,
		SetupHook:     goTestMain,
		CleanupHook:   goTestCleanupHook,
		CleanupRunner: goTestCleanupRunner,
	}
}

// Validate requires a test prefix; hooks may be left empty to disable them.
func (c Conventions) Validate() error {
	if c.TestPrefix == "" {
		return fmt.Errorf("%w: empty test prefix", ErrInvalidConventions)
	}

	return nil
}

// IsTestName reports whether a (short or fully qualified) function name belongs to a test.
func (c Conventions) IsTestName(name string) bool {
	if c.isSetupName(name) {
		return false
	}

	rest, found := strings.CutPrefix(enclosingFunction(shortFunctionName(name)), c.TestPrefix)
	if !found {
		return false
	}

	last, _ := utf8.DecodeLastRuneInString(c.TestPrefix)
	if !unicode.IsLetter(last) || rest == "" {
		return true
	}

	next, _ := utf8.DecodeRuneInString(rest)

	return !unicode.IsLower(next)
}

// isSetupName reports the setup hook and the closures declared inside it.
func (c Conventions) isSetupName(name string) bool {
	if c.SetupHook == "" {
		return false
	}

	short := shortFunctionName(name)

	return name == c.SetupHook || short == c.SetupHook ||
		enclosingFunction(name) == c.SetupHook || enclosingFunction(short) == c.SetupHook
}

// enclosingFunction strips the closure suffix: "TestMain.func1.2" becomes "TestMain".
func enclosingFunction(name string) string {
	if i := closureIndex(name); i >= 0 {
		return name[:i]
	}

	return name
}

// isClosureName reports names like "TestCheckout.func1" of function literals.
func isClosureName(name string) bool {
	return closureIndex(shortFunctionName(name)) >= 0
}

// closureIndex finds ".funcN"; a method named like ".functional" is not a closure.
func closureIndex(name string) int {
	offset := 0
	for {
		i := strings.Index(name[offset:], closureMarker)
		if i < 0 {
			return -1
		}

		start := offset + i
		end := start + len(closureMarker)
		if end < len(name) && name[end] >= '0' && name[end] <= '9' {
			return start
		}

		offset = end
	}
}

func matchesHook(frame CallFrame, hook string) bool {
	return hook != "" && (frame.Function == hook || frame.ShortName() == hook)
}

// Classification is the call context attributed to one invocation.
type Classification struct {
	Tag            Tag
	CalledBy       string
	TestName       string
	SourceLocation string

	// WalkDepth is the depth of the last frame visited, the matching one if any.
	// It is 0 when no walk happened (skipped calls and tests).
	WalkDepth int
}

// Classifier attributes an invocation to the nearest enclosing test, setup, or cleanup activity.
type Classifier struct {
	Conventions Conventions

	// SourceRoot is stripped, together with everything before it, from source locations.
	SourceRoot string
}

// Classify walks frames (innermost first, wrapper at index 0) and tags the invocation of functionName.
//
// Precedence: a skipped invocation is always TagSkippedTest; otherwise a function that is itself
// named like a test is TagTest without a walk; otherwise the first test, cleanup, or setup frame
// found walking outward decides. calledBy always names the depth 1 frame.
func (c Classifier) Classify(frames []CallFrame, functionName string, wasSkipped bool) Classification {
	result := Classification{Tag: TagOtherFunction}

	var caller CallFrame
	if len(frames) > 1 {
		caller = frames[1]
		result.CalledBy = caller.ShortName()
	}

	if wasSkipped {
		result.Tag = TagSkippedTest
		return result
	}

	if c.Conventions.IsTestName(functionName) && !isClosureName(functionName) {
		result.Tag = TagTest
		return result
	}

	for _, frame := range frames {
		if frame.Depth == 0 {
			continue
		}

		result.WalkDepth = frame.Depth

		if c.Conventions.IsTestName(frame.Function) {
			result.TestName = frame.ShortName()
			result.SourceLocation = fmt.Sprintf("%s [%d]", c.stripSourceRoot(frame.File), frame.Line)

			if frame.Depth == 1 {
				result.Tag = TagTestFunction
			} else {
				result.Tag = TagTestSubfunction
			}

			return result
		}

		if matchesHook(frame, c.Conventions.CleanupHook) {
			result.TestName = testCleanup

			if matchesHook(caller, c.Conventions.CleanupRunner) {
				result.Tag = TagCleanupFunction
			} else {
				result.Tag = TagCleanupSubfunction
			}

			return result
		}

		if c.Conventions.isSetupName(frame.Function) {
			result.TestName = testSetup

			if frame.Depth == 1 {
				result.Tag = TagSetupFunction
			} else {
				result.Tag = TagSetupSubfunction
			}

			return result
		}
	}

	return result
}

func (c Classifier) stripSourceRoot(path string) string {
	if c.SourceRoot == "" {
		return path
	}

	if _, after, found := strings.Cut(path, c.SourceRoot); found {
		return after
	}

	return path
}
