package finalize

import (
	"fmt"
	"runtime"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

// PanicLogger receives a recovered panic together with the cleaned stack.
type PanicLogger func(funcName string, err any, stack []byte, fields ...map[string]any)

// MakePanicHandler returns a deferrable function that recovers a panic, logs
// it and stores it in errp as a FINALIZE_STEP_PANIC error.
func MakePanicHandler(logger PanicLogger) func(funcName string, errp *error, fields ...map[string]any) {
	return func(funcName string, errp *error, fields ...map[string]any) {
		if r := recover(); r != nil {
			fullStack := make([]byte, 8096)
			n := runtime.Stack(fullStack, false)
			stack := cleanStackTrace(fullStack[:n])

			if logger != nil {
				logger(funcName, r, stack, fields...)
			}
			if errp != nil {
				*errp = panicError(funcName, r)
			}
		}
	}
}

// LoggerPanicHandler logs recovered panics through logger.
func LoggerPanicHandler(logger Logger) PanicLogger {
	logger = NormalizeLogger(logger)
	return func(funcName string, err any, stack []byte, fields ...map[string]any) {
		l := logger
		if len(fields) > 0 && fields[0] != nil {
			l = WithLoggerFields(logger, fields[0])
		}
		l.Error("recovered from panic in %s: %v (%T)\n%s", funcName, err, err, stack)
	}
}

func panicError(funcName string, r any) error {
	var source error
	if e, ok := r.(error); ok {
		source = e
	} else {
		source = fmt.Errorf("%v", r)
	}
	return Wrap(source, apperrors.CategoryHandler, ErrCodeStepPanic, fmt.Sprintf("panic in %s", funcName),
		map[string]any{"func": funcName})
}

func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	// we find the index after the panic line
	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	// remove the panic() call line & file reference line
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}
