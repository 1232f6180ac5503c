package transitions

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// goroutineID parses the current goroutine id from the runtime stack header.
// It backs the re-entrant acquisition check in modelGuard.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	idField := strings.Fields(strings.TrimPrefix(string(buf), "goroutine "))[0]
	id, _ := strconv.ParseUint(idField, 10, 64)
	return id
}

// capturePanicStack records the current stack with the runtime panic frames
// stripped, leaving the offending hook frame on top.
func capturePanicStack() []byte {
	stack := make([]byte, 8096)
	n := runtime.Stack(stack, false)
	return cleanStackTrace(stack[:n])
}

func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	// remove the panic() call line and its file reference line
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}

// safeCallback runs one hook, converting a panic into a hook failure error
// carrying the cleaned stack in metadata.
func safeCallback(ctx context.Context, cb Callback, evt *EventData) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = cloneMachineError(
				ErrHookFailed,
				fmt.Sprintf("hook panicked: %v", rec),
				nil,
				map[string]any{
					"panic": fmt.Sprint(rec),
					"stack": string(capturePanicStack()),
				},
			)
		}
	}()
	if cb == nil {
		return nil
	}
	return cb(ctx, evt)
}

// safeCondition evaluates one guard, converting a panic into a hook failure.
// A nil condition passes.
func safeCondition(ctx context.Context, cond Condition, evt *EventData) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			err = cloneMachineError(
				ErrHookFailed,
				fmt.Sprintf("condition panicked: %v", rec),
				nil,
				map[string]any{
					"panic": fmt.Sprint(rec),
					"stack": string(capturePanicStack()),
				},
			)
		}
	}()
	if cond == nil {
		return true, nil
	}
	return cond(ctx, evt), nil
}
