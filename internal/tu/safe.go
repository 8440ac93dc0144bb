package tu

import (
	"fmt"
	"os"
	"runtime/debug"
)

// EnvCrashRecovery disables crash isolation when set to "0"
const EnvCrashRecovery = "CCINDEX_CRASH_RECOVERY"

// CrashError reports a fault inside an isolated parser call
type CrashError struct {
	Value any
	Stack []byte
}

func (e *CrashError) Error() string {
	return fmt.Sprintf("parser crashed: %v", e.Value)
}

// CrashRecoveryEnabled reports whether RunSafely isolates faults
func CrashRecoveryEnabled() bool {
	return os.Getenv(EnvCrashRecovery) != "0"
}

// RunSafely runs fn on its own goroutine and converts a panic into a
// *CrashError. With crash recovery disabled fn runs inline and a panic
// propagates to the caller.
//
// Faults raised inside cgo code cannot be recovered in-process; a frontend
// backed by native code that can fault must be run in a separate process.
func RunSafely(fn func() error) error {
	if !CrashRecoveryEnabled() {
		return fn()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &CrashError{Value: r, Stack: debug.Stack()}
			}
		}()
		done <- fn()
	}()
	return <-done
}
