package logging

import (
	"os"
	"testing"
)

// devNull returns a writable file discarding output, for tests that need a
// real *os.File to hand to NewZerolog without polluting test output.
func devNull(t *testing.T) *os.File {
	f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}
