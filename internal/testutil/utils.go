package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger tagged with the test name. Output goes to stderr
// once the test has finished, so late writes from pumps are harmless.
func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "["+t.Name()+"] ", log.LstdFlags|log.Lmicroseconds)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}
