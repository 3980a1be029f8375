package utils

import (
	"os"
	"testing"
)

func TestIsProcessAlive(t *testing.T) {
	if !IsProcessAlive(os.Getpid()) {
		t.Fatalf("current process should be alive")
	}
	if IsProcessAlive(0) || IsProcessAlive(-1) {
		t.Fatalf("non-positive pids must not be alive")
	}
}
