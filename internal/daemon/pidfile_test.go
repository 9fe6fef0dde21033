package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestWritePIDFile_LiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sniffer.pid")
	// The parent of the test binary is alive for the duration of the test.
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0644); err != nil {
		t.Fatal(err)
	}

	err := writePIDFile(path)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	pid, _ := ReadPID(path)
	if pid != os.Getppid() {
		t.Errorf("PID file overwritten: %d", pid)
	}
}

func TestWritePIDFile_StaleProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sniffer.pid")
	if err := os.WriteFile(path, []byte("2147483640\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := writePIDFile(path); err != nil {
		t.Fatalf("stale PID file should be replaced: %v", err)
	}
	pid, err := ReadPID(path)
	if err != nil {
		t.Fatal(err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
}

func TestWritePIDFile_OwnPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sniffer.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatal(err)
	}
	if err := writePIDFile(path); err != nil {
		t.Errorf("rewriting own PID file failed: %v", err)
	}
}

func TestReadPID_Malformed(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"garbage":  "not-a-pid",
		"negative": "-4",
		"empty":    "",
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadPID(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	if _, err := ReadPID(filepath.Join(dir, "missing")); !os.IsNotExist(err) {
		t.Errorf("missing file: expected not-exist error, got %v", err)
	}
}

func TestRemovePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sniffer.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatal(err)
	}
	if err := removePIDFile(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("PID file still present")
	}
	if err := removePIDFile(path); err != nil {
		t.Errorf("removing a missing PID file should succeed: %v", err)
	}
	if err := removePIDFile(""); err != nil {
		t.Error(err)
	}
}
