package statestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/browseros-org/sidecar-supervisor/internal/model"
)

func TestReadWriteDelete_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	got, err := s.Read()
	if err != nil {
		t.Fatalf("Read on absent file: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for absent file, got %+v", got)
	}

	want := model.ServerState{PID: 4242, CreationTime: 1234567890}
	if err := s.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err = s.Read()
	if err != nil {
		t.Fatalf("Read after write: %v", err)
	}
	if got == nil || *got != want {
		t.Fatalf("Read = %+v, want %+v", got, want)
	}

	if err := s.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err = s.Read()
	if err != nil {
		t.Fatalf("Read after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil after delete, got %+v", got)
	}
}

func TestDelete_IdempotentOnAbsence(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Delete(); err != nil {
		t.Fatalf("Delete on never-written store: %v", err)
	}
	if err := s.Delete(); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestRead_CorruptedFileIsTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	if err := os.WriteFile(filepath.Join(dir, "server.state"), []byte("{not valid json"), 0o600); err != nil {
		t.Fatalf("write corrupted file: %v", err)
	}

	got, err := s.Read()
	if err != nil {
		t.Fatalf("Read on corrupted file should not error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for corrupted file, got %+v", got)
	}
}

func TestWrite_OverwritesExistingState(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	if err := s.Write(model.ServerState{PID: 1, CreationTime: 1}); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	second := model.ServerState{PID: 2, CreationTime: 2}
	if err := s.Write(second); err != nil {
		t.Fatalf("second Write: %v", err)
	}

	got, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got == nil || *got != second {
		t.Fatalf("Read = %+v, want %+v", got, second)
	}
}

func TestWrite_CreatesExecutionDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exec")
	s := New(dir)

	if err := s.Write(model.ServerState{PID: 7, CreationTime: 7}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("execution directory not created: %v", err)
	}
}

func TestWrite_NoStrayTempFileOnSuccess(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	if err := s.Write(model.ServerState{PID: 1, CreationTime: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "server.state.tmp")); !os.IsNotExist(err) {
		t.Error("temp file should not survive a successful write")
	}
}
