package statesync

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeStore struct {
	objects map[string][]byte
	puts    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	body, ok := s.objects[key]
	if !ok {
		return nil, ErrNotExist
	}
	return body, nil
}

func (s *fakeStore) Put(_ context.Context, key string, body []byte) error {
	s.objects[key] = body
	s.puts = append(s.puts, key)
	return nil
}

// writeValidState populates a directory with the critical files.
func writeValidState(t *testing.T, dir string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, databaseFile), []byte("sqlite"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, sessionsDir), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, sessionsDir, "s1.json"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func newTestSyncer(t *testing.T) (*Syncer, *fakeStore, string) {
	t.Helper()
	dir := t.TempDir()
	store := newFakeStore()
	syncer := NewSyncer(store, "openclaw-support-bot", dir)
	return syncer, store, dir
}

func (s *Syncer) withClock(t time.Time) *Syncer {
	s.now = func() time.Time { return t }
	return s
}

func writeLocalTimestamp(t *testing.T, dir string, ms int64) {
	t.Helper()
	meta := Metadata{WorkerName: "openclaw-support-bot", TimestampMs: ms}
	body, _ := json.Marshal(meta)
	if err := os.WriteFile(filepath.Join(dir, localMetadataFile), body, 0o600); err != nil {
		t.Fatal(err)
	}
}

func writeRemoteTimestamp(t *testing.T, store *fakeStore, ms int64) {
	t.Helper()
	meta := Metadata{WorkerName: "openclaw-support-bot", TimestampMs: ms}
	body, _ := json.Marshal(meta)
	store.objects["openclaw-support-bot/metadata.json"] = body
}

func TestShouldRestore(t *testing.T) {
	tests := []struct {
		name     string
		localMs  int64 // 0 means no local metadata
		remoteMs int64 // 0 means no remote backup
		want     bool
	}{
		{"no local no remote", 0, 0, false},
		{"no local remote present", 0, 100, true},
		{"remote newer", 100, 150, true},
		{"local newer", 150, 100, false},
		{"equal timestamps", 100, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer, store, dir := newTestSyncer(t)
			if tt.localMs != 0 {
				writeLocalTimestamp(t, dir, tt.localMs)
			}
			if tt.remoteMs != 0 {
				writeRemoteTimestamp(t, store, tt.remoteMs)
			}

			got, err := syncer.ShouldRestore(context.Background())
			if err != nil {
				t.Fatalf("ShouldRestore: %v", err)
			}
			if got != tt.want {
				t.Errorf("ShouldRestore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateBeforeSync(t *testing.T) {
	dir := t.TempDir()
	if err := ValidateBeforeSync(dir); err == nil {
		t.Error("empty directory validated")
	}

	if err := os.WriteFile(filepath.Join(dir, databaseFile), []byte("db"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := ValidateBeforeSync(dir); err == nil {
		t.Error("directory without sessions validated")
	}

	if err := os.MkdirAll(filepath.Join(dir, sessionsDir), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := ValidateBeforeSync(dir); err != nil {
		t.Errorf("valid directory rejected: %v", err)
	}
}

func TestBackupRefusesInvalidState(t *testing.T) {
	syncer, store, _ := newTestSyncer(t)
	if err := syncer.BackupToR2(context.Background()); err == nil {
		t.Fatal("backup of an invalid directory succeeded")
	}
	if len(store.puts) != 0 {
		t.Errorf("backup wrote %q despite invalid state", store.puts)
	}
}

func TestBackupWritesPayloadBeforeMetadata(t *testing.T) {
	syncer, store, dir := newTestSyncer(t)
	writeValidState(t, dir)
	syncer.withClock(time.UnixMilli(1700000000000))

	if err := syncer.BackupToR2(context.Background()); err != nil {
		t.Fatalf("backup: %v", err)
	}
	if len(store.puts) != 2 {
		t.Fatalf("puts = %q", store.puts)
	}
	if store.puts[0] != "openclaw-support-bot/state.tar.gz" || store.puts[1] != "openclaw-support-bot/metadata.json" {
		t.Errorf("metadata must be written after the payload, got %q", store.puts)
	}

	var meta Metadata
	if err := json.Unmarshal(store.objects["openclaw-support-bot/metadata.json"], &meta); err != nil {
		t.Fatal(err)
	}
	if meta.TimestampMs != 1700000000000 {
		t.Errorf("timestamp = %d", meta.TimestampMs)
	}
	if meta.WorkerName != "openclaw-support-bot" {
		t.Errorf("worker name = %q", meta.WorkerName)
	}
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	syncer, store, dir := newTestSyncer(t)
	writeValidState(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "extra.txt"), []byte("keep me"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := syncer.BackupToR2(context.Background()); err != nil {
		t.Fatalf("backup: %v", err)
	}

	restoreDir := t.TempDir()
	restorer := NewSyncer(store, "openclaw-support-bot", restoreDir)
	if err := restorer.RestoreFromR2(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	body, err := os.ReadFile(filepath.Join(restoreDir, "extra.txt"))
	if err != nil || string(body) != "keep me" {
		t.Errorf("restored file = %q, %v", body, err)
	}
	if err := ValidateBeforeSync(restoreDir); err != nil {
		t.Errorf("restored state invalid: %v", err)
	}

	// The restored copy adopts the remote timestamp, so a subsequent
	// ShouldRestore is a no-op.
	should, err := restorer.ShouldRestore(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if should {
		t.Error("freshly restored state wants another restore")
	}
}

func TestRestoreWithoutRemoteFails(t *testing.T) {
	syncer, _, _ := newTestSyncer(t)
	if err := syncer.RestoreFromR2(context.Background()); err == nil {
		t.Fatal("restore without a remote backup succeeded")
	}
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	payload := maliciousArchive(t)
	if err := extractArchive(payload, t.TempDir()); err == nil {
		t.Fatal("archive with escaping path extracted")
	}
}

// maliciousArchive builds a tar.gz whose single entry points outside the
// extraction directory.
func maliciousArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	content := []byte("evil")
	if err := tw.WriteHeader(&tar.Header{
		Name:     "../evil.txt",
		Typeflag: tar.TypeReg,
		Mode:     0o600,
		Size:     int64(len(content)),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
