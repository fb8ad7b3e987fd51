package statesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Critical files: a state directory without these is considered corrupt
// and is never backed up or used as a restore destination check.
const (
	databaseFile = "openclaw.db"
	sessionsDir  = "sessions"
)

// localMetadataFile sits beside the state so the last backup timestamp
// survives locally without a remote round trip.
const localMetadataFile = ".clawster-backup.json"

// Metadata describes one backup. TimestampMs is the comparison key for
// sync direction; the rest is for operators.
type Metadata struct {
	LastBackupAt string `json:"lastBackupAt"`
	WorkerName   string `json:"workerName"`
	TimestampMs  int64  `json:"timestampMs"`
}

// Syncer replicates one worker's state directory to an object store.
type Syncer struct {
	store      ObjectStore
	workerName string
	dataDir    string

	// now is swappable for tests.
	now func() time.Time
}

// NewSyncer creates a synchronizer for a worker's state directory.
func NewSyncer(store ObjectStore, workerName, dataDir string) *Syncer {
	return &Syncer{
		store:      store,
		workerName: workerName,
		dataDir:    dataDir,
		now:        time.Now,
	}
}

func (s *Syncer) archiveKey() string {
	return s.workerName + "/state.tar.gz"
}

func (s *Syncer) metadataKey() string {
	return s.workerName + "/metadata.json"
}

func (s *Syncer) localMetadataPath() string {
	return filepath.Join(s.dataDir, localMetadataFile)
}

// ValidateBeforeSync checks that a state directory holds all critical
// files. Both backup and restore refuse invalid directories so a corrupt
// copy never propagates in either direction.
func ValidateBeforeSync(dir string) error {
	db := filepath.Join(dir, databaseFile)
	if info, err := os.Stat(db); err != nil || info.IsDir() {
		return fmt.Errorf("state directory %s is missing database file %s", dir, databaseFile)
	}
	sessions := filepath.Join(dir, sessionsDir)
	if info, err := os.Stat(sessions); err != nil || !info.IsDir() {
		return fmt.Errorf("state directory %s is missing sessions directory", dir)
	}
	return nil
}

// ShouldRestore decides whether the remote backup should replace local
// state. Restore happens iff no local state exists, or the remote backup
// is strictly newer. No remote backup always means no restore.
func (s *Syncer) ShouldRestore(ctx context.Context) (bool, error) {
	remote, err := s.remoteMetadata(ctx)
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	local, err := s.localMetadata()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, err
	}

	return remote.TimestampMs > local.TimestampMs, nil
}

// BackupToR2 archives the state directory and uploads it with fresh
// metadata. The metadata object is written after the payload so a
// metadata read never points at a half-uploaded archive.
func (s *Syncer) BackupToR2(ctx context.Context) error {
	if err := ValidateBeforeSync(s.dataDir); err != nil {
		return fmt.Errorf("refusing backup: %w", err)
	}

	payload, err := archiveDir(s.dataDir)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, s.archiveKey(), payload); err != nil {
		return err
	}

	now := s.now()
	meta := Metadata{
		LastBackupAt: now.UTC().Format(time.RFC3339),
		WorkerName:   s.workerName,
		TimestampMs:  now.UnixMilli(),
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := s.store.Put(ctx, s.metadataKey(), encoded); err != nil {
		return err
	}
	if err := s.writeLocalMetadata(meta); err != nil {
		return err
	}

	log.Info().
		Str("worker", s.workerName).
		Int64("timestamp-ms", meta.TimestampMs).
		Int("bytes", len(payload)).
		Msg("state backed up to r2")
	return nil
}

// RestoreFromR2 downloads the remote backup into the state directory and
// verifies the result holds all critical files before adopting the
// remote metadata locally.
func (s *Syncer) RestoreFromR2(ctx context.Context) error {
	meta, err := s.remoteMetadata(ctx)
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return fmt.Errorf("no remote backup exists for worker %s", s.workerName)
		}
		return err
	}

	payload, err := s.store.Get(ctx, s.archiveKey())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := extractArchive(payload, s.dataDir); err != nil {
		return err
	}
	if err := ValidateBeforeSync(s.dataDir); err != nil {
		return fmt.Errorf("restored state is invalid: %w", err)
	}
	if err := s.writeLocalMetadata(meta); err != nil {
		return err
	}

	log.Info().
		Str("worker", s.workerName).
		Int64("timestamp-ms", meta.TimestampMs).
		Msg("state restored from r2")
	return nil
}

func (s *Syncer) remoteMetadata(ctx context.Context) (Metadata, error) {
	body, err := s.store.Get(ctx, s.metadataKey())
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to decode remote metadata: %w", err)
	}
	return meta, nil
}

func (s *Syncer) localMetadata() (Metadata, error) {
	body, err := os.ReadFile(s.localMetadataPath())
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to decode local metadata: %w", err)
	}
	return meta, nil
}

func (s *Syncer) writeLocalMetadata(meta Metadata) error {
	encoded, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.localMetadataPath(), encoded, 0o600); err != nil {
		return fmt.Errorf("failed to write local metadata: %w", err)
	}
	return nil
}
