package db

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"

	"barn/logging"
)

// DumpReason indicates why a database dump is being performed
type DumpReason int

const (
	DumpShutdown   DumpReason = iota // Server is shutting down
	DumpCheckpoint                   // Periodic checkpoint
	DumpPanic                        // Emergency dump (panic recovery)
)

func (r DumpReason) String() string {
	switch r {
	case DumpShutdown:
		return "shutdown"
	case DumpCheckpoint:
		return "checkpoint"
	case DumpPanic:
		return "panic"
	default:
		return "unknown"
	}
}

var (
	metaBucket    = []byte("metadata")
	objectsBucket = []byte("objects")
)

// CheckpointManager handles periodic database checkpointing. Every
// checkpoint writes two things: the portable Format-4 text database (the
// thing a stock LambdaMOO-family server would load) and a small bbolt side
// file recording checkpoint history and a fast object-name index, so a
// management tool can answer "what got saved, and when" without parsing the
// text dump.
type CheckpointManager struct {
	mu         sync.Mutex
	dbPath     string // Path to main database file
	boltPath   string // Path to the bbolt metadata/index file
	store      *Store
	taskSource TaskSource
	generation int // Checkpoint generation number (0, 1)
	lastSave   time.Time
	interval   time.Duration
	stopChan   chan struct{}
	doneChan   chan struct{}
	log        zerolog.Logger
}

// SetTaskSource wires a source of queued/suspended tasks into every future
// checkpoint write, so forked and suspended tasks survive a restart.
func (cm *CheckpointManager) SetTaskSource(ts TaskSource) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.taskSource = ts
}

// NewCheckpointManager creates a new checkpoint manager
func NewCheckpointManager(dbPath string, store *Store, interval time.Duration) *CheckpointManager {
	return &CheckpointManager{
		dbPath:     dbPath,
		boltPath:   dbPath + ".meta.bolt",
		store:      store,
		generation: 0,
		interval:   interval,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
		log:        logging.Named("checkpoint"),
	}
}

// Start begins periodic checkpointing in a background goroutine
func (cm *CheckpointManager) Start() {
	if cm.interval <= 0 {
		return // Checkpointing disabled
	}
	go cm.checkpointLoop()
}

// Stop stops the checkpoint loop and waits for it to complete
func (cm *CheckpointManager) Stop() {
	if cm.interval <= 0 {
		return
	}
	close(cm.stopChan)
	<-cm.doneChan
}

// checkpointLoop runs periodic checkpoints
func (cm *CheckpointManager) checkpointLoop() {
	defer close(cm.doneChan)
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.stopChan:
			return
		case <-ticker.C:
			if err := cm.Checkpoint(DumpCheckpoint); err != nil {
				cm.log.Error().Err(err).Msg("periodic checkpoint failed")
			}
		}
	}
}

// Checkpoint performs a database checkpoint
// The process is:
// 1. Write to a temporary file (db.#N# where N is 0 or 1)
// 2. Remove the previous checkpoint file
// 3. Rename temp file to main database file
// 4. Record the checkpoint id, reason, time and duration in the bbolt metadata side file
func (cm *CheckpointManager) Checkpoint(reason DumpReason) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	start := time.Now()
	checkpointID := uuid.NewString()

	// Generate temp filename based on reason
	var tempPath string
	if reason == DumpPanic {
		tempPath = cm.dbPath + ".PANIC"
	} else {
		tempPath = fmt.Sprintf("%s.#%d#", cm.dbPath, cm.generation)
	}

	// Write to temp file
	tempFile, err := os.Create(tempPath)
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}

	writer := NewWriter(tempFile, cm.store)
	if cm.taskSource != nil {
		writer.SetTaskSource(cm.taskSource)
	}
	if err := writer.WriteDatabase(); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return errors.Wrap(err, "write database")
	}

	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(err, "close temp file")
	}

	// Remove previous checkpoint (other generation)
	if reason != DumpPanic {
		prevGen := 1 - cm.generation
		prevPath := fmt.Sprintf("%s.#%d#", cm.dbPath, prevGen)
		os.Remove(prevPath) // Ignore error if file doesn't exist
	}

	// Atomic rename temp -> main database
	if err := atomicRename(tempPath, cm.dbPath); err != nil {
		return errors.Wrap(err, "rename temp to main")
	}

	// Update state
	cm.lastSave = time.Now()
	if reason != DumpPanic {
		cm.generation = 1 - cm.generation // Toggle between 0 and 1
	}

	duration := time.Since(start)

	if err := cm.recordMetadata(checkpointID, reason, duration); err != nil {
		// The text database is already safely on disk; losing the history
		// side index is a warning, not a failed checkpoint.
		cm.log.Warn().Err(err).Msg("failed to update bbolt checkpoint index")
	}

	cm.log.Info().
		Str("checkpoint_id", checkpointID).
		Str("reason", reason.String()).
		Dur("duration", duration).
		Msg("checkpoint complete")

	return nil
}

// recordMetadata appends a checkpoint-history entry and refreshes the
// object-name fast index in the bbolt side file.
func (cm *CheckpointManager) recordMetadata(checkpointID string, reason DumpReason, duration time.Duration) error {
	bdb, err := bbolt.Open(cm.boltPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return errors.Wrap(err, "open bbolt metadata file")
	}
	defer bdb.Close()

	return bdb.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return errors.Wrap(err, "create metadata bucket")
		}
		if err := meta.Put([]byte("last_checkpoint_id"), []byte(checkpointID)); err != nil {
			return err
		}
		if err := meta.Put([]byte("last_reason"), []byte(reason.String())); err != nil {
			return err
		}
		if err := meta.Put([]byte("last_saved_at"), []byte(cm.lastSave.Format(time.RFC3339))); err != nil {
			return err
		}
		if err := meta.Put([]byte("last_duration"), []byte(duration.String())); err != nil {
			return err
		}

		objects, err := tx.CreateBucketIfNotExists(objectsBucket)
		if err != nil {
			return errors.Wrap(err, "create objects bucket")
		}
		return cm.store.forEachObject(func(id int64, name string) error {
			return objects.Put([]byte(fmt.Sprintf("%010d", id)), []byte(name))
		})
	})
}

// LastSave returns the time of the last successful save
func (cm *CheckpointManager) LastSave() time.Time {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.lastSave
}

// atomicRename performs an atomic rename operation
// On Unix this is atomic, on Windows we need to handle existing file
func atomicRename(src, dst string) error {
	// On Windows, os.Rename fails if dst exists
	// First try direct rename (works on Unix and when dst doesn't exist)
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	// If that failed, try removing dst first (Windows)
	if os.Remove(dst) == nil {
		return os.Rename(src, dst)
	}

	// If dst removal failed, try backup approach
	backup := dst + ".bak"
	if os.Rename(dst, backup) == nil {
		if err := os.Rename(src, dst); err == nil {
			os.Remove(backup) // Clean up backup
			return nil
		}
		// Restore from backup if rename failed
		os.Rename(backup, dst)
	}

	return err
}

// DumpToFile writes the database to a specific file path
// This is useful for explicit dumps (e.g., -dump flag)
func (cm *CheckpointManager) DumpToFile(path string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "create directory")
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create file")
	}
	defer f.Close()

	writer := NewWriter(f, cm.store)
	if err := writer.WriteDatabase(); err != nil {
		return errors.Wrap(err, "write database")
	}

	return nil
}
