// Package persistence provides crash-safe durability for the document: an
// atomically-replaced snapshot file plus a write-ahead journal replayed on
// recovery.
package persistence

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"icepeak/internal/journal"
	"icepeak/internal/log"
	"icepeak/internal/metrics"
	"icepeak/internal/store"
	"icepeak/internal/value"
)

// Config names the on-disk locations persistence operates on.
type Config struct {
	// DataFile holds the full document as one JSON value.
	DataFile string
	// JournalFile holds the write-ahead log. Empty disables journaling
	// (writes become durable only at the next Sync).
	JournalFile string
}

// PersistentValue is the durable document: an in-memory Value kept behind a
// lock-free atomic pointer for concurrent reads, mutated exclusively by a
// single owner (the coordinator) through Apply.
type PersistentValue struct {
	cfg     Config
	current atomic.Pointer[value.Value]
	dirty   atomic.Bool
	journal *journal.Journal
}

// Load reads the snapshot at cfg.DataFile (treating a missing file as an
// empty document, per the documented Open Question resolution) and, if
// cfg.JournalFile is set, opens the journal and replays every
// successfully-parsed entry on top of the snapshot. The recovered state is
// then synced back to disk and the journal truncated, so a repeated crash
// during recovery itself cannot accumulate unbounded replay cost.
func Load(cfg Config) (*PersistentValue, error) {
	pv := &PersistentValue{cfg: cfg}

	v, err := loadSnapshot(cfg.DataFile)
	if err != nil {
		return nil, fmt.Errorf("persistence: load snapshot: %w", err)
	}
	pv.current.Store(&v)

	if cfg.JournalFile != "" {
		j, err := journal.Open(cfg.JournalFile)
		if err != nil {
			return nil, fmt.Errorf("persistence: open journal: %w", err)
		}
		pv.journal = j

		var replayed, skipped int
		err = j.ReadAll(func(m store.Modification) {
			cur := *pv.current.Load()
			next := store.Apply(cur, m)
			pv.current.Store(&next)
			replayed++
		}, func(line string, err error) {
			skipped++
			log.WithComponent("persistence").Warn().
				Str("line", line).Err(err).Msg("skipping malformed journal entry during recovery")
		})
		if err != nil {
			return nil, fmt.Errorf("persistence: replay journal: %w", err)
		}
		if replayed > 0 || skipped > 0 {
			pv.dirty.Store(true)
			log.WithComponent("persistence").Info().
				Int("replayed", replayed).Int("skipped", skipped).Msg("replayed journal on startup")
			if err := pv.Sync(); err != nil {
				return nil, fmt.Errorf("persistence: sync after recovery: %w", err)
			}
		}
	}

	return pv, nil
}

func loadSnapshot(path string) (value.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return value.Decode(data)
}

// Value returns the current document. Safe for concurrent use; never
// blocks on a writer.
func (pv *PersistentValue) Value() value.Value {
	return *pv.current.Load()
}

// Apply durably journals m (if journaling is enabled) and then applies it
// to the in-memory document. If the journal write fails, the in-memory
// document is left unchanged and the error is returned, so a client never
// observes a modification that was not made durable.
func (pv *PersistentValue) Apply(m store.Modification) (value.Value, error) {
	if pv.journal != nil {
		if err := pv.journal.Append(m); err != nil {
			return nil, fmt.Errorf("persistence: journal write: %w", err)
		}
		metrics.JournalBytesWritten.Add(float64(estimateSize(m)))
	}
	cur := *pv.current.Load()
	next := store.Apply(cur, m)
	pv.current.Store(&next)
	pv.dirty.Store(true)
	metrics.ModificationsTotal.Inc()
	return next, nil
}

// Sync rewrites the snapshot file if the document has changed since the
// last sync, atomically replacing the previous snapshot, then truncates the
// journal. If nothing is dirty, Sync is a no-op.
func (pv *PersistentValue) Sync() error {
	if !pv.dirty.CompareAndSwap(true, false) {
		return nil
	}
	v := *pv.current.Load()
	data, err := value.Encode(v)
	if err != nil {
		pv.dirty.Store(true)
		return fmt.Errorf("persistence: encode snapshot: %w", err)
	}

	tmp := pv.cfg.DataFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		pv.dirty.Store(true)
		return fmt.Errorf("persistence: write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, pv.cfg.DataFile); err != nil {
		pv.dirty.Store(true)
		return fmt.Errorf("persistence: rename snapshot: %w", err)
	}
	metrics.SnapshotBytesWritten.Add(float64(len(data)))
	metrics.DataFileBytes.Set(float64(len(data)))

	if pv.journal != nil {
		if err := pv.journal.Truncate(); err != nil {
			return fmt.Errorf("persistence: truncate journal: %w", err)
		}
	}
	return nil
}

// Close syncs one final time and releases the journal handle.
func (pv *PersistentValue) Close() error {
	if err := pv.Sync(); err != nil {
		log.WithComponent("persistence").Error().Err(err).Msg("final sync failed during close")
	}
	if pv.journal != nil {
		return pv.journal.Close()
	}
	return nil
}

func estimateSize(m store.Modification) int {
	data, err := value.Encode(m.Value)
	if err != nil {
		return 0
	}
	return len(data) + len(m.Path)*8 + 16
}
