// Package fragstore persists raw audio fragments to disk so that an
// in-flight session survives a process crash.
//
// Layout: one directory per session under the configured root,
// sessions/<sessionID>/chunk-<receiveMillis>.<ext>, file content being the
// received payload verbatim. The store additionally keeps an in-memory
// arrival-order queue per session so the chunk scheduler can draw exactly
// the batch of files matching the fragments it swapped out of the ingest
// buffer, push them back when a stitch attempt fails, and destroy them
// once the batch's chunk row is committed, so crash recovery replays only
// audio that never made it into a chunk.
//
// All methods are safe for concurrent use.
package fragstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// debugDirName is the per-session subdirectory holding stitched debug MP3s.
const debugDirName = "debug"

// archiveDirName is the out-of-session directory debug artifacts are moved
// to when a session is purged with debug preservation enabled.
const archiveDirName = "debug-archive"

// Store is the on-disk fragment store.
type Store struct {
	root          string
	preserveDebug bool

	mu     sync.Mutex
	queues map[string][]string
}

// New creates a Store rooted at root, creating the directory if needed.
// When preserveDebug is set, PurgeSession moves debug artifacts aside
// instead of deleting them.
func New(root string, preserveDebug bool) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("fragstore: create root: %w", err)
	}
	return &Store{
		root:          root,
		preserveDebug: preserveDebug,
		queues:        make(map[string][]string),
	}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// SessionDir returns the directory holding a session's fragment files.
func (s *Store) SessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// DebugDir returns the directory for a session's stitched debug artifacts.
func (s *Store) DebugDir(sessionID string) string {
	return filepath.Join(s.root, sessionID, debugDirName)
}

// Append durably writes payload as the next fragment file for sessionID
// and enqueues its path. The write is fsynced before Append returns.
func (s *Store) Append(sessionID string, payload []byte, ext string) (string, error) {
	dir := s.SessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("fragstore: create session dir: %w", err)
	}

	// Millisecond receive timestamps collide when fragments arrive
	// back-to-back; bump until O_EXCL succeeds.
	ms := time.Now().UnixMilli()
	var f *os.File
	var path string
	for {
		path = filepath.Join(dir, fmt.Sprintf("chunk-%d%s", ms, ext))
		var err error
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("fragstore: create fragment file: %w", err)
		}
		ms++
	}

	if _, err := f.Write(payload); err != nil {
		f.Close()
		return "", fmt.Errorf("fragstore: write fragment: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("fragstore: sync fragment: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("fragstore: close fragment: %w", err)
	}

	s.mu.Lock()
	s.queues[sessionID] = append(s.queues[sessionID], path)
	s.mu.Unlock()

	return path, nil
}

// TakeBatch removes and returns up to n pending fragment paths for
// sessionID in arrival order.
func (s *Store) TakeBatch(sessionID string, n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[sessionID]
	if n > len(q) {
		n = len(q)
	}
	batch := make([]string, n)
	copy(batch, q[:n])
	s.queues[sessionID] = q[n:]
	return batch
}

// Restore pushes paths back to the head of the session's queue, preserving
// their relative order. Used when a stitch attempt fails so the next tick
// (or crash recovery) sees the fragments again.
func (s *Store) Restore(sessionID string, paths []string) {
	if len(paths) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[sessionID] = append(append([]string{}, paths...), s.queues[sessionID]...)
}

// Remove deletes taken fragment files from disk. Call once the batch's
// chunk row is durably persisted, or when the batch is gated and will
// never produce a row; the files then no longer participate in crash
// recovery. Already-missing files are ignored.
func (s *Store) Remove(sessionID string, paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("fragstore: remove fragment failed",
				"session_id", sessionID, "path", p, "err", err)
		}
	}
}

// Pending returns the number of queued fragment paths for sessionID.
func (s *Store) Pending(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[sessionID])
}

// List enumerates a session's fragment files on disk in arrival order
// (by embedded receive-millisecond). Debug artifacts are excluded. Used
// for crash recovery; pair with [Store.Restore] to seed the queue.
func (s *Store) List(sessionID string) ([]string, error) {
	dir := s.SessionDir(sessionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fragstore: list session dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "chunk-") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	// Fragment filenames embed a fixed-width epoch-millisecond timestamp,
	// so lexical order is arrival order.
	sort.Strings(paths)
	return paths, nil
}

// Sessions enumerates the session IDs that have a directory under the
// store root.
func (s *Store) Sessions() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("fragstore: list root: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != archiveDirName {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// PurgeSession deletes the session's directory and drops its queue. When
// debug preservation is enabled, the debug subdirectory is first moved to
// an out-of-session archive path.
func (s *Store) PurgeSession(sessionID string) error {
	s.mu.Lock()
	delete(s.queues, sessionID)
	s.mu.Unlock()

	dir := s.SessionDir(sessionID)

	if s.preserveDebug {
		debugDir := s.DebugDir(sessionID)
		if _, err := os.Stat(debugDir); err == nil {
			dst := filepath.Join(s.root, archiveDirName, fmt.Sprintf("%s-%d", sessionID, time.Now().UnixMilli()))
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return fmt.Errorf("fragstore: create archive dir: %w", err)
			}
			if err := os.Rename(debugDir, dst); err != nil {
				slog.Warn("fragstore: preserve debug artifacts failed", "session_id", sessionID, "err", err)
			}
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("fragstore: purge session: %w", err)
	}
	return nil
}

// StartSweeper launches a background loop that deletes session directories
// whose last-modified time is older than retention. It runs until ctx is
// cancelled. checkEvery controls the sweep frequency.
func (s *Store) StartSweeper(ctx context.Context, checkEvery, retention time.Duration) {
	go func() {
		ticker := time.NewTicker(checkEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(retention)
			}
		}
	}()
}

// sweep deletes stale session directories.
func (s *Store) sweep(retention time.Duration) {
	cutoff := time.Now().Add(-retention)

	entries, err := os.ReadDir(s.root)
	if err != nil {
		slog.Warn("fragstore: sweep read root failed", "err", err)
		return
	}

	for _, e := range entries {
		if !e.IsDir() || e.Name() == archiveDirName {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := s.PurgeSession(e.Name()); err != nil {
			slog.Warn("fragstore: sweep purge failed", "session_id", e.Name(), "err", err)
			continue
		}
		slog.Info("fragstore: swept stale session directory",
			"session_id", e.Name(),
			"age", time.Since(info.ModTime()).Round(time.Hour),
		)
	}
}
