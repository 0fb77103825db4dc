package fragstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newStore(t *testing.T, preserveDebug bool) *Store {
	t.Helper()
	s, err := New(t.TempDir(), preserveDebug)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestAppendWritesFileAndQueues(t *testing.T) {
	s := newStore(t, false)

	path, err := s.Append("s1", []byte("fragment-bytes"), ".webm")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fragment: %v", err)
	}
	if string(data) != "fragment-bytes" {
		t.Errorf("fragment content = %q", data)
	}
	if filepath.Ext(path) != ".webm" {
		t.Errorf("extension = %q, want .webm", filepath.Ext(path))
	}
	if got := s.Pending("s1"); got != 1 {
		t.Errorf("Pending = %d, want 1", got)
	}
}

func TestAppendBackToBackNoCollision(t *testing.T) {
	s := newStore(t, false)

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		path, err := s.Append("s1", []byte{byte(i)}, ".webm")
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if seen[path] {
			t.Fatalf("duplicate fragment path %q", path)
		}
		seen[path] = true
	}
	if got := s.Pending("s1"); got != 10 {
		t.Errorf("Pending = %d, want 10", got)
	}
}

func TestRemoveDeletesTakenFiles(t *testing.T) {
	s := newStore(t, false)

	var paths []string
	for i := 0; i < 3; i++ {
		p, err := s.Append("s1", []byte{byte(i)}, ".webm")
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		paths = append(paths, p)
	}

	batch := s.TakeBatch("s1", 2)
	s.Remove("s1", batch)

	for _, p := range batch {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("removed fragment %q still on disk", p)
		}
	}
	remaining, err := s.List("s1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 || remaining[0] != paths[2] {
		t.Errorf("List = %v, want only %q", remaining, paths[2])
	}

	// Removing again is harmless.
	s.Remove("s1", batch)
}

func TestTakeBatchArrivalOrder(t *testing.T) {
	s := newStore(t, false)

	var want []string
	for i := 0; i < 3; i++ {
		p, err := s.Append("s1", []byte{byte(i)}, ".webm")
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		want = append(want, p)
	}

	got := s.TakeBatch("s1", 2)
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("TakeBatch = %v, want first two of %v", got, want)
	}
	if s.Pending("s1") != 1 {
		t.Errorf("Pending = %d, want 1", s.Pending("s1"))
	}

	// Asking for more than available drains the queue.
	rest := s.TakeBatch("s1", 10)
	if len(rest) != 1 || rest[0] != want[2] {
		t.Errorf("TakeBatch = %v, want [%s]", rest, want[2])
	}
}

func TestRestorePrependsPreservingOrder(t *testing.T) {
	s := newStore(t, false)

	var paths []string
	for i := 0; i < 4; i++ {
		p, err := s.Append("s1", []byte{byte(i)}, ".webm")
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		paths = append(paths, p)
	}

	taken := s.TakeBatch("s1", 2)
	s.Restore("s1", taken)

	// The restored fragments must come out first, in their original order.
	got := s.TakeBatch("s1", 4)
	for i, p := range paths {
		if got[i] != p {
			t.Fatalf("order after restore = %v, want %v", got, paths)
		}
	}
}

func TestListMatchesArrivalOrder(t *testing.T) {
	s := newStore(t, false)

	var want []string
	for i := 0; i < 5; i++ {
		p, err := s.Append("s1", []byte{byte(i)}, ".webm")
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		want = append(want, p)
	}

	got, err := s.List("s1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("List returned %d paths, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestListUnknownSession(t *testing.T) {
	s := newStore(t, false)
	paths, err := s.List("ghost")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if paths != nil {
		t.Errorf("List = %v, want nil", paths)
	}
}

func TestSessionsSkipsArchive(t *testing.T) {
	s := newStore(t, false)
	if _, err := s.Append("s1", []byte("a"), ".webm"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := s.Append("s2", []byte("b"), ".webm"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(s.Root(), archiveDirName), 0o755); err != nil {
		t.Fatalf("mkdir archive: %v", err)
	}

	ids, err := s.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("Sessions = %v, want [s1 s2]", ids)
	}
}

func TestPurgeSessionRemovesDirAndQueue(t *testing.T) {
	s := newStore(t, false)
	if _, err := s.Append("s1", []byte("a"), ".webm"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := s.PurgeSession("s1"); err != nil {
		t.Fatalf("PurgeSession: %v", err)
	}
	if _, err := os.Stat(s.SessionDir("s1")); !os.IsNotExist(err) {
		t.Error("session dir still exists after purge")
	}
	if s.Pending("s1") != 0 {
		t.Errorf("Pending = %d after purge", s.Pending("s1"))
	}
}

func TestPurgeSessionPreservesDebugArtifacts(t *testing.T) {
	s := newStore(t, true)
	if _, err := s.Append("s1", []byte("a"), ".webm"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	debugDir := s.DebugDir("s1")
	if err := os.MkdirAll(debugDir, 0o755); err != nil {
		t.Fatalf("mkdir debug: %v", err)
	}
	artifact := filepath.Join(debugDir, "combined-123.mp3")
	if err := os.WriteFile(artifact, []byte("mp3"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	if err := s.PurgeSession("s1"); err != nil {
		t.Fatalf("PurgeSession: %v", err)
	}
	if _, err := os.Stat(s.SessionDir("s1")); !os.IsNotExist(err) {
		t.Error("session dir still exists after purge")
	}

	// The artifact should have moved under the archive directory.
	matches, err := filepath.Glob(filepath.Join(s.Root(), archiveDirName, "s1-*", "combined-123.mp3"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("archived artifacts = %v, want exactly one", matches)
	}
}

func TestSweepDeletesOnlyStaleSessions(t *testing.T) {
	s := newStore(t, false)
	if _, err := s.Append("old", []byte("a"), ".webm"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := s.Append("fresh", []byte("b"), ".webm"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Age the old session's directory past the retention window.
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(s.SessionDir("old"), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	s.sweep(24 * time.Hour)

	if _, err := os.Stat(s.SessionDir("old")); !os.IsNotExist(err) {
		t.Error("stale session dir survived sweep")
	}
	if _, err := os.Stat(s.SessionDir("fresh")); err != nil {
		t.Errorf("fresh session dir swept: %v", err)
	}
}

func TestExtRoundTrip(t *testing.T) {
	cases := []struct {
		mime string
		ext  string
	}{
		{"audio/webm;codecs=opus", ".webm"},
		{"audio/webm", ".webm"},
		{"audio/ogg", ".ogg"},
		{"audio/mpeg", ".mp3"},
		{"audio/mp4", ".m4a"},
		{"audio/wav", ".wav"},
		{"application/x-mystery", ".bin"},
	}
	for _, tc := range cases {
		if got := ExtForMIME(tc.mime); got != tc.ext {
			t.Errorf("ExtForMIME(%q) = %q, want %q", tc.mime, got, tc.ext)
		}
	}

	if !IsWebM("audio/webm;codecs=opus") {
		t.Error("IsWebM should accept codec-suffixed webm")
	}
	if IsWebM("audio/mpeg") {
		t.Error("IsWebM accepted audio/mpeg")
	}

	if got := MIMEForExt(".webm"); got != "audio/webm" {
		t.Errorf("MIMEForExt(.webm) = %q", got)
	}
	if got := MIMEForExt(".bin"); got != "application/octet-stream" {
		t.Errorf("MIMEForExt(.bin) = %q", got)
	}
}
