package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CoalescesRapidTriggers(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 callback invocation, got %d", n)
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var called atomic.Bool
	d.Trigger(func() { called.Store(true) })
	d.Cancel()
	time.Sleep(100 * time.Millisecond)

	if called.Load() {
		t.Error("callback should not have been invoked after cancel")
	}
}

func TestDebouncer_DefaultDuration(t *testing.T) {
	if d := NewDebouncer(0); d.Duration() != DefaultDebounceDuration {
		t.Errorf("expected default duration %v, got %v", DefaultDebounceDuration, d.Duration())
	}
}

type recorder struct {
	mu      sync.Mutex
	batches [][]string
	errs    []error
}

func (r *recorder) change(paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, paths)
}

func (r *recorder) err(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) changed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []string
	for _, b := range r.batches {
		all = append(all, b...)
	}
	slices.Sort(all)
	return slices.Compact(all)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.errs)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// files creates rules.yaml and data.json in a temp dir.
func files(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	rules := filepath.Join(dir, "rules.yaml")
	data := filepath.Join(dir, "data.json")
	writeFile(t, rules, "rules: []")
	writeFile(t, data, "{}")
	return rules, data
}

func start(t *testing.T, paths []string, opts ...Option) *Watcher {
	t.Helper()
	w, err := New(paths, opts...)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_DetectsFileChange(t *testing.T) {
	rules, data := files(t)
	var rec recorder
	start(t, []string{rules, data},
		WithDebounceDuration(50*time.Millisecond),
		WithOnChange(rec.change),
	)
	time.Sleep(100 * time.Millisecond)

	writeFile(t, data, `{"series": []}`)
	time.Sleep(300 * time.Millisecond)

	if got := rec.changed(); !slices.Equal(got, []string{data}) {
		t.Errorf("changed = %v, want [%s]", got, data)
	}
}

func TestWatcher_IgnoresSiblings(t *testing.T) {
	rules, _ := files(t)
	var rec recorder
	start(t, []string{rules},
		WithDebounceDuration(20*time.Millisecond),
		WithOnChange(rec.change),
	)
	time.Sleep(50 * time.Millisecond)

	writeFile(t, filepath.Join(filepath.Dir(rules), "other.txt"), "x")
	time.Sleep(150 * time.Millisecond)

	if got := rec.changed(); len(got) != 0 {
		t.Errorf("unexpected change for sibling file: %v", got)
	}
}

func TestWatcher_PollingCoalescesFiles(t *testing.T) {
	rules, data := files(t)
	var rec recorder
	w := start(t, []string{data, rules, rules},
		WithDebounceDuration(150*time.Millisecond),
		WithPollInterval(30*time.Millisecond),
		WithForcePoll(true),
		WithOnChange(rec.change),
	)
	if !w.IsPolling() {
		t.Fatal("expected watcher to be in polling mode")
	}
	time.Sleep(50 * time.Millisecond)

	writeFile(t, rules, "rules:\n  - alias: cpu\n")
	writeFile(t, data, `{"series": [{"name": "cpu"}]}`)

	select {
	case got := <-w.Changed():
		if !slices.Equal(got, []string{data, rules}) {
			t.Errorf("batch = %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for change notification")
	}

	rec.mu.Lock()
	n := len(rec.batches)
	rec.mu.Unlock()
	if n != 1 {
		t.Errorf("got %d batches, want 1", n)
	}
}

func TestWatcher_CreatedLater(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "late.json")
	var rec recorder
	start(t, []string{path},
		WithDebounceDuration(20*time.Millisecond),
		WithPollInterval(30*time.Millisecond),
		WithForcePoll(true),
		WithOnChange(rec.change),
		WithOnError(rec.err),
	)
	time.Sleep(60 * time.Millisecond)
	if errs := rec.errors(); len(errs) != 0 {
		t.Fatalf("missing file reported before it existed: %v", errs)
	}

	writeFile(t, path, "{}")
	time.Sleep(200 * time.Millisecond)
	if got := rec.changed(); !slices.Equal(got, []string{path}) {
		t.Errorf("changed = %v", got)
	}
}

func TestWatcher_FileRemoved(t *testing.T) {
	rules, data := files(t)
	var rec recorder
	start(t, []string{rules, data},
		WithDebounceDuration(20*time.Millisecond),
		WithPollInterval(40*time.Millisecond),
		WithForcePoll(true),
		WithOnError(rec.err),
	)
	time.Sleep(50 * time.Millisecond)

	if err := os.Remove(data); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	errs := rec.errors()
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want exactly one removal", errs)
	}
	var pe *PathError
	if !errors.Is(errs[0], ErrFileRemoved) || !errors.As(errs[0], &pe) || pe.Path != data {
		t.Errorf("error = %v", errs[0])
	}
}

func TestWatcher_EnvForcePolling(t *testing.T) {
	for _, name := range []string{"FS_FORCE_POLLING", "FS_FORCE_POLL"} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, "yes")
			rules, _ := files(t)
			w := start(t, []string{rules}, WithPollInterval(25*time.Millisecond))
			if !w.IsPolling() {
				t.Fatalf("expected polling mode when %s is set", name)
			}
		})
	}
}

func TestWatcher_RemoteFilesystem_UsesPolling(t *testing.T) {
	rules, data := files(t)

	orig := detectFilesystemTypeFunc
	detectFilesystemTypeFunc = func(p string) FilesystemType {
		if p == data {
			return FSTypeSMB
		}
		return FSTypeLocal
	}
	t.Cleanup(func() { detectFilesystemTypeFunc = orig })

	w := start(t, []string{rules, data}, WithPollInterval(25*time.Millisecond))
	if !w.IsPolling() {
		t.Fatal("expected polling when any path is on a remote filesystem")
	}
	if got := w.FilesystemType(); got != FSTypeSMB {
		t.Fatalf("filesystem type = %v, want %v", got, FSTypeSMB)
	}
}

func TestWatcher_StartStop(t *testing.T) {
	rules, _ := files(t)
	w, err := New([]string{rules})
	if err != nil {
		t.Fatal(err)
	}
	if w.IsStarted() {
		t.Error("watcher should not be started initially")
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if !w.IsStarted() {
		t.Error("watcher should be started after Start()")
	}
	if err := w.Start(); err != ErrAlreadyStarted {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
	w.Stop()
	if w.IsStarted() {
		t.Error("watcher should not be started after Stop()")
	}
	w.Stop()
}

func TestNew_Paths(t *testing.T) {
	if _, err := New([]string{"", "  "}); !errors.Is(err, ErrNoPaths) {
		t.Errorf("error = %v, want ErrNoPaths", err)
	}

	rules, data := files(t)
	w, err := New([]string{rules, "", data, rules}, WithPollInterval(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{data, rules}
	if got := w.Paths(); !slices.Equal(got, want) {
		t.Errorf("Paths() = %v, want %v", got, want)
	}
	if w.PollInterval() != time.Second {
		t.Errorf("poll interval = %v", w.PollInterval())
	}
}

func TestFilesystemType_String(t *testing.T) {
	tests := []struct {
		fsType FilesystemType
		want   string
	}{
		{FSTypeUnknown, "unknown"},
		{FSTypeLocal, "local"},
		{FSTypeNFS, "nfs"},
		{FSTypeSMB, "smb"},
		{FSTypeSSHFS, "sshfs"},
		{FSTypeFUSE, "fuse"},
		{FilesystemType(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.fsType.String(); got != tc.want {
			t.Errorf("FilesystemType(%d).String() = %q, want %q", tc.fsType, got, tc.want)
		}
	}
}

func TestEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"TRUE", true},
		{" yes ", true},
		{"Y", true},
		{"on", true},
		{"0", false},
		{"false", false},
		{"no", false},
		{"", false},
		{"invalid", false},
	}
	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			t.Setenv("TEST_ENV_BOOL", tc.value)
			if got := envBool("TEST_ENV_BOOL"); got != tc.want {
				t.Errorf("envBool(%q) = %v, want %v", tc.value, got, tc.want)
			}
		})
	}
}

func TestDetectFilesystemType(t *testing.T) {
	if got := DetectFilesystemType(""); got != FSTypeUnknown {
		t.Errorf("DetectFilesystemType(\"\") = %v", got)
	}
	// a missing file falls back to its directory
	_ = DetectFilesystemType(filepath.Join(t.TempDir(), "missing.json"))
}
