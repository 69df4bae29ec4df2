package engine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/paulschiretz/pgl-series/pkg/config"
	"github.com/paulschiretz/pgl-series/pkg/engine"
	"github.com/paulschiretz/pgl-series/pkg/hook"
	"github.com/paulschiretz/pgl-series/pkg/logarchive"
	"github.com/paulschiretz/pgl-series/pkg/materialize"
	"github.com/paulschiretz/pgl-series/pkg/planner"
	"github.com/paulschiretz/pgl-series/pkg/plog"
	"github.com/paulschiretz/pgl-series/pkg/recovery"
	"github.com/paulschiretz/pgl-series/pkg/runerr"
	"github.com/paulschiretz/pgl-series/pkg/seriesindex"
	"github.com/paulschiretz/pgl-series/pkg/serieslock"
	"github.com/paulschiretz/pgl-series/pkg/syncexec"
)

// --- Mocks ---

// fakeSyncer copies sources into the destination the way rsync does: unchanged
// files are left alone and changed files are replaced by a new inode, so hard
// links into older snapshots are never written through.
type fakeSyncer struct {
	err          error
	writePartial bool
	calls        []string
}

func (f *fakeSyncer) Sync(ctx context.Context, sources []string, destination string, policy syncexec.Policy) (syncexec.Result, error) {
	f.calls = append(f.calls, destination)
	if err := syncexec.CheckSources(sources); err != nil {
		return syncexec.Result{}, err
	}
	if f.err != nil {
		if f.writePartial {
			os.WriteFile(filepath.Join(destination, "partial.txt"), []byte("partial"), 0644)
		}
		return syncexec.Result{}, f.err
	}

	var summary syncexec.ChangeSummary
	for _, src := range sources {
		root := destination
		if !strings.HasSuffix(src, string(filepath.Separator)) {
			root = filepath.Join(destination, filepath.Base(src))
		}
		err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, _ := filepath.Rel(src, path)
			dst := filepath.Join(root, rel)
			if d.IsDir() {
				return os.MkdirAll(dst, 0755)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			existing, err := os.ReadFile(dst)
			if err == nil && bytes.Equal(existing, data) {
				return nil
			}
			if err == nil {
				summary.Changed++
			} else {
				summary.Added++
			}
			tmp := dst + ".tmp"
			if err := os.WriteFile(tmp, data, 0644); err != nil {
				return err
			}
			return os.Rename(tmp, dst)
		})
		if err != nil {
			return syncexec.Result{}, runerr.New(runerr.SyncFailure, "fake sync", err)
		}
	}
	cmd := fmt.Sprintf("rsync %s %s %s", strings.Join(policy.Flags(), " "), strings.Join(sources, " "), destination)
	return syncexec.Result{Summary: summary, Command: cmd}, nil
}

type mockHooks struct {
	preErr error
	envs   []hook.Env
}

func (m *mockHooks) RunPreHook(ctx context.Context, p *hook.Plan, env hook.Env) error {
	env.Stage = "pre"
	m.envs = append(m.envs, env)
	return m.preErr
}

func (m *mockHooks) RunPostHook(ctx context.Context, p *hook.Plan, env hook.Env) error {
	env.Stage = "post"
	m.envs = append(m.envs, env)
	return nil
}

// --- Helpers ---

var (
	t1 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)
	t2 = t1.Add(time.Hour)
	t3 = t2.Add(time.Hour)
	t4 = t3.Add(time.Hour)
)

func ts(t time.Time) string { return seriesindex.FormatTimestamp(t) }

type fixture struct {
	root   string
	src    string
	dest   string
	logDir string
	slot   string
	syncer *fakeSyncer
	runner *engine.Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("run timestamps contain ':' which is not valid in Windows file names")
	}
	root := t.TempDir()
	f := &fixture{
		root:   root,
		src:    filepath.Join(root, "src"),
		dest:   filepath.Join(root, "dest"),
		logDir: filepath.Join(root, "logs"),
		syncer: &fakeSyncer{},
	}
	f.slot = filepath.Join(f.dest, "active_series")
	writeFile(t, filepath.Join(f.src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(f.src, "sub", "b.txt"), "beta")

	log := plog.Discard()
	f.runner = engine.NewRunner(
		log,
		f.syncer,
		materialize.New(log),
		hook.NewHookExecutor(log, exec.CommandContext, nil),
		logarchive.New(log),
	)
	return f
}

func (f *fixture) plan(t *testing.T, at time.Time, mod func(*config.Config)) *planner.RunPlan {
	t.Helper()
	cfg := config.NewDefault()
	cfg.Destination = f.dest
	cfg.Sources = []string{f.src + string(filepath.Separator)}
	cfg.Logs.Directory = f.logDir
	if mod != nil {
		mod(&cfg)
	}
	p, err := planner.GenerateRunPlan(cfg, at)
	if err != nil {
		t.Fatalf("GenerateRunPlan failed: %v", err)
	}
	return p
}

func (f *fixture) run(t *testing.T, at time.Time, mod func(*config.Config)) engine.Result {
	t.Helper()
	return f.runner.ExecuteBackup(context.Background(), f.plan(t, at, mod))
}

func (f *fixture) mustRun(t *testing.T, at time.Time, mod func(*config.Config)) engine.Result {
	t.Helper()
	res := f.run(t, at, mod)
	if !res.Success {
		t.Fatalf("run at %s failed: %s", ts(at), res.Diagnostic)
	}
	return res
}

func (f *fixture) snapshot(at time.Time) string { return filepath.Join(f.slot, ts(at)) }

func incremental(c *config.Config) { c.Runtime.Incremental = true }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func sameFile(t *testing.T, a, b string) bool {
	t.Helper()
	ai, err := os.Stat(a)
	if err != nil {
		t.Fatal(err)
	}
	bi, err := os.Stat(b)
	if err != nil {
		t.Fatal(err)
	}
	return os.SameFile(ai, bi)
}

func loadIndex(t *testing.T, slot string) *seriesindex.Index {
	t.Helper()
	idx, err := seriesindex.Load(slot)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return idx
}

func timestamps(t *testing.T, idx *seriesindex.Index) []string {
	t.Helper()
	keys, err := idx.Timestamps()
	if err != nil {
		t.Fatal(err)
	}
	return keys
}

// listTree returns every path below root with the content of regular files.
func listTree(t *testing.T, root string) map[string]string {
	t.Helper()
	tree := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if d.Type().IsRegular() {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			tree[rel] = string(data)
			return nil
		}
		tree[rel] = d.Type().String()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return tree
}

func assertKind(t *testing.T, res engine.Result, want runerr.Kind) {
	t.Helper()
	if res.Success {
		t.Fatalf("expected failure with %v, run succeeded", want)
	}
	if got := runerr.KindOf(res.Err); got != want {
		t.Fatalf("expected error kind %v, got %v (%v)", want, got, res.Err)
	}
}

// --- Tests ---

func TestExecuteBackup_FullIntoEmptyDestination(t *testing.T) {
	f := newFixture(t)

	res := f.mustRun(t, t1, nil)

	if res.Snapshot != f.snapshot(t1) || res.Type != seriesindex.Full {
		t.Errorf("unexpected result %+v", res)
	}
	if got := readFile(t, filepath.Join(f.snapshot(t1), "sub", "b.txt")); got != "beta" {
		t.Errorf("expected synced content, got %q", got)
	}
	if res.Summary.Added != 2 {
		t.Errorf("expected 2 added files, got %d", res.Summary.Added)
	}

	idx := loadIndex(t, f.slot)
	if _, ok := idx.Active(); ok {
		t.Error("ACTIVE marker must be promoted after a successful run")
	}
	if diff := cmp.Diff([]string{ts(t1)}, timestamps(t, idx)); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}
	rec, _ := idx.Record(ts(t1))
	if rec.Status != seriesindex.StatusComplete || rec.Type != seriesindex.Full {
		t.Errorf("unexpected record %+v", rec)
	}
	if !strings.HasPrefix(rec.SyncCommand, "rsync -av --itemize-changes --delete") {
		t.Errorf("expected the sync command to be recorded, got %q", rec.SyncCommand)
	}
	if rec.RunID == "" || rec.BackupRoot != f.dest {
		t.Errorf("expected run id and backup root, got %+v", rec)
	}

	if _, err := os.Stat(filepath.Join(f.logDir, ts(t1)+".log")); err != nil {
		t.Errorf("expected run log file: %v", err)
	}
}

func TestExecuteBackup_IncrementalHardLinksUnchangedFiles(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, t1, nil)

	writeFile(t, filepath.Join(f.src, "sub", "b.txt"), "beta v2")
	res := f.mustRun(t, t2, incremental)

	if res.Type != seriesindex.Incremental || res.Retired != "" {
		t.Errorf("unexpected result %+v", res)
	}
	if !sameFile(t, filepath.Join(f.snapshot(t1), "a.txt"), filepath.Join(f.snapshot(t2), "a.txt")) {
		t.Error("unchanged file must be a hard link to the base snapshot")
	}
	if sameFile(t, filepath.Join(f.snapshot(t1), "sub", "b.txt"), filepath.Join(f.snapshot(t2), "sub", "b.txt")) {
		t.Error("changed file must not share an inode with the base snapshot")
	}
	if got := readFile(t, filepath.Join(f.snapshot(t1), "sub", "b.txt")); got != "beta" {
		t.Errorf("base snapshot was modified: %q", got)
	}
	if got := readFile(t, filepath.Join(f.snapshot(t2), "sub", "b.txt")); got != "beta v2" {
		t.Errorf("expected new content in incremental snapshot, got %q", got)
	}

	idx := loadIndex(t, f.slot)
	if diff := cmp.Diff([]string{ts(t1), ts(t2)}, timestamps(t, idx)); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}
	rec, _ := idx.Record(ts(t2))
	if rec.Type != seriesindex.Incremental || rec.Status != seriesindex.StatusComplete {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestExecuteBackup_IncrementalWithoutSeriesRunsFull(t *testing.T) {
	f := newFixture(t)

	res := f.mustRun(t, t1, incremental)

	if res.Type != seriesindex.Full {
		t.Errorf("expected downgrade to full, got %v", res.Type)
	}
	rec, _ := loadIndex(t, f.slot).Record(ts(t1))
	if rec.Type != seriesindex.Full {
		t.Errorf("expected full record, got %v", rec.Type)
	}
}

func TestExecuteBackup_InterruptedRunBlocksThenContinues(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, t1, nil)

	// The process dies after the marker was written: the marker stays failed.
	f.syncer.err = runerr.Newf(runerr.SyncFailure, "sync", "killed")
	f.syncer.writePartial = true
	assertKind(t, f.run(t, t2, incremental), runerr.SyncFailure)

	active, ok := loadIndex(t, f.slot).Active()
	if !ok || active.Timestamp != ts(t2) || active.Status != seriesindex.StatusFailed {
		t.Fatalf("expected failed ACTIVE marker for %s, got %+v (present: %v)", ts(t2), active, ok)
	}

	// A plain run refuses and touches nothing.
	f.syncer.err = nil
	before := listTree(t, f.dest)
	calls := len(f.syncer.calls)
	assertKind(t, f.run(t, t3, incremental), runerr.ConflictingActiveRun)
	if diff := cmp.Diff(before, listTree(t, f.dest)); diff != "" {
		t.Errorf("conflicting run changed the destination (-before +after):\n%s", diff)
	}
	if len(f.syncer.calls) != calls {
		t.Error("conflicting run must not sync")
	}

	// Drop one seeded link so a reseed would be visible.
	if err := os.Remove(filepath.Join(f.snapshot(t2), "a.txt")); err != nil {
		t.Fatal(err)
	}

	res := f.mustRun(t, t4, func(c *config.Config) {
		c.Runtime.Incremental = true
		c.Runtime.Continue = true
	})

	if res.Timestamp != ts(t2) || res.Snapshot != f.snapshot(t2) {
		t.Errorf("continuing run must reuse %s, got %+v", ts(t2), res)
	}
	if last := f.syncer.calls[len(f.syncer.calls)-1]; last != f.snapshot(t2) {
		t.Errorf("expected sync into %s, got %s", f.snapshot(t2), last)
	}
	if _, err := os.Stat(f.snapshot(t4)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("continuing run must not create %s", f.snapshot(t4))
	}
	if sameFile(t, filepath.Join(f.snapshot(t1), "a.txt"), filepath.Join(f.snapshot(t2), "a.txt")) {
		t.Error("continuing run must not reseed hard links from the base")
	}
	if got := readFile(t, filepath.Join(f.snapshot(t2), "partial.txt")); got != "partial" {
		t.Errorf("partial content of the interrupted run must be kept, got %q", got)
	}

	idx := loadIndex(t, f.slot)
	if _, ok := idx.Active(); ok {
		t.Error("ACTIVE marker must be promoted")
	}
	if diff := cmp.Diff([]string{ts(t1), ts(t2)}, timestamps(t, idx)); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteBackup_DiscardFailedRun(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, t1, nil)

	f.syncer.err = runerr.Newf(runerr.SyncFailure, "sync", "exit 23")
	f.syncer.writePartial = true
	assertKind(t, f.run(t, t2, incremental), runerr.SyncFailure)

	f.syncer.err = nil
	res := f.mustRun(t, t3, func(c *config.Config) {
		c.Runtime.Incremental = true
		c.Runtime.Discard = true
	})

	if res.Discarded != ts(t2) || res.Timestamp != ts(t3) {
		t.Errorf("unexpected result %+v", res)
	}
	if _, err := os.Stat(f.snapshot(t2)); !errors.Is(err, os.ErrNotExist) {
		t.Error("discarded snapshot directory must be removed")
	}
	if !sameFile(t, filepath.Join(f.snapshot(t1), "a.txt"), filepath.Join(f.snapshot(t3), "a.txt")) {
		t.Error("new incremental run must build on the last completed snapshot")
	}
	idx := loadIndex(t, f.slot)
	if diff := cmp.Diff([]string{ts(t1), ts(t3)}, timestamps(t, idx)); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteBackup_DiscardOnlyRunBecomesFull(t *testing.T) {
	f := newFixture(t)

	f.syncer.err = runerr.Newf(runerr.SyncFailure, "sync", "exit 23")
	assertKind(t, f.run(t, t1, nil), runerr.SyncFailure)

	f.syncer.err = nil
	res := f.mustRun(t, t2, func(c *config.Config) {
		c.Runtime.Incremental = true
		c.Runtime.Discard = true
	})
	if res.Type != seriesindex.Full || res.Retired != "" {
		t.Errorf("expected a full run in place, got %+v", res)
	}
	if diff := cmp.Diff([]string{ts(t2)}, timestamps(t, loadIndex(t, f.slot))); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteBackup_FullRunRetiresSeries(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, t1, nil)
	f.mustRun(t, t2, incremental)

	res := f.mustRun(t, t3, nil)

	retired := filepath.Join(f.dest, ts(t2))
	if res.Retired != retired {
		t.Errorf("expected series retired to %s, got %q", retired, res.Retired)
	}
	if diff := cmp.Diff([]string{ts(t1), ts(t2)}, timestamps(t, loadIndex(t, retired))); diff != "" {
		t.Errorf("retired index mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{ts(t3)}, timestamps(t, loadIndex(t, f.slot))); diff != "" {
		t.Errorf("new index mismatch (-want +got):\n%s", diff)
	}
	entries, err := os.ReadDir(f.slot)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if diff := cmp.Diff([]string{ts(t3), seriesindex.FileName}, names); diff != "" {
		t.Errorf("new slot must only hold the new snapshot (-want +got):\n%s", diff)
	}
}

func TestExecuteBackup_EmptySourceLeavesDestinationUntouched(t *testing.T) {
	f := newFixture(t)
	empty := filepath.Join(f.root, "empty")
	if err := os.Mkdir(empty, 0755); err != nil {
		t.Fatal(err)
	}

	res := f.run(t, t1, func(c *config.Config) { c.Sources = []string{empty} })

	assertKind(t, res, runerr.EmptySource)
	if _, err := os.Stat(f.slot); !errors.Is(err, os.ErrNotExist) {
		t.Error("series must not be created for an empty source")
	}
	if len(f.syncer.calls) != 0 {
		t.Error("sync must not run for an empty source")
	}
}

func TestExecuteBackup_RunLogCollision(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.logDir, ts(t1)+".log"), "earlier run")

	assertKind(t, f.run(t, t1, nil), runerr.InvalidRequest)
	if len(f.syncer.calls) != 0 {
		t.Error("sync must not run when the run log already exists")
	}
}

func TestExecuteBackup_ArchivesPreviousLogs(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, t1, nil)
	f.mustRun(t, t2, incremental)

	if _, err := os.Stat(filepath.Join(f.logDir, ts(t1)+".log.zip")); err != nil {
		t.Errorf("expected previous log to be archived: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.logDir, ts(t1)+".log")); !errors.Is(err, os.ErrNotExist) {
		t.Error("archived log must be removed")
	}
	if _, err := os.Stat(filepath.Join(f.logDir, ts(t2)+".log")); err != nil {
		t.Errorf("current run log must be kept: %v", err)
	}
}

func TestExecuteBackup_LockHeld(t *testing.T) {
	f := newFixture(t)
	if err := os.MkdirAll(f.dest, 0755); err != nil {
		t.Fatal(err)
	}
	lock, err := serieslock.Acquire(context.Background(), f.dest, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	assertKind(t, f.run(t, t1, func(c *config.Config) { c.Lock.Enabled = true }), runerr.ConflictingActiveRun)

	lock.Release()
	f.mustRun(t, t2, func(c *config.Config) { c.Lock.Enabled = true })
}

func TestExecuteBackup_LatestLink(t *testing.T) {
	f := newFixture(t)
	link := filepath.Join(f.root, "latest")

	f.mustRun(t, t1, func(c *config.Config) { c.LinkPath = link })
	f.mustRun(t, t2, func(c *config.Config) {
		c.LinkPath = link
		c.Runtime.Incremental = true
	})

	target, err := os.Readlink(link)
	if err != nil {
		t.Fatal(err)
	}
	if target != f.snapshot(t2) {
		t.Errorf("expected link to %s, got %s", f.snapshot(t2), target)
	}

	// A regular file at the link path is a warning, not a failure.
	occupied := filepath.Join(f.root, "occupied")
	writeFile(t, occupied, "keep me")
	f.mustRun(t, t3, func(c *config.Config) { c.LinkPath = occupied })
	if got := readFile(t, occupied); got != "keep me" {
		t.Errorf("occupied link path was overwritten: %q", got)
	}
}

func TestExecuteBackup_Hooks(t *testing.T) {
	f := newFixture(t)
	hooks := &mockHooks{}
	log := plog.Discard()
	runner := engine.NewRunner(log, f.syncer, materialize.New(log), hooks, logarchive.New(log))

	res := runner.ExecuteBackup(context.Background(), f.plan(t, t1, nil))
	if !res.Success {
		t.Fatalf("run failed: %s", res.Diagnostic)
	}
	if len(hooks.envs) != 2 {
		t.Fatalf("expected pre and post hook, got %+v", hooks.envs)
	}
	post := hooks.envs[1]
	if post.Stage != "post" || !post.Success || post.Snapshot != f.snapshot(t1) || post.Timestamp != ts(t1) {
		t.Errorf("unexpected post hook env %+v", post)
	}

	hooks.envs = nil
	hooks.preErr = errors.New("pre hook exploded")
	res = runner.ExecuteBackup(context.Background(), f.plan(t, t2, nil))
	if res.Success {
		t.Fatal("expected failing pre hook to abort the run")
	}
	if _, err := os.Stat(f.snapshot(t2)); !errors.Is(err, os.ErrNotExist) {
		t.Error("failing pre hook must abort before placement")
	}
	if n := len(hooks.envs); n != 1 {
		t.Errorf("post hook must not run when the pre hook failed, got %d calls", n)
	}
}

func TestExecuteBackup_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.runner.ExecuteBackup(ctx, f.plan(t, t1, nil))
	if res.Success || !errors.Is(res.Err, context.Canceled) {
		t.Errorf("expected cancellation, got %+v", res)
	}
	if _, err := os.Stat(f.slot); !errors.Is(err, os.ErrNotExist) {
		t.Error("cancelled run must not create the series")
	}
}

func TestExecuteStatus(t *testing.T) {
	f := newFixture(t)

	st, err := f.runner.ExecuteStatus(context.Background(), &planner.StatusPlan{Destination: f.dest, SeriesPath: f.slot})
	if err != nil {
		t.Fatalf("status of a missing series failed: %v", err)
	}
	if st.Exists || len(st.Records) != 0 || st.State != recovery.Clean {
		t.Errorf("unexpected status of missing series %+v", st)
	}

	f.mustRun(t, t1, nil)
	f.mustRun(t, t2, nil)
	f.syncer.err = runerr.Newf(runerr.SyncFailure, "sync", "exit 12")
	f.run(t, t3, incremental)

	st, err = f.runner.ExecuteStatus(context.Background(), &planner.StatusPlan{Destination: f.dest, SeriesPath: f.slot})
	if err != nil {
		t.Fatalf("ExecuteStatus failed: %v", err)
	}
	if !st.Exists || st.Schema != seriesindex.SchemaVersion || st.State != recovery.ActiveFailed {
		t.Errorf("unexpected status %+v", st)
	}
	if st.Active == nil || st.Active.Timestamp != ts(t3) {
		t.Errorf("expected ACTIVE marker for %s, got %+v", ts(t3), st.Active)
	}
	if len(st.Records) != 1 || st.Records[0].Timestamp != ts(t2) {
		t.Errorf("expected one completed record for %s, got %+v", ts(t2), st.Records)
	}
	if diff := cmp.Diff([]string{filepath.Join(f.dest, ts(t1))}, st.Retired); diff != "" {
		t.Errorf("retired series mismatch (-want +got):\n%s", diff)
	}
}
