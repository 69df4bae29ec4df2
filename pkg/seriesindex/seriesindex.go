// Package seriesindex is the persistent record store of a backup series. The
// index lives in the series slot as an INI file with one section per
// completed snapshot, keyed by its timestamp, plus at most one ACTIVE section
// describing the run in flight.
//
// The file is rewritten in full on every Commit through a temp file and an
// atomic rename, so a crash leaves either the old or the new index on disk.
package seriesindex

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/ini.v1"

	"github.com/paulschiretz/pgl-series/pkg/runerr"
)

const (
	// FileName is the name of the index file inside the series slot.
	FileName = "cfg.ini"
	// ActiveKey is the reserved section name of the in-flight marker.
	ActiveKey = "ACTIVE"
	// SchemaVersion is the newest index schema this package reads and writes.
	SchemaVersion = 1
)

// Field names inside a section.
const (
	keySchema    = "schema"
	keyTimestamp = "timestamp"
	keyStatus    = "status"
	keyType      = "type"
	keySources   = "sources"
	keyBackup    = "backup"
	keyCwd       = "cwd"
	keyRsyncCmd  = "rsyncCMD"
	keyRunID     = "run_id"
	keyStarted   = "started"
	keyFinished  = "finished"
)

// ErrNoActive is returned when an operation needs the ACTIVE marker and there is none.
var ErrNoActive = errors.New("no ACTIVE marker in index")

// Index is the in-memory form of a series index file.
type Index struct {
	path    string
	schema  int
	active  *Record
	records map[string]Record
	order   []string // section keys in file order, ACTIVE excluded
}

// New returns an empty index that will be written to seriesPath/cfg.ini.
func New(seriesPath string) *Index {
	return &Index{
		path:    filepath.Join(seriesPath, FileName),
		schema:  SchemaVersion,
		records: make(map[string]Record),
	}
}

// Load reads the index of the series at seriesPath. A missing index file
// yields an empty index.
func Load(seriesPath string) (*Index, error) {
	idx := New(seriesPath)

	data, err := os.ReadFile(idx.path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, runerr.New(runerr.FilesystemError, "read index", err)
	}

	f, err := ini.LoadSources(ini.LoadOptions{}, data)
	if err != nil {
		return nil, runerr.New(runerr.IndexCorruption, "parse index", fmt.Errorf("%s: %w", idx.path, err))
	}

	idx.schema = 0
	if v := f.Section(ini.DefaultSection).Key(keySchema).String(); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, runerr.Newf(runerr.IndexCorruption, "parse index", "%s: invalid schema %q", idx.path, v)
		}
		idx.schema = n
	}
	if idx.schema > SchemaVersion {
		return nil, runerr.Newf(runerr.IndexCorruption, "parse index",
			"%s: schema %d is newer than supported schema %d", idx.path, idx.schema, SchemaVersion)
	}

	for _, sec := range f.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection {
			continue
		}
		rec, err := readRecord(sec)
		if err != nil {
			return nil, runerr.New(runerr.IndexCorruption, "parse index", fmt.Errorf("%s: section [%s]: %w", idx.path, name, err))
		}
		if name == ActiveKey {
			idx.active = &rec
			continue
		}
		idx.records[name] = rec
		idx.order = append(idx.order, name)
	}
	return idx, nil
}

// Path returns the location of the index file.
func (idx *Index) Path() string { return idx.path }

// Schema returns the schema version the index was read with. Files written
// before the schema field existed report 0.
func (idx *Index) Schema() int { return idx.schema }

// Active returns the ACTIVE marker, if any.
func (idx *Index) Active() (Record, bool) {
	if idx.active == nil {
		return Record{}, false
	}
	return *idx.active, true
}

// Record returns the completed record stored under key.
func (idx *Index) Record(key string) (Record, bool) {
	rec, ok := idx.records[key]
	return rec, ok
}

// Len returns the number of sections, the ACTIVE marker included.
func (idx *Index) Len() int {
	n := len(idx.records)
	if idx.active != nil {
		n++
	}
	return n
}

// Timestamps returns the keys of all non-ACTIVE sections in chronological
// order. A key that is not a canonical timestamp is IndexCorruption.
func (idx *Index) Timestamps() ([]string, error) {
	type entry struct {
		key string
		t   time.Time
	}
	entries := make([]entry, 0, len(idx.records))
	for key := range idx.records {
		t, err := ParseTimestamp(key)
		if err != nil {
			return nil, runerr.Newf(runerr.IndexCorruption, "sort index",
				"section [%s] in %s is not a timestamp; was a snapshot renamed by hand?", key, idx.path)
		}
		entries = append(entries, entry{key: key, t: t})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].t.Before(entries[j].t) })

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys, nil
}

// MostRecentTimestamp returns the chronologically latest section key,
// ignoring ACTIVE. ok is false when the index holds no such section.
func (idx *Index) MostRecentTimestamp() (ts string, ok bool, err error) {
	keys, err := idx.Timestamps()
	if err != nil {
		return "", false, err
	}
	if len(keys) == 0 {
		return "", false, nil
	}
	return keys[len(keys)-1], true, nil
}

// MostRecentComplete returns the latest record whose status is complete.
// It is the base of an incremental snapshot.
func (idx *Index) MostRecentComplete() (Record, bool, error) {
	keys, err := idx.Timestamps()
	if err != nil {
		return Record{}, false, err
	}
	for i := len(keys) - 1; i >= 0; i-- {
		if rec := idx.records[keys[i]]; rec.Status == StatusComplete {
			return rec, true, nil
		}
	}
	return Record{}, false, nil
}

// BeginActive installs rec as the ACTIVE marker with status failed,
// replacing any previous marker.
func (idx *Index) BeginActive(rec Record) {
	rec.Status = StatusFailed
	rec.SyncCommand = ""
	rec.Finished = time.Time{}
	idx.active = &rec
}

// PromoteActive turns the ACTIVE marker into a completed record stored under
// its own timestamp.
func (idx *Index) PromoteActive(syncCommand string, finished time.Time) (Record, error) {
	if idx.active == nil {
		return Record{}, ErrNoActive
	}
	rec := *idx.active
	if rec.Timestamp == "" {
		return Record{}, runerr.Newf(runerr.IndexCorruption, "promote marker", "ACTIVE marker in %s has no timestamp", idx.path)
	}
	if _, exists := idx.records[rec.Timestamp]; exists {
		return Record{}, runerr.Newf(runerr.IndexCorruption, "promote marker",
			"a record for %s already exists in %s", rec.Timestamp, idx.path)
	}
	rec.Status = StatusComplete
	rec.SyncCommand = syncCommand
	rec.Finished = finished

	idx.records[rec.Timestamp] = rec
	idx.order = append(idx.order, rec.Timestamp)
	idx.active = nil
	return rec, nil
}

// RemoveActive drops the ACTIVE marker. It reports whether one was present.
func (idx *Index) RemoveActive() bool {
	had := idx.active != nil
	idx.active = nil
	return had
}

// Commit writes the whole index back to disk atomically.
func (idx *Index) Commit() error {
	f := ini.Empty()
	f.Section(ini.DefaultSection).Key(keySchema).SetValue(strconv.Itoa(SchemaVersion))

	for _, key := range idx.order {
		if err := writeRecord(f, key, idx.records[key]); err != nil {
			return err
		}
	}
	if idx.active != nil {
		if err := writeRecord(f, ActiveKey, *idx.active); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return runerr.New(runerr.FilesystemError, "encode index", err)
	}
	if err := atomic.WriteFile(idx.path, &buf); err != nil {
		return runerr.New(runerr.FilesystemError, "write index", fmt.Errorf("%s: %w", idx.path, err))
	}
	idx.schema = SchemaVersion
	return nil
}

func writeRecord(f *ini.File, key string, rec Record) error {
	sec, err := f.NewSection(key)
	if err != nil {
		return runerr.New(runerr.IndexCorruption, "encode index", err)
	}
	sources, err := json.Marshal(rec.Sources)
	if err != nil {
		return runerr.New(runerr.IndexCorruption, "encode index", err)
	}

	sec.Key(keyTimestamp).SetValue(rec.Timestamp)
	sec.Key(keyStatus).SetValue(rec.Status.String())
	sec.Key(keyType).SetValue(rec.Type.String())
	sec.Key(keySources).SetValue(string(sources))
	sec.Key(keyBackup).SetValue(rec.BackupRoot)
	sec.Key(keyCwd).SetValue(rec.WorkingDirectory)
	if rec.RunID != "" {
		sec.Key(keyRunID).SetValue(rec.RunID)
	}
	if !rec.Started.IsZero() {
		sec.Key(keyStarted).SetValue(rec.Started.Format(time.RFC3339))
	}
	if rec.SyncCommand != "" {
		sec.Key(keyRsyncCmd).SetValue(rec.SyncCommand)
	}
	if !rec.Finished.IsZero() {
		sec.Key(keyFinished).SetValue(rec.Finished.Format(time.RFC3339))
	}
	return nil
}

// value returns the named key, falling back to its lowercase spelling as
// written by INI tools that fold key case.
func value(sec *ini.Section, name string) string {
	if sec.HasKey(name) {
		return sec.Key(name).String()
	}
	if lower := strings.ToLower(name); lower != name && sec.HasKey(lower) {
		return sec.Key(lower).String()
	}
	return ""
}

func readRecord(sec *ini.Section) (Record, error) {
	rec := Record{
		Timestamp:        value(sec, keyTimestamp),
		BackupRoot:       value(sec, keyBackup),
		WorkingDirectory: value(sec, keyCwd),
		SyncCommand:      value(sec, keyRsyncCmd),
		RunID:            value(sec, keyRunID),
	}
	if rec.Timestamp == "" && sec.Name() != ActiveKey {
		rec.Timestamp = sec.Name()
	}

	status, err := ParseStatus(value(sec, keyStatus))
	if err != nil {
		return Record{}, err
	}
	rec.Status = status

	if v := value(sec, keyType); v != "" {
		rt, err := ParseRunType(v)
		if err != nil {
			return Record{}, err
		}
		rec.Type = rt
	}

	if v := value(sec, keySources); v != "" {
		if err := json.Unmarshal([]byte(v), &rec.Sources); err != nil {
			return Record{}, fmt.Errorf("invalid sources list: %w", err)
		}
	}

	for key, dst := range map[string]*time.Time{keyStarted: &rec.Started, keyFinished: &rec.Finished} {
		if v := value(sec, key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return Record{}, fmt.Errorf("invalid %s time %q: %w", key, v, err)
			}
			*dst = t
		}
	}
	return rec, nil
}
