package delta

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"path"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/deltashare/deltashare/internal/storage"
)

const (
	logDir                 = "_delta_log/"
	defaultReadConcurrency = 8
)

var (
	commitPattern     = regexp.MustCompile(`^(\d{20})\.json$`)
	checkpointPattern = regexp.MustCompile(`^(\d{20})\.checkpoint\.parquet$`)
	multiPartPattern  = regexp.MustCompile(`^(\d{20})\.checkpoint\.(\d{10})\.(\d{10})\.parquet$`)
)

// LogStore reads tables by replaying their _delta_log directory.
type LogStore struct {
	opener          storage.Opener
	readConcurrency int
}

func NewLogStore(opener storage.Opener, readConcurrency int) *LogStore {
	if readConcurrency <= 0 {
		readConcurrency = defaultReadConcurrency
	}
	return &LogStore{opener: opener, readConcurrency: readConcurrency}
}

func (s *LogStore) Open(ctx context.Context, location string) (Table, error) {
	loc, err := storage.ParseLocation(location)
	if err != nil {
		return nil, err
	}
	store, err := s.opener.Open(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("open table storage %s: %w", loc, err)
	}
	return &logTable{location: loc, store: store, readConcurrency: s.readConcurrency}, nil
}

type logTable struct {
	location        storage.Location
	store           storage.ObjectStore
	readConcurrency int
}

type checkpointParts struct {
	parts        int
	keys         map[int]string
	lastModified time.Time
}

func (c *checkpointParts) complete() bool {
	if len(c.keys) != c.parts {
		return false
	}
	for i := 1; i <= c.parts; i++ {
		if _, ok := c.keys[i]; !ok {
			return false
		}
	}
	return true
}

type listing struct {
	commits     map[int64]storage.ObjectInfo
	checkpoints map[int64]*checkpointParts
	latest      int64
}

func (l *listing) commitTime(version int64) time.Time {
	if info, ok := l.commits[version]; ok {
		return info.LastModified.UTC()
	}
	if cp, ok := l.checkpoints[version]; ok {
		return cp.lastModified.UTC()
	}
	return time.Time{}
}

// checkpointAtOrBefore returns the newest complete checkpoint not after version.
func (l *listing) checkpointAtOrBefore(version int64) (int64, *checkpointParts) {
	best := int64(-1)
	for v, cp := range l.checkpoints {
		if v <= version && v > best && cp.complete() {
			best = v
		}
	}
	if best < 0 {
		return -1, nil
	}
	return best, l.checkpoints[best]
}

func (t *logTable) list(ctx context.Context) (*listing, error) {
	objects, err := t.store.List(ctx, logDir)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTableNotFound, t.location)
		}
		return nil, fmt.Errorf("list delta log %s: %w", t.location, err)
	}

	l := &listing{
		commits:     make(map[int64]storage.ObjectInfo),
		checkpoints: make(map[int64]*checkpointParts),
		latest:      -1,
	}
	for _, obj := range objects {
		name := path.Base(obj.Key)
		if m := commitPattern.FindStringSubmatch(name); m != nil {
			version, _ := strconv.ParseInt(m[1], 10, 64)
			l.commits[version] = obj
			l.latest = max(l.latest, version)
			continue
		}
		version, part, parts, ok := parseCheckpointName(name)
		if !ok {
			continue
		}
		cp := l.checkpoints[version]
		if cp == nil {
			cp = &checkpointParts{parts: parts, keys: make(map[int]string)}
			l.checkpoints[version] = cp
		}
		if cp.parts != parts {
			continue
		}
		cp.keys[part] = obj.Key
		if obj.LastModified.After(cp.lastModified) {
			cp.lastModified = obj.LastModified
		}
	}
	for version, cp := range l.checkpoints {
		if cp.complete() {
			l.latest = max(l.latest, version)
		}
	}
	if l.latest < 0 {
		return nil, fmt.Errorf("%w: no commits under %s", ErrTableNotFound, t.location)
	}
	return l, nil
}

func parseCheckpointName(name string) (version int64, part, parts int, ok bool) {
	if m := checkpointPattern.FindStringSubmatch(name); m != nil {
		version, _ = strconv.ParseInt(m[1], 10, 64)
		return version, 1, 1, true
	}
	if m := multiPartPattern.FindStringSubmatch(name); m != nil {
		version, _ = strconv.ParseInt(m[1], 10, 64)
		part, _ = strconv.Atoi(m[2])
		parts, _ = strconv.Atoi(m[3])
		if part < 1 || parts < 1 || part > parts {
			return 0, 0, 0, false
		}
		return version, part, parts, true
	}
	return 0, 0, 0, false
}

func (t *logTable) Latest(ctx context.Context) (*Snapshot, error) {
	l, err := t.list(ctx)
	if err != nil {
		return nil, err
	}
	return t.load(ctx, l, l.latest)
}

func (t *logTable) AtVersion(ctx context.Context, version int64) (*Snapshot, error) {
	l, err := t.list(ctx)
	if err != nil {
		return nil, err
	}
	return t.load(ctx, l, version)
}

func (t *logTable) AtTimestamp(ctx context.Context, ts time.Time) (*Snapshot, error) {
	l, err := t.list(ctx)
	if err != nil {
		return nil, err
	}
	found := int64(-1)
	for version, info := range l.commits {
		if !info.LastModified.After(ts) && version > found {
			found = version
		}
	}
	if found < 0 {
		return nil, fmt.Errorf("%w: no commit at or before %s", ErrVersionNotFound, ts.UTC().Format(time.RFC3339))
	}
	return t.load(ctx, l, found)
}

func (t *logTable) load(ctx context.Context, l *listing, version int64) (*Snapshot, error) {
	if version < 0 || version > l.latest {
		return nil, fmt.Errorf("%w: %d (latest is %d)", ErrVersionNotFound, version, l.latest)
	}

	start := int64(0)
	cpVersion, cp := l.checkpointAtOrBefore(version)
	if cp != nil {
		start = cpVersion + 1
	} else if _, ok := l.commits[0]; !ok {
		return nil, fmt.Errorf("%w: %d is older than the retained log", ErrVersionNotFound, version)
	}
	for v := start; v <= version; v++ {
		if _, ok := l.commits[v]; !ok {
			return nil, fmt.Errorf("%w: missing commit %d", ErrCorruptLog, v)
		}
	}

	st := newReplayState()
	if cp != nil {
		st.at(cpVersion, l.commitTime(cpVersion))
		for part := 1; part <= cp.parts; part++ {
			data, err := t.read(ctx, cp.keys[part])
			if err != nil {
				return nil, err
			}
			if err := readCheckpoint(data, cpVersion, st); err != nil {
				return nil, err
			}
		}
	}

	commits, err := t.readCommits(ctx, l, start, version)
	if err != nil {
		return nil, err
	}
	for i, data := range commits {
		v := start + int64(i)
		st.at(v, l.commitTime(v))
		if err := st.applyCommit(data); err != nil {
			return nil, err
		}
	}

	return st.snapshot(t.location, version, l.commitTime(version))
}

// readCommits fetches commits [from, to] concurrently, preserving order.
func (t *logTable) readCommits(ctx context.Context, l *listing, from, to int64) ([][]byte, error) {
	if to < from {
		return nil, nil
	}
	out := make([][]byte, to-from+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.readConcurrency)
	for i := range out {
		key := l.commits[from+int64(i)].Key
		g.Go(func() error {
			data, err := t.read(gctx, key)
			if err != nil {
				return err
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *logTable) read(ctx context.Context, key string) ([]byte, error) {
	reader, err := t.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

type addAction struct {
	Path             string            `json:"path"`
	PartitionValues  map[string]string `json:"partitionValues"`
	Size             int64             `json:"size"`
	ModificationTime int64             `json:"modificationTime"`
	DataChange       bool              `json:"dataChange"`
	Stats            string            `json:"stats"`
}

type removeAction struct {
	Path string `json:"path"`
}

type commitAction struct {
	Add      *addAction    `json:"add"`
	Remove   *removeAction `json:"remove"`
	MetaData *Metadata     `json:"metaData"`
	Protocol *Protocol     `json:"protocol"`
}

type replayState struct {
	files     map[string]FileEntry
	protocol  *Protocol
	metadata  *Metadata
	version   int64
	timestamp time.Time
}

func newReplayState() *replayState {
	return &replayState{files: make(map[string]FileEntry)}
}

// at sets the commit that subsequent actions belong to.
func (st *replayState) at(version int64, ts time.Time) {
	st.version = version
	st.timestamp = ts
}

func (st *replayState) add(entry FileEntry) {
	entry.Version = st.version
	entry.Timestamp = st.timestamp
	st.files[entry.Path] = entry
}

func (st *replayState) remove(path string) {
	delete(st.files, path)
}

func (st *replayState) applyCommit(data []byte) error {
	for lineNo, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var action commitAction
		if err := json.Unmarshal(line, &action); err != nil {
			return fmt.Errorf("%w: commit %d line %d: %v", ErrCorruptLog, st.version, lineNo+1, err)
		}
		switch {
		case action.Add != nil:
			st.add(FileEntry{
				Path:             action.Add.Path,
				PartitionValues:  action.Add.PartitionValues,
				Size:             action.Add.Size,
				ModificationTime: action.Add.ModificationTime,
				Stats:            action.Add.Stats,
			})
		case action.Remove != nil:
			st.remove(action.Remove.Path)
		case action.MetaData != nil:
			st.metadata = action.MetaData
		case action.Protocol != nil:
			st.protocol = action.Protocol
		}
	}
	return nil
}

func (st *replayState) snapshot(loc storage.Location, version int64, ts time.Time) (*Snapshot, error) {
	if st.protocol == nil {
		return nil, fmt.Errorf("%w: no protocol action at version %d", ErrCorruptLog, version)
	}
	if st.metadata == nil {
		return nil, fmt.Errorf("%w: no metaData action at version %d", ErrCorruptLog, version)
	}
	schema, err := ParseSchema(st.metadata.SchemaString)
	if err != nil {
		return nil, err
	}
	files := slices.SortedFunc(maps.Values(st.files), func(a, b FileEntry) int {
		return cmp.Compare(a.Path, b.Path)
	})
	return &Snapshot{
		Location:  loc,
		Version:   version,
		Timestamp: ts,
		Protocol:  *st.protocol,
		Metadata:  *st.metadata,
		Schema:    schema,
		Files:     files,
	}, nil
}
