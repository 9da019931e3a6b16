// Package meta presents a build's meta.json as a mutable, nested-key
// addressable document that multiple independent processes can write without
// losing updates. Canonical writes go through the locked merge protocol in
// Merge; delayed-merge mode stages per-artifact side files instead, deferring
// the canonical merge to a single finalization step.
package meta

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	doublestar "github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/imageforge/imageforge-go/common/jsondoc"
	"github.com/imageforge/imageforge-go/store/pkg/schema"
)

const (
	// MetaFile is the canonical metadata document within a build directory.
	MetaFile = "meta.json"
	// StampKey holds the nanosecond version stamp arbitrating merge
	// precedence. A logical clock, not wall-clock provenance.
	StampKey = "coreos-assembler.meta-stamp"
	// DelayedMergeKey opts a document into delayed-merge mode.
	DelayedMergeKey = "coreos-assembler.delayed-meta-merge"

	sideFilePattern = "meta.*.json"
)

// Config carries the collaborators a BuildMeta needs; zero values select the
// production defaults.
type Config struct {
	Docs      *jsondoc.Store
	Validator *schema.Validator
	Log       *zap.Logger
}

// BuildMeta is the metadata document for one build directory. It wraps the
// document instead of embedding it so every mutation goes through Set and
// every persist goes through the validated, merge-aware write path.
type BuildMeta struct {
	cfg  Config
	dir  string
	path string
	doc  map[string]any
}

// New opens the metadata document in buildDir. The document must already
// exist (it is created once per build by the composer or InitBuildMeta).
func New(cfg Config, buildDir string) (*BuildMeta, error) {
	if cfg.Docs == nil {
		cfg.Docs = jsondoc.Default()
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	m := &BuildMeta{
		cfg:  cfg,
		dir:  buildDir,
		path: filepath.Join(buildDir, MetaFile),
	}
	if err := m.Read(); err != nil {
		return nil, err
	}
	return m, nil
}

// Path returns the canonical meta.json path.
func (m *BuildMeta) Path() string {
	return m.path
}

// Read replaces the in-memory document with the canonical on-disk state,
// validating it against the schema.
func (m *BuildMeta) Read() error {
	doc, err := m.cfg.Docs.LoadMap(m.path)
	if err != nil {
		return err
	}
	if err := m.cfg.Validator.Validate(doc); err != nil {
		return err
	}
	m.doc = doc
	return nil
}

// Get returns the value at the given key path, descending through nested
// objects, or nil if any segment is absent.
func (m *BuildMeta) Get(keys ...string) any {
	return m.GetDefault(nil, keys...)
}

// GetDefault is Get with a caller-supplied default.
func (m *BuildMeta) GetDefault(def any, keys ...string) any {
	var cur any = m.doc
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return def
		}
		cur, ok = obj[k]
		if !ok {
			return def
		}
	}
	return cur
}

// Set assigns value at the given key path. Missing intermediate segments are
// an error, not auto-created; an intermediate that exists but is not itself a
// nested object is overwritten at that point with the value. The overwrite
// behavior is deliberate and pinned by tests.
func (m *BuildMeta) Set(value any, keys ...string) error {
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty path", ErrBadKeyPath)
	}
	cur := m.doc
	for i, k := range keys {
		if i == len(keys)-1 {
			cur[k] = value
			return nil
		}
		next, ok := cur[k]
		if !ok {
			return fmt.Errorf("%w: %q has no key %q", ErrBadKeyPath, keys[:i], k)
		}
		child, ok := next.(map[string]any)
		if !ok {
			// The path ran out of nested structure; the value lands here.
			cur[k] = value
			return nil
		}
		cur = child
	}
	return nil
}

// Document returns a deep copy of the in-memory document.
func (m *BuildMeta) Document() map[string]any {
	return deepCopyMap(m.doc)
}

func (m *BuildMeta) String() string {
	out, err := json.MarshalIndent(m.doc, "", "    ")
	if err != nil {
		return fmt.Sprintf("<unrenderable metadata: %v>", err)
	}
	return string(out)
}

// DelayedMerge reports whether the document has opted into delayed-merge
// mode.
func (m *BuildMeta) DelayedMerge() bool {
	enabled, _ := m.Get(DelayedMergeKey).(bool)
	return enabled
}

type writeOptions struct {
	artifact string
	final    bool
}

type WriteOption func(*writeOptions)

// WithArtifact names the artifact a delayed-merge write is staging results
// for; the side file becomes meta.<name>.json.
func WithArtifact(name string) WriteOption {
	return func(o *writeOptions) { o.artifact = name }
}

// Final forces the canonical merge, sweeping any staged side files into
// meta.json.
func Final() WriteOption {
	return func(o *writeOptions) { o.final = true }
}

// Write persists the document and returns the path written. With delayed
// merge enabled and no Final option, the document is staged into a
// per-artifact side file and the canonical meta.json is left untouched;
// otherwise the document is validated and merged into meta.json under the
// document lock, and the in-memory copy is replaced by the persisted result.
func (m *BuildMeta) Write(opts ...WriteOption) (string, error) {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}

	if m.DelayedMerge() && !o.final {
		return m.writeSideFile(o.artifact)
	}

	var staged []string
	if o.final {
		var err error
		if staged, err = m.absorbSideFiles(); err != nil {
			return "", err
		}
	}

	if err := m.cfg.Validator.Validate(m.doc); err != nil {
		return "", err
	}
	merged, err := m.cfg.Docs.SaveMerged(m.path, m.doc, func(disk, mem map[string]any) (map[string]any, error) {
		out, err := Merge(disk, mem)
		if err != nil {
			return nil, err
		}
		if err := m.cfg.Validator.Validate(out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return "", err
	}
	mergesTotal.Inc()
	m.doc = merged

	// Staged side files are only removed once their content is safely in
	// the canonical document.
	for _, p := range staged {
		if err := m.cfg.Docs.Fs().Remove(p); err != nil {
			m.cfg.Log.Warn("failed to remove staged metadata", zap.String("path", p), zap.Error(err))
		}
	}
	return m.path, nil
}

// writeSideFile stages the document as meta.<artifact>.json with a bumped
// stamp. Unnamed writes stage under the stamp itself, which keeps repeated
// writes from clobbering each other.
func (m *BuildMeta) writeSideFile(artifact string) (string, error) {
	stamp := time.Now().UnixNano()
	if artifact == "" {
		artifact = strconv.FormatInt(stamp, 10)
	}
	m.doc[StampKey] = json.Number(strconv.FormatInt(stamp, 10))
	if err := m.cfg.Validator.Validate(m.doc); err != nil {
		return "", err
	}
	path := filepath.Join(m.dir, fmt.Sprintf("meta.%s.json", artifact))
	if err := m.cfg.Docs.Save(path, m.doc); err != nil {
		return "", err
	}
	delayedWritesTotal.Inc()
	m.cfg.Log.Info("staged delayed metadata", zap.String("path", path))
	return path, nil
}

// absorbSideFiles merges every staged meta.*.json in the build directory into
// the in-memory document and returns their paths for post-write cleanup.
func (m *BuildMeta) absorbSideFiles() ([]string, error) {
	entries, err := afero.ReadDir(m.cfg.Docs.Fs(), m.dir)
	if err != nil {
		return nil, err
	}
	var staged []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == MetaFile {
			continue
		}
		if ok, _ := doublestar.Match(sideFilePattern, name); !ok {
			continue
		}
		path := filepath.Join(m.dir, name)
		side, err := m.cfg.Docs.LoadMap(path)
		if err != nil {
			return nil, fmt.Errorf("reading staged metadata %s: %w", path, err)
		}
		merged, err := Merge(m.doc, side)
		if err != nil {
			return nil, err
		}
		m.cfg.Log.Info("absorbed staged metadata", zap.String("path", path))
		m.doc = merged
		staged = append(staged, path)
	}
	return staged, nil
}
