// Package index maintains builds.json, the ordered ledger of known builds in
// a build root. The newest build is always first; a build may carry multiple
// architectures. All persistence goes through the locked JSON store so
// concurrent jobs against the same build root cannot tear the ledger.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/coreos/go-semver/semver"
	"go.uber.org/zap"

	"github.com/imageforge/imageforge-go/common/jsondoc"
	"github.com/imageforge/imageforge-go/common/platform"
)

const (
	buildsDir = "builds"
	indexFile = "builds/builds.json"

	// schemaVersion is written into fresh indexes. Versions >=1.0.0 <2.0.0
	// are understood; anything else is rejected.
	schemaVersion = "1.1.0"

	genverKey = "coreos-assembler.image-genver"
)

// Record is one entry in the ledger.
type Record struct {
	ID     string   `json:"id"`
	Arches []string `json:"arches"`
}

type document struct {
	SchemaVersion string   `json:"schema-version"`
	Builds        []Record `json:"builds"`
	Timestamp     string   `json:"timestamp,omitempty"`
}

// Config carries the explicit state an Index needs. Arch is resolved once by
// the caller (see platform.BaseArch); the index never consults process-global
// state.
type Config struct {
	// WorkDir is the build root containing the builds/ directory.
	WorkDir string
	// Arch is the default architecture for operations that do not name one.
	Arch string
	// Docs is the locked JSON store; defaults to the OS filesystem with
	// flock-based locking.
	Docs *jsondoc.Store
	Log  *zap.Logger
}

type Index struct {
	cfg Config
	doc document
}

// New opens the builds index under cfg.WorkDir, bootstrapping a fresh index
// if the build root has none yet.
func New(cfg Config) (*Index, error) {
	if cfg.Arch == "" {
		cfg.Arch = platform.BaseArch()
	}
	if cfg.Docs == nil {
		cfg.Docs = jsondoc.Default()
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	idx := &Index{cfg: cfg}

	err := cfg.Docs.Load(idx.path(indexFile), &idx.doc)
	switch {
	case err == nil:
	case errors.Is(err, jsondoc.ErrNotExist):
		// New build root; start a fresh ledger and persist it immediately
		// so sibling jobs bootstrap against the same document.
		idx.doc = document{SchemaVersion: schemaVersion, Builds: []Record{}}
		cfg.Log.Info("initializing builds index", zap.String("path", idx.path(indexFile)))
		if err := idx.Flush(); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	version, err := semver.NewVersion(idx.doc.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("parsing builds index schema-version %q: %w", idx.doc.SchemaVersion, err)
	}
	if version.Major >= 2 {
		return nil, fmt.Errorf("%w: %s", ErrSchemaTooNew, version)
	}
	if version.Major < 1 {
		return nil, fmt.Errorf("%w: %s", ErrSchemaTooOld, version)
	}
	return idx, nil
}

func (i *Index) path(p string) string {
	if i.cfg.WorkDir == "" {
		return p
	}
	return path.Join(i.cfg.WorkDir, p)
}

// Has reports whether the ledger contains a build with the given id.
func (i *Index) Has(buildID string) bool {
	for _, b := range i.doc.Builds {
		if b.ID == buildID {
			return true
		}
	}
	return false
}

func (i *Index) IsEmpty() bool {
	return len(i.doc.Builds) == 0
}

// GetLatest returns the id of the most recently inserted build.
func (i *Index) GetLatest() (string, error) {
	if i.IsEmpty() {
		return "", ErrEmptyIndex
	}
	return i.doc.Builds[0].ID, nil
}

// GetBuildArches returns the architectures registered for a build. An unknown
// id is a caller error.
func (i *Index) GetBuildArches(buildID string) ([]string, error) {
	for _, b := range i.doc.Builds {
		if b.ID == buildID {
			out := make([]string, len(b.Arches))
			copy(out, b.Arches)
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownBuild, buildID)
}

// GetBuildDir resolves a build id (or "latest") and architecture to the
// build's on-disk directory. An empty arch means the configured default.
func (i *Index) GetBuildDir(buildID, arch string) (string, error) {
	if buildID == "latest" {
		latest, err := i.GetLatest()
		if err != nil {
			return "", err
		}
		buildID = latest
	}
	if arch == "" {
		arch = i.cfg.Arch
	}
	return i.path(path.Join(buildsDir, buildID, arch)), nil
}

// InsertBuild registers a build for an architecture. A new build goes to the
// front of the ledger; an existing build gains the architecture, but
// re-registering an existing (id, arch) pair is rejected.
func (i *Index) InsertBuild(buildID, arch string) error {
	if arch == "" {
		arch = i.cfg.Arch
	}
	for n, b := range i.doc.Builds {
		if b.ID != buildID {
			continue
		}
		for _, a := range b.Arches {
			if a == arch {
				return fmt.Errorf("%w: %s/%s", ErrArchExists, buildID, arch)
			}
		}
		i.doc.Builds[n].Arches = append(i.doc.Builds[n].Arches, arch)
		i.cfg.Log.Info("added architecture to build",
			zap.String("build", buildID), zap.String("arch", arch))
		return nil
	}
	i.doc.Builds = append([]Record{{ID: buildID, Arches: []string{arch}}}, i.doc.Builds...)
	i.cfg.Log.Info("inserted build", zap.String("build", buildID), zap.String("arch", arch))
	return nil
}

// Builds returns a copy of the ledger, newest first.
func (i *Index) Builds() []Record {
	out := make([]Record, len(i.doc.Builds))
	for n, b := range i.doc.Builds {
		arches := make([]string, len(b.Arches))
		copy(arches, b.Arches)
		out[n] = Record{ID: b.ID, Arches: arches}
	}
	return out
}

func (i *Index) Timestamp() string {
	return i.doc.Timestamp
}

// BumpTimestamp updates the document-level last-modified marker and persists
// the ledger.
func (i *Index) BumpTimestamp() error {
	i.doc.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return i.Flush()
}

// Flush persists the ledger through the locked JSON store.
func (i *Index) Flush() error {
	return i.cfg.Docs.Save(i.path(indexFile), &i.doc)
}

// InitBuildMeta seeds destDir/meta.json for a new build of the given version
// and OSTree commit. When the commit matches the previous build's commit the
// build id gains an incremented image-genver suffix, so rebuilds of identical
// content stay distinguishable.
func (i *Index) InitBuildMeta(version, ostreeCommit, destDir string) (string, error) {
	genver := 0
	buildID := version
	if !i.IsEmpty() {
		previous, err := i.GetLatest()
		if err != nil {
			return "", err
		}
		prevDir, err := i.GetBuildDir(previous, "")
		if err != nil {
			return "", err
		}
		prevMeta, err := i.cfg.Docs.LoadMap(path.Join(prevDir, "meta.json"))
		if err != nil {
			return "", fmt.Errorf("reading previous build metadata: %w", err)
		}
		if prevCommit, _ := prevMeta["ostree-commit"].(string); prevCommit == ostreeCommit {
			prevGenver, err := intFrom(prevMeta[genverKey])
			if err != nil {
				return "", fmt.Errorf("parsing %s of previous build: %w", genverKey, err)
			}
			genver = prevGenver + 1
			buildID = fmt.Sprintf("%s-%d", version, genver)
		}
	}
	meta := map[string]any{
		"buildid": buildID,
		genverKey: genver,
	}
	if err := i.cfg.Docs.Save(path.Join(destDir, "meta.json"), meta); err != nil {
		return "", err
	}
	return buildID, nil
}

func intFrom(v any) (int, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		return int(n), err
	case string:
		return strconv.Atoi(t)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
