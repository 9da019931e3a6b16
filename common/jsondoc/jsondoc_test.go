package jsondoc

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imageforge/imageforge-go/common/lockfile"
)

func newTestStore() *Store {
	return New(afero.NewMemMapFs(), lockfile.NewMapLocker())
}

func TestRoundTrip(t *testing.T) {
	s := newTestStore()
	doc := map[string]any{
		"buildid": "41.20240101.0",
		"images": map[string]any{
			"qemu": map[string]any{"path": "disk.qcow2", "size": json.Number("2147483648")},
		},
	}
	require.NoError(t, s.Save("builds/meta.json", doc))

	got, err := s.LoadMap("builds/meta.json")
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestLoadMissingAndInvalid(t *testing.T) {
	s := newTestStore()
	_, err := s.LoadMap("nope.json")
	assert.ErrorIs(t, err, ErrNotExist)

	require.NoError(t, afero.WriteFile(s.Fs(), "bad.json", []byte("{not json"), 0o644))
	_, err = s.LoadMap("bad.json")
	assert.ErrorIs(t, err, ErrBadDocument)
}

func TestLargeIntegersSurviveRoundTrip(t *testing.T) {
	s := newTestStore()
	// Nanosecond stamps exceed float64's exact integer range; they must not
	// come back mangled.
	stamp := json.Number("1704067200123456789")
	require.NoError(t, s.Save("meta.json", map[string]any{"stamp": stamp}))
	got, err := s.LoadMap("meta.json")
	require.NoError(t, err)
	assert.Equal(t, stamp, got["stamp"])
}

func TestSaveMergedAbsentFileIsEmptyBase(t *testing.T) {
	s := newTestStore()
	merged, err := s.SaveMerged("meta.json", map[string]any{"a": "b"},
		func(disk, mem map[string]any) (map[string]any, error) {
			assert.Empty(t, disk)
			return mem, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "b", merged["a"])
}

func TestSaveMergedSeesDiskCopy(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Save("meta.json", map[string]any{"existing": "value"}))

	merged, err := s.SaveMerged("meta.json", map[string]any{"added": "later"},
		func(disk, mem map[string]any) (map[string]any, error) {
			for k, v := range disk {
				mem[k] = v
			}
			return mem, nil
		})
	require.NoError(t, err)

	got, err := s.LoadMap("meta.json")
	require.NoError(t, err)
	assert.Equal(t, merged, got)
	assert.Equal(t, "value", got["existing"])
	assert.Equal(t, "later", got["added"])
}

func TestSaveMergedErrorLeavesDiskUntouched(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Save("meta.json", map[string]any{"keep": "me"}))

	_, err := s.SaveMerged("meta.json", map[string]any{"bad": true},
		func(disk, mem map[string]any) (map[string]any, error) {
			return nil, assert.AnError
		})
	require.Error(t, err)

	got, err := s.LoadMap("meta.json")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"keep": "me"}, got)
}

func TestConcurrentMergedWritersLoseNoUpdates(t *testing.T) {
	s := newTestStore()
	union := func(disk, mem map[string]any) (map[string]any, error) {
		out := map[string]any{}
		for k, v := range disk {
			out[k] = v
		}
		for k, v := range mem {
			out[k] = v
		}
		return out, nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SaveMerged("meta.json", map[string]any{key: true}, union)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.LoadMap("meta.json")
	require.NoError(t, err)
	assert.Len(t, got, 5)
}
