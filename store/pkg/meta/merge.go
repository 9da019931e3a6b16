package meta

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// identityPaths are the fields two documents must agree on to be mergeable at
// all. Disagreement means the documents belong to different builds.
var identityPaths = [][]string{
	{"ostree-commit"},
	{"ostree-content-checksum"},
	{"coreos-assembler.image-config-checksum"},
	{"coreos-assembler.container-config-git", "commit"},
}

// Merge reconciles the on-disk copy of a metadata document with the in-memory
// copy a writer wants to persist. Precedence is arbitrated by the documents'
// version stamps, not wall-clock write order:
//
//   - equal stamps: the writer started from the current disk state, so the
//     in-memory copy is taken verbatim;
//   - differing stamps: the lower-stamp document is the base and the
//     higher-stamp document is merged on top of it, so a writer that started
//     from stale data cannot clobber fields another writer already added.
//
// The result always carries a fresh stamp strictly above both inputs.
func Merge(disk, mem map[string]any) (map[string]any, error) {
	if err := checkIdentity(disk, mem); err != nil {
		mergeConflictsTotal.Inc()
		return nil, err
	}
	diskStamp, err := stampOf(disk)
	if err != nil {
		return nil, err
	}
	memStamp, err := stampOf(mem)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	switch {
	case diskStamp == memStamp:
		out = deepCopyMap(mem)
	case diskStamp < memStamp:
		out = mergeTrees(deepCopyMap(disk), deepCopyMap(mem))
	default:
		out = mergeTrees(deepCopyMap(mem), deepCopyMap(disk))
	}

	stamp := time.Now().UnixNano()
	if highest := max(diskStamp, memStamp); stamp <= highest {
		stamp = highest + 1
	}
	out[StampKey] = json.Number(strconv.FormatInt(stamp, 10))
	return out, nil
}

func checkIdentity(x, y map[string]any) error {
	for _, path := range identityPaths {
		xv := lookup(x, path)
		yv := lookup(y, path)
		if xv == nil || yv == nil {
			continue
		}
		if !reflect.DeepEqual(xv, yv) {
			return fmt.Errorf("%w: %s differs (%v != %v)",
				ErrMergeConflict, strings.Join(path, "."), xv, yv)
		}
	}
	return nil
}

func lookup(doc map[string]any, keys []string) any {
	var cur any = doc
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[k]
		if !ok {
			return nil
		}
	}
	return cur
}

// mergeTrees merges y into x based on their symmetric difference: one-sided
// keys are taken outright, nested objects merge recursively, sequences union
// with x's order preserved, and x wins shared scalars.
func mergeTrees(x, y map[string]any) map[string]any {
	ret := make(map[string]any, len(x)+len(y))
	for k, yv := range y {
		if _, shared := x[k]; !shared {
			ret[k] = yv
		}
	}
	for k, xv := range x {
		yv, shared := y[k]
		if !shared {
			ret[k] = xv
			continue
		}
		if xm, ok := xv.(map[string]any); ok {
			if ym, ok := yv.(map[string]any); ok {
				ret[k] = mergeTrees(xm, ym)
				continue
			}
		}
		if xs, ok := xv.([]any); ok {
			if ys, ok := yv.([]any); ok {
				ret[k] = mergeLists(xs, ys)
				continue
			}
		}
		ret[k] = xv
	}
	return ret
}

// mergeLists unions two sequences, preserving x's order and appending only
// elements of y not already present.
func mergeLists(x, y []any) []any {
	ret := make([]any, len(x), len(x)+len(y))
	copy(ret, x)
	for _, yv := range y {
		novel := true
		for _, xv := range ret {
			if reflect.DeepEqual(xv, yv) {
				novel = false
				break
			}
		}
		if novel {
			ret = append(ret, yv)
		}
	}
	return ret
}

func stampOf(doc map[string]any) (int64, error) {
	switch v := doc[StampKey].(type) {
	case nil:
		return 0, nil
	case json.Number:
		return v.Int64()
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unexpected %s type %T", StampKey, v)
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
