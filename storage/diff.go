package storage

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/rendergraph/scheduling"
)

// DiffKey is the canonical, order-independent representation of a
// resource's name and format used to compare frames, per the glossary's
// "Diff entry / key" definition.
type DiffKey struct {
	Name      string
	FormatKey string
}

func formatKey(f scheduling.Format) string {
	switch v := f.(type) {
	case scheduling.TextureFormat:
		return fmt.Sprintf("tex:%d:%dx%dx%d:mips=%d:samples=%d:px=%d:rt=%v:ds=%v:ua=%v:typeless=%v",
			v.Kind, v.Width, v.Height, v.Depth, v.MipCount, v.SampleCount, v.PixelFormat,
			v.IsRenderTarget, v.IsDepthStencil, v.IsUnorderedAccess, v.Typeless)
	case scheduling.BufferFormat:
		return fmt.Sprintf("buf:%d:%d", v.SizeBytes, v.Stride)
	default:
		return fmt.Sprintf("unknown:%T", f)
	}
}

// diffKeysForFrame returns the sorted-by-name diff keys of every primary
// (non-alias) resource in the frame.
func diffKeysForFrame(resources map[string]*scheduling.Info, primaryNames map[string]bool) []DiffKey {
	keys := make([]DiffKey, 0, len(primaryNames))
	for name := range primaryNames {
		info := resources[name]
		keys = append(keys, DiffKey{Name: name, FormatKey: formatKey(info.Format)})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	return keys
}

// DiffOpKind classifies one step of the edit script between two sorted
// diff-key sequences.
type DiffOpKind int

const (
	DiffCommon DiffOpKind = iota
	DiffInsert
	DiffDelete
	DiffChange
)

// DiffOp is one step of the edit script: Key identifies the affected
// resource (the current-frame key for Insert/Change, the previous-frame
// key for Delete).
type DiffOp struct {
	Kind DiffOpKind
	Key  DiffKey
}

// diffEditScript computes a longest-common-subsequence-style edit script
// between two sorted-by-name diff-key sequences. Because names are unique
// within a frame and both sequences are pre-sorted, a two-pointer merge
// produces the same common/insert/delete/change classification an LCS
// over these sequences would, with none of the quadratic cost.
func diffEditScript(prev, curr []DiffKey) []DiffOp {
	var ops []DiffOp
	i, j := 0, 0
	for i < len(prev) && j < len(curr) {
		switch {
		case prev[i].Name == curr[j].Name:
			if prev[i].FormatKey == curr[j].FormatKey {
				ops = append(ops, DiffOp{Kind: DiffCommon, Key: curr[j]})
			} else {
				ops = append(ops, DiffOp{Kind: DiffChange, Key: curr[j]})
			}
			i++
			j++
		case prev[i].Name < curr[j].Name:
			ops = append(ops, DiffOp{Kind: DiffDelete, Key: prev[i]})
			i++
		default:
			ops = append(ops, DiffOp{Kind: DiffInsert, Key: curr[j]})
			j++
		}
	}
	for ; i < len(prev); i++ {
		ops = append(ops, DiffOp{Kind: DiffDelete, Key: prev[i]})
	}
	for ; j < len(curr); j++ {
		ops = append(ops, DiffOp{Kind: DiffInsert, Key: curr[j]})
	}
	return ops
}

// allCommon reports whether every op in script is DiffCommon, the
// condition under which the transfer test moves previous-frame GPU
// handles instead of reallocating.
func allCommon(script []DiffOp) bool {
	for _, op := range script {
		if op.Kind != DiffCommon {
			return false
		}
	}
	return true
}
