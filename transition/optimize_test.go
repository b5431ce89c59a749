package transition

import (
	"testing"

	"github.com/spaghettifunk/rendergraph/passgraph"
	"github.com/spaghettifunk/rendergraph/scheduling"
)

// TestOptimizeReadCoalescing coalesces back-to-back reads: P0 writes UA "T";
// P1, P2 read SR "T"; P3 writes UA "T".
func TestOptimizeReadCoalescing(t *testing.T) {
	graph := passgraph.New("P0", "P1", "P2", "P3")
	info := scheduling.New("T", scheduling.TextureFormat{
		Kind: scheduling.Texture2D, Width: 32, Height: 32,
		PixelFormat: scheduling.FormatRGBA8, IsUnorderedAccess: true,
	}, scheduling.UploadStrategyAliased)

	mustRequest(t, info, "P0", 0, passgraph.AccessWriteUnorderedAccess)
	mustRequest(t, info, "P1", 0, passgraph.AccessReadShaderResource)
	mustRequest(t, info, "P2", 0, passgraph.AccessReadShaderResource)
	mustRequest(t, info, "P3", 0, passgraph.AccessWriteUnorderedAccess)

	Optimize(graph, info)

	wantOneTime := scheduling.Transition{From: passgraph.AccessCommon, To: passgraph.AccessWriteUnorderedAccess}
	if !info.OneTimeTransition.Present || info.OneTimeTransition.Transition != wantOneTime {
		t.Fatalf("OneTimeTransition: have %+v, want %+v", info.OneTimeTransition, wantOneTime)
	}

	assertTransition(t, info, "P0", 0, scheduling.OptionalTransition{}) // no barrier: covered by one-time
	assertTransition(t, info, "P1", 0, scheduling.OptionalTransition{
		Transition: scheduling.Transition{From: passgraph.AccessWriteUnorderedAccess, To: passgraph.AccessReadShaderResource},
		Present:    true,
	})
	assertTransition(t, info, "P2", 0, scheduling.OptionalTransition{}) // coalesced
	assertTransition(t, info, "P3", 0, scheduling.OptionalTransition{
		Transition: scheduling.Transition{From: passgraph.AccessReadShaderResource, To: passgraph.AccessWriteUnorderedAccess},
		Present:    true,
	})
}

// TestOptimizeSinglePassNoBarrier checks that a single-pass resource
// only ever incurs the one-time transition, no per-pass barrier.
func TestOptimizeSinglePassNoBarrier(t *testing.T) {
	graph := passgraph.New("P0")
	info := scheduling.New("X", scheduling.TextureFormat{
		Kind: scheduling.Texture2D, Width: 128, Height: 128,
		PixelFormat: scheduling.FormatRGBA8, IsRenderTarget: true,
	}, scheduling.UploadStrategyAliased)

	mustRequest(t, info, "P0", 0, passgraph.AccessWriteRenderTarget)
	Optimize(graph, info)

	wantOneTime := scheduling.Transition{From: passgraph.AccessCommon, To: passgraph.AccessWriteRenderTarget}
	if !info.OneTimeTransition.Present || info.OneTimeTransition.Transition != wantOneTime {
		t.Fatalf("OneTimeTransition: have %+v, want %+v", info.OneTimeTransition, wantOneTime)
	}
	assertTransition(t, info, "P0", 0, scheduling.OptionalTransition{})
}

func mustRequest(t *testing.T, info *scheduling.Info, pass string, sub int, kind passgraph.AccessKind) {
	t.Helper()
	if err := info.RequestSubresourceUsage(pass, sub, kind, nil); err != nil {
		t.Fatalf("RequestSubresourceUsage(%q, %d): unexpected error %v", pass, sub, err)
	}
}

func assertTransition(t *testing.T, info *scheduling.Info, pass string, sub int, want scheduling.OptionalTransition) {
	t.Helper()
	have := info.Passes[pass].Subresources[sub].OptimizedTransition
	if have != want {
		t.Fatalf("OptimizedTransition[%q][%d]: have %+v, want %+v", pass, sub, have, want)
	}
}
