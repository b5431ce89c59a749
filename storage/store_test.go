package storage

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/rendergraph/backend"
	"github.com/spaghettifunk/rendergraph/backend/memsim"
	"github.com/spaghettifunk/rendergraph/core"
	"github.com/spaghettifunk/rendergraph/passgraph"
	"github.com/spaghettifunk/rendergraph/scheduling"
)

func rgba8(width, height uint32, rt bool) scheduling.TextureFormat {
	return scheduling.TextureFormat{
		Kind: scheduling.Texture2D, Width: width, Height: height,
		PixelFormat: scheduling.FormatRGBA8, IsRenderTarget: rt,
	}
}

// scheduleAndAllocate runs one full frame through scheduling and
// allocation against a fresh graph built from names, invoking setup for
// each pass in order.
func scheduleAndAllocate(t *testing.T, s *Store, names []string, setup map[string]func(*Store)) *passgraph.Graph {
	t.Helper()
	graph := passgraph.New(names...)
	s.BeginFrame(graph)
	for _, name := range names {
		s.SetCurrentPass(name)
		if fn, ok := setup[name]; ok {
			fn(s)
		}
	}
	if err := s.EndScheduling(); err != nil {
		t.Fatalf("EndScheduling: unexpected error %v", err)
	}
	if err := s.AllocateScheduledResources(); err != nil {
		t.Fatalf("AllocateScheduledResources: unexpected error %v", err)
	}
	return graph
}

// TestScenarioSinglePassSingleTexture drives one pass writing one render target.
func TestScenarioSinglePassSingleTexture(t *testing.T) {
	sim := memsim.New(scheduling.BackendCapabilities{})
	s := New(sim)

	scheduleAndAllocate(t, s, []string{"P0"}, map[string]func(*Store){
		"P0": func(s *Store) {
			mustNoErr(t, s.NewTexture("X", rgba8(128, 128, true), scheduling.UploadStrategyAliased))
			mustNoErr(t, s.WillWriteRT("X", 0))
		},
	})

	info, err := s.Info("X")
	if err != nil {
		t.Fatalf("Info(X): unexpected error %v", err)
	}
	if info.HeapOffset != 0 {
		t.Fatalf("HeapOffset: have %d, want 0", info.HeapOffset)
	}
	wantOneTime := scheduling.Transition{From: passgraph.AccessCommon, To: passgraph.AccessWriteRenderTarget}
	if !info.OneTimeTransition.Present || info.OneTimeTransition.Transition != wantOneTime {
		t.Fatalf("OneTimeTransition: have %+v, want %+v", info.OneTimeTransition, wantOneTime)
	}
	heap := s.current.Heaps[scheduling.GroupRTDSTextures]
	if sim.HeapSize(heap) != 128*128*4 {
		t.Fatalf("heap size: have %d, want %d", sim.HeapSize(heap), 128*128*4)
	}
}

// TestScenarioClone creates a texture and a clone inheriting its format.
func TestScenarioClone(t *testing.T) {
	sim := memsim.New(scheduling.BackendCapabilities{})
	s := New(sim)

	format := scheduling.TextureFormat{Kind: scheduling.Texture2D, Width: 64, Height: 64, PixelFormat: scheduling.FormatR16Float}
	scheduleAndAllocate(t, s, []string{"P0"}, map[string]func(*Store){
		"P0": func(s *Store) {
			mustNoErr(t, s.NewTexture("A", format, scheduling.UploadStrategyAliased))
			mustNoErr(t, s.Clone("B", "A"))
			mustNoErr(t, s.WillWriteRT("A", 0))
			mustNoErr(t, s.WillWriteRT("B", 0))
		},
	})

	a, err := s.Info("A")
	mustNoErr(t, err)
	b, err := s.Info("B")
	mustNoErr(t, err)
	if a == b {
		t.Fatalf("A and B must be independent scheduling infos")
	}
	if a.Format != b.Format {
		t.Fatalf("B's format must equal A's: have %+v, want %+v", b.Format, a.Format)
	}
}

// TestScenarioFrameTransfer checks that an identical frame
// N to frame N-1 transfers handles rather than reallocating.
func TestScenarioFrameTransfer(t *testing.T) {
	sim := memsim.New(scheduling.BackendCapabilities{})
	s := New(sim)

	build := func() {
		scheduleAndAllocate(t, s, []string{"P0", "P1", "P2"}, map[string]func(*Store){
			"P0": func(s *Store) {
				mustNoErr(t, s.NewTexture("A", rgba8(64, 64, true), scheduling.UploadStrategyAliased))
				mustNoErr(t, s.WillWriteRT("A", 0))
			},
			"P1": func(s *Store) {
				mustNoErr(t, s.NewTexture("B", rgba8(64, 64, true), scheduling.UploadStrategyAliased))
				mustNoErr(t, s.WillRead("A", 0))
				mustNoErr(t, s.WillWriteRT("B", 0))
			},
			"P2": func(s *Store) {
				mustNoErr(t, s.WillRead("B", 0))
			},
		})
	}

	build()
	if !s.LayoutChanged() {
		t.Fatalf("first frame: LayoutChanged() have false, want true")
	}
	handleA := s.current.Handles["A"]

	build()
	if s.LayoutChanged() {
		t.Fatalf("identical second frame: LayoutChanged() have true, want false")
	}
	if s.current.Handles["A"] != handleA {
		t.Fatalf("A's handle should have been transferred from frame N-1")
	}
}

// TestScenarioLayoutChange checks that adding a new
// resource in frame N forces reallocation and drops old handles.
func TestScenarioLayoutChange(t *testing.T) {
	sim := memsim.New(scheduling.BackendCapabilities{})
	s := New(sim)

	scheduleAndAllocate(t, s, []string{"P0"}, map[string]func(*Store){
		"P0": func(s *Store) {
			mustNoErr(t, s.NewTexture("A", rgba8(64, 64, true), scheduling.UploadStrategyAliased))
			mustNoErr(t, s.WillWriteRT("A", 0))
		},
	})
	handleA := s.current.Handles["A"]

	scheduleAndAllocate(t, s, []string{"P0"}, map[string]func(*Store){
		"P0": func(s *Store) {
			mustNoErr(t, s.NewTexture("A", rgba8(64, 64, true), scheduling.UploadStrategyAliased))
			mustNoErr(t, s.NewTexture("D", rgba8(64, 64, true), scheduling.UploadStrategyAliased))
			mustNoErr(t, s.WillWriteRT("A", 0))
			mustNoErr(t, s.WillWriteRT("D", 0))
		},
	})

	if !s.LayoutChanged() {
		t.Fatalf("frame adding D: LayoutChanged() have false, want true")
	}
	if s.current.Handles["A"] == handleA {
		t.Fatalf("A's handle must be dropped, not transferred, when the layout changes")
	}
}

func TestAliasChainSharesSchedulingInfo(t *testing.T) {
	sim := memsim.New(scheduling.BackendCapabilities{})
	s := New(sim)

	scheduleAndAllocate(t, s, []string{"P0"}, map[string]func(*Store){
		"P0": func(s *Store) {
			mustNoErr(t, s.NewTexture("A", rgba8(32, 32, true), scheduling.UploadStrategyAliased))
			s.ReadAlias("A", "B")
			s.ReadAlias("B", "C")
			mustNoErr(t, s.WillWriteRT("A", 0))
			mustNoErr(t, s.WillRead("C", 0))
		},
	})

	a, err := s.Info("A")
	mustNoErr(t, err)
	c, err := s.Info("C")
	mustNoErr(t, err)
	if a != c {
		t.Fatalf("A and C must resolve to the same scheduling info via the alias chain")
	}
}

func TestAliasCycleIsMisconfiguration(t *testing.T) {
	sim := memsim.New(scheduling.BackendCapabilities{})
	s := New(sim)
	graph := passgraph.New("P0")
	s.BeginFrame(graph)
	s.SetCurrentPass("P0")
	s.ReadAlias("A", "B")
	s.ReadAlias("B", "A")

	if err := s.EndScheduling(); !errors.Is(err, core.ErrMisconfiguration) {
		t.Fatalf("EndScheduling with alias cycle: have err %v, want ErrMisconfiguration", err)
	}
}

func TestDuplicateCreationFails(t *testing.T) {
	sim := memsim.New(scheduling.BackendCapabilities{})
	s := New(sim)
	graph := passgraph.New("P0")
	s.BeginFrame(graph)
	s.SetCurrentPass("P0")
	mustNoErr(t, s.NewTexture("A", rgba8(32, 32, false), scheduling.UploadStrategyAliased))

	if err := s.NewTexture("A", rgba8(32, 32, false), scheduling.UploadStrategyAliased); !errors.Is(err, core.ErrDuplicateCreation) {
		t.Fatalf("second NewTexture(A): have err %v, want ErrDuplicateCreation", err)
	}
}

// TestScenarioDisjointLifetimesAliasing drives lifetime-based aliasing end to
// end through the pass-author surface: when P1 stops reading A, the two
// textures' lifetimes disconnect and they share offset 0 of a one-texture
// heap.
func TestScenarioDisjointLifetimesAliasing(t *testing.T) {
	build := func(p1ReadsA bool) (*Store, *memsim.Backend) {
		sim := memsim.New(scheduling.BackendCapabilities{})
		s := New(sim)
		scheduleAndAllocate(t, s, []string{"P0", "P1", "P2"}, map[string]func(*Store){
			"P0": func(s *Store) {
				mustNoErr(t, s.NewTexture("A", rgba8(512, 512, true), scheduling.UploadStrategyAliased))
				mustNoErr(t, s.WillWriteRT("A", 0))
			},
			"P1": func(s *Store) {
				mustNoErr(t, s.NewTexture("B", rgba8(512, 512, true), scheduling.UploadStrategyAliased))
				if p1ReadsA {
					mustNoErr(t, s.WillRead("A", 0))
				}
				mustNoErr(t, s.WillWriteRT("B", 0))
			},
			"P2": func(s *Store) {
				mustNoErr(t, s.WillRead("B", 0))
			},
		})
		return s, sim
	}
	const texSize = 512 * 512 * 4

	s, sim := build(true)
	heap := s.current.Heaps[scheduling.GroupRTDSTextures]
	if sim.HeapSize(heap) != 2*texSize {
		t.Fatalf("overlapping lifetimes: heap size have %d, want %d", sim.HeapSize(heap), 2*texSize)
	}

	s, sim = build(false)
	heap = s.current.Heaps[scheduling.GroupRTDSTextures]
	if sim.HeapSize(heap) != texSize {
		t.Fatalf("disjoint lifetimes: heap size have %d, want %d", sim.HeapSize(heap), texSize)
	}
	a, err := s.Info("A")
	mustNoErr(t, err)
	b, err := s.Info("B")
	mustNoErr(t, err)
	if a.HeapOffset != 0 || b.HeapOffset != 0 {
		t.Fatalf("offsets: have A=%d B=%d, want both 0", a.HeapOffset, b.HeapOffset)
	}
	if !a.NeedsAliasingBarrier || !b.NeedsAliasingBarrier {
		t.Fatalf("NeedsAliasingBarrier: have A=%v B=%v, want both true", a.NeedsAliasingBarrier, b.NeedsAliasingBarrier)
	}
}

// TestIncompatibleUsageAbortsFrame verifies that a usage contradicting the
// declared format surfaces from EndScheduling and aborts the frame, rather
// than being swallowed during configurator execution.
func TestIncompatibleUsageAbortsFrame(t *testing.T) {
	sim := memsim.New(scheduling.BackendCapabilities{})
	s := New(sim)
	graph := passgraph.New("P0")
	s.BeginFrame(graph)
	s.SetCurrentPass("P0")
	mustNoErr(t, s.NewTexture("T", rgba8(32, 32, false), scheduling.UploadStrategyAliased))
	mustNoErr(t, s.WillWriteUA("T", 0))

	if err := s.EndScheduling(); !errors.Is(err, core.ErrIncompatibleUsage) {
		t.Fatalf("EndScheduling: have err %v, want ErrIncompatibleUsage", err)
	}
}

// TestTransferPreservesPlacement verifies that a transferred frame keeps
// the previous frame's heap offsets and aliasing-barrier flags, since the
// layout they describe is unchanged.
func TestTransferPreservesPlacement(t *testing.T) {
	sim := memsim.New(scheduling.BackendCapabilities{})
	s := New(sim)

	build := func() {
		scheduleAndAllocate(t, s, []string{"P0", "P1", "P2"}, map[string]func(*Store){
			"P0": func(s *Store) {
				mustNoErr(t, s.NewTexture("A", rgba8(64, 64, true), scheduling.UploadStrategyAliased))
				mustNoErr(t, s.WillWriteRT("A", 0))
			},
			"P1": func(s *Store) {
				mustNoErr(t, s.NewTexture("B", rgba8(64, 64, true), scheduling.UploadStrategyAliased))
				mustNoErr(t, s.WillWriteRT("B", 0))
			},
			"P2": func(s *Store) {
				mustNoErr(t, s.WillRead("B", 0))
			},
		})
	}

	build()
	build()
	if s.LayoutChanged() {
		t.Fatalf("identical second frame: LayoutChanged() have true, want false")
	}
	b, err := s.Info("B")
	mustNoErr(t, err)
	if !b.NeedsAliasingBarrier {
		t.Fatalf("transferred frame lost B's NeedsAliasingBarrier flag")
	}
}

// TestDeterministicOffsets runs the same frame through two independent
// stores and expects identical heap offsets for every resource.
func TestDeterministicOffsets(t *testing.T) {
	build := func() *Store {
		sim := memsim.New(scheduling.BackendCapabilities{})
		s := New(sim)
		scheduleAndAllocate(t, s, []string{"P0", "P1", "P2"}, map[string]func(*Store){
			"P0": func(s *Store) {
				mustNoErr(t, s.NewTexture("A", rgba8(128, 128, true), scheduling.UploadStrategyAliased))
				mustNoErr(t, s.NewTexture("C", rgba8(64, 64, true), scheduling.UploadStrategyAliased))
				mustNoErr(t, s.WillWriteRT("A", 0))
				mustNoErr(t, s.WillWriteRT("C", 0))
			},
			"P1": func(s *Store) {
				mustNoErr(t, s.NewTexture("B", rgba8(128, 128, true), scheduling.UploadStrategyAliased))
				mustNoErr(t, s.WillWriteRT("B", 0))
			},
			"P2": func(s *Store) {
				mustNoErr(t, s.WillRead("B", 0))
				mustNoErr(t, s.WillRead("C", 0))
			},
		})
		return s
	}

	first, second := build(), build()
	for _, name := range []string{"A", "B", "C"} {
		a, err := first.Info(name)
		mustNoErr(t, err)
		b, err := second.Info(name)
		mustNoErr(t, err)
		if a.HeapOffset != b.HeapOffset {
			t.Fatalf("%s: offsets differ across runs: %d vs %d", name, a.HeapOffset, b.HeapOffset)
		}
	}
}

// TestTypedViewDescriptorAllocated schedules a typeless texture read
// through a shader-visible format override and checks that allocation
// produces exactly one descriptor for the viewed subresource.
func TestTypedViewDescriptorAllocated(t *testing.T) {
	sim := memsim.New(scheduling.BackendCapabilities{})
	s := New(sim)

	typeless := scheduling.TextureFormat{
		Kind: scheduling.Texture2D, Width: 64, Height: 64,
		PixelFormat: scheduling.FormatTypeless, IsRenderTarget: true,
	}
	scheduleAndAllocate(t, s, []string{"P0", "P1"}, map[string]func(*Store){
		"P0": func(s *Store) {
			mustNoErr(t, s.NewTexture("T", typeless, scheduling.UploadStrategyAliased))
			mustNoErr(t, s.WillWriteRT("T", 0))
		},
		"P1": func(s *Store) {
			mustNoErr(t, s.WillReadAs("T", 0, scheduling.FormatRGBA8))
		},
	})

	d, err := s.Descriptor("T", 0)
	mustNoErr(t, err)
	if d == nil {
		t.Fatalf("Descriptor(T, 0): have nil handle")
	}
	if n := len(s.current.Descriptors); n != 1 {
		t.Fatalf("descriptor count: have %d, want 1", n)
	}
	if _, err := s.Descriptor("T", 1); !errors.Is(err, core.ErrUnknownResource) {
		t.Fatalf("Descriptor(T, 1): have %v, want ErrUnknownResource", err)
	}
}

// TestFormatOverrideOnTypedFormatFails rejects a shader-visible override
// against a resource whose declared format is already typed.
func TestFormatOverrideOnTypedFormatFails(t *testing.T) {
	sim := memsim.New(scheduling.BackendCapabilities{})
	s := New(sim)

	graph := passgraph.New("P0")
	s.BeginFrame(graph)
	s.SetCurrentPass("P0")
	mustNoErr(t, s.NewTexture("T", rgba8(32, 32, true), scheduling.UploadStrategyAliased))
	mustNoErr(t, s.WillReadAs("T", 0, scheduling.FormatRGBA16Float))
	if err := s.EndScheduling(); !errors.Is(err, core.ErrIncompatibleUsage) {
		t.Fatalf("EndScheduling: have %v, want ErrIncompatibleUsage", err)
	}
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

var _ backend.Capability = (*memsim.Backend)(nil)
