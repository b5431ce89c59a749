package storage

import (
	"fmt"

	"github.com/spaghettifunk/rendergraph/aliaser"
	"github.com/spaghettifunk/rendergraph/backend"
	"github.com/spaghettifunk/rendergraph/core"
	"github.com/spaghettifunk/rendergraph/scheduling"
	"github.com/spaghettifunk/rendergraph/transition"
)

// AllocateScheduledResources runs the allocation phase: extends aliasing
// lifetimes across aliases, runs the transfer test against the previous
// frame, and either transfers previous-frame GPU handles or reallocates
// fresh heaps, before invoking the state-transition optimizer to populate
// every resource's barrier lists.
func (s *Store) AllocateScheduledResources() error {
	f := s.current

	if err := s.extendAliasingLifetimes(); err != nil {
		return err
	}

	transferred, err := s.runTransferTest()
	if err != nil {
		return err
	}

	if !transferred {
		if err := s.reallocate(); err != nil {
			return err
		}
	}

	for name := range f.Primary {
		transition.Optimize(f.Graph, f.Resources[name])
	}

	return nil
}

// extendAliasingLifetimes widens each aliased resource's lifetime to the
// union of its own pass-graph timeline and every alias's timeline.
func (s *Store) extendAliasingLifetimes() error {
	f := s.current
	for name := range f.Primary {
		info := f.Resources[name]
		if !info.CanBeAliased {
			continue
		}
		names := append([]string{name}, info.Aliases...)
		for _, n := range names {
			first, last, ok := f.Graph.ResourceUsageTimeline(n)
			if !ok {
				continue
			}
			info.ExtendAliasingLifetime(first, last)
		}
		if !info.AliasingLifetime.Valid {
			return fmt.Errorf("storage: %q: never used by any pass: %w", name, core.ErrMisconfiguration)
		}
	}
	return nil
}

// runTransferTest unions expected states with the previous frame's (to
// avoid ping-pong reallocation), computes both frames' diff keys, and
// transfers previous-frame handles when the edit script is all common.
// It returns true when a transfer occurred (no reallocation needed).
func (s *Store) runTransferTest() (bool, error) {
	f, prev := s.current, s.previous

	for name := range f.Primary {
		info := f.Resources[name]
		if prevInfo, ok := prev.Resources[name]; ok && prev.Primary[name] {
			info.AddExpectedStates(prevInfo.ApplyExpectedStates())
		}
	}

	currKeys := diffKeysForFrame(f.Resources, f.Primary)
	prevKeys := diffKeysForFrame(prev.Resources, prev.Primary)
	script := diffEditScript(prevKeys, currKeys)

	if len(prevKeys) == 0 || !allCommon(script) {
		f.layoutChanged = true
		core.EventFire(core.EventContext{Type: core.EventLayoutEpochChanged, Data: script})
		return false, nil
	}

	f.layoutChanged = false
	f.Heaps = prev.Heaps
	f.Descriptors = prev.Descriptors
	for name := range f.Primary {
		f.Handles[name] = prev.Handles[name]
		// The heap layout is unchanged, so the previous frame's placement
		// still describes where this resource lives and whether its region
		// is shared.
		if prevInfo, ok := prev.Resources[name]; ok && prev.Primary[name] {
			info := f.Resources[name]
			info.HeapOffset = prevInfo.HeapOffset
			info.NeedsAliasingBarrier = prevInfo.NeedsAliasingBarrier
		}
	}
	core.EventFire(core.EventContext{Type: core.EventFrameTransferred, Data: len(currKeys)})
	return true, nil
}

// reallocate discards any previous heaps, routes every aliased resource
// into its aliasing group's packer, allocates fresh heaps for non-empty
// groups, and allocates each resource on its heap (or as a dedicated
// committed allocation for non-aliased resources).
func (s *Store) reallocate() error {
	f := s.current
	caps := s.capability.Capabilities()

	entriesByGroup := make(map[scheduling.AliasingGroup][]aliaser.Entry)
	var committed []string

	for _, name := range s.primaryNames() {
		info := f.Resources[name]
		if !info.CanBeAliased {
			committed = append(committed, name)
			continue
		}
		group := info.Format.AliasingGroup(caps)
		entriesByGroup[group] = append(entriesByGroup[group], aliaser.Entry{
			Key:      name,
			Lifetime: aliaser.Lifetime{First: info.AliasingLifetime.First, Last: info.AliasingLifetime.Last},
			Size:     info.Format.ByteSize(),
		})
	}

	f.Heaps = make(map[scheduling.AliasingGroup]backend.HeapHandle)

	groups := []scheduling.AliasingGroup{
		scheduling.GroupRTDSTextures,
		scheduling.GroupNonRTDSTextures,
		scheduling.GroupBuffers,
		scheduling.GroupUniversal,
	}
	for _, group := range groups {
		entries, ok := entriesByGroup[group]
		if !ok {
			continue
		}
		result := aliaser.Pack(entries)
		heap, err := s.capability.CreateHeap(group, result.HeapSize)
		if err != nil {
			return fmt.Errorf("storage: create heap for group %v: %w", group, core.NewBackendError(0, err))
		}
		f.Heaps[group] = heap

		for _, placement := range result.Placements {
			name := placement.Key.(string)
			info := f.Resources[name]
			info.HeapOffset = placement.Offset
			info.NeedsAliasingBarrier = placement.NeedsAliasingBarrier

			handle, err := s.capability.AllocateResource(info.Format, heap, placement.Offset)
			if err != nil {
				return fmt.Errorf("storage: allocate %q: %w", name, core.ErrAllocationFailure)
			}
			f.Handles[name] = handle
			if err := s.allocateDescriptors(name, info, handle); err != nil {
				return err
			}
		}
	}

	for _, name := range committed {
		info := f.Resources[name]
		handle, err := s.capability.AllocateCommittedResource(info.Format)
		if err != nil {
			return fmt.Errorf("storage: allocate committed %q: %w", name, core.ErrAllocationFailure)
		}
		f.Handles[name] = handle
		if err := s.allocateDescriptors(name, info, handle); err != nil {
			return err
		}
	}

	return nil
}

// allocateDescriptors creates a typed shader-resource view for every
// subresource some pass scheduled through a format override. A
// subresource requested by several passes shares one descriptor.
func (s *Store) allocateDescriptors(name string, info *scheduling.Info, handle backend.ResourceHandle) error {
	f := s.current
	for _, pi := range info.Passes {
		for sub, si := range pi.Subresources {
			if !si.DescriptorRequested {
				continue
			}
			key := descriptorKey(name, sub)
			if _, exists := f.Descriptors[key]; exists {
				continue
			}
			var viewFormat *scheduling.PixelFormat
			if si.HasFormatOverride {
				viewFormat = &si.ShaderVisibleFormat
			}
			d, err := s.capability.AllocateDescriptor(backend.DescriptorShaderResourceView, handle, viewFormat)
			if err != nil {
				return fmt.Errorf("storage: descriptor for %q subresource %d: %w", name, sub, core.ErrAllocationFailure)
			}
			f.Descriptors[key] = d
		}
	}
	return nil
}
