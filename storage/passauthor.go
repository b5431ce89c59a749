package storage

import (
	"fmt"

	"github.com/spaghettifunk/rendergraph/core"
	"github.com/spaghettifunk/rendergraph/passgraph"
	"github.com/spaghettifunk/rendergraph/scheduling"
)

// NewTexture enqueues a primary creation request for a texture resource.
func (s *Store) NewTexture(name string, format scheduling.TextureFormat, strategy scheduling.UploadStrategy) error {
	return s.create(name, format, strategy)
}

// NewBuffer enqueues a primary creation request for a buffer resource.
func (s *Store) NewBuffer(name string, format scheduling.BufferFormat, strategy scheduling.UploadStrategy) error {
	return s.create(name, format, strategy)
}

func (s *Store) create(name string, format scheduling.Format, strategy scheduling.UploadStrategy) error {
	f := s.current
	for _, req := range f.creations {
		if req.name == name {
			return fmt.Errorf("storage: %q: %w", name, core.ErrDuplicateCreation)
		}
	}
	f.creations = append(f.creations, creationRequest{name: name, format: format, strategy: strategy})
	return nil
}

// Clone enqueues a secondary creation request whose format is copied from
// sourceName at materialization time.
func (s *Store) Clone(name, sourceName string) error {
	f := s.current
	for _, req := range f.creations {
		if req.name == name {
			return fmt.Errorf("storage: %q: %w", name, core.ErrDuplicateCreation)
		}
	}
	f.creations = append(f.creations, creationRequest{name: name, cloneFrom: sourceName, isClone: true})
	return nil
}

// ReadAlias registers aliasName as another name for original, resolved
// during EndScheduling.
func (s *Store) ReadAlias(original, aliasName string) {
	s.current.AliasMap[aliasName] = original
}

// use enqueues a configurator against name for the current pass, applying
// kind to subresource with an optional shader-visible format override.
func (s *Store) use(name string, subresource int, kind passgraph.AccessKind, shaderVisibleFormat *scheduling.PixelFormat) error {
	if s.currentPass == "" {
		return fmt.Errorf("storage: use(%q) called outside a pass's setup callback: %w", name, core.ErrUnknownPass)
	}
	pass := s.currentPass
	if err := s.current.Graph.Declare(pass, name, subresource, kind); err != nil {
		return err
	}
	s.current.uses = append(s.current.uses, useRequest{
		pass: pass,
		name: name,
		configurator: func(info *scheduling.Info) error {
			return info.RequestSubresourceUsage(pass, subresource, kind, shaderVisibleFormat)
		},
	})
	return nil
}

// WillRead declares a shader-resource read of name at subresource.
func (s *Store) WillRead(name string, subresource int) error {
	return s.use(name, subresource, passgraph.AccessReadShaderResource, nil)
}

// WillReadAs declares a shader-resource read of name at subresource
// through a shader-visible format override, valid only when the declared
// format is typeless. The override carries a descriptor-insertion request
// so the allocation phase creates a typed view.
func (s *Store) WillReadAs(name string, subresource int, viewFormat scheduling.PixelFormat) error {
	return s.use(name, subresource, passgraph.AccessReadShaderResource, &viewFormat)
}

// WillWriteRT declares a render-target write of name at mip.
func (s *Store) WillWriteRT(name string, mip int) error {
	return s.use(name, mip, passgraph.AccessWriteRenderTarget, nil)
}

// WillWriteDS declares a depth-stencil write of name (subresource 0).
func (s *Store) WillWriteDS(name string) error {
	return s.use(name, 0, passgraph.AccessWriteDepthStencil, nil)
}

// WillReadDS declares a depth-stencil read of name (subresource 0).
func (s *Store) WillReadDS(name string) error {
	return s.use(name, 0, passgraph.AccessReadDepthStencil, nil)
}

// WillWriteUA declares an unordered-access write of name at mip.
func (s *Store) WillWriteUA(name string, mip int) error {
	return s.use(name, mip, passgraph.AccessWriteUnorderedAccess, nil)
}

// WillCopyFrom declares name as a copy source.
func (s *Store) WillCopyFrom(name string) error {
	return s.use(name, 0, passgraph.AccessCopySource, nil)
}

// WillCopyTo declares name as a copy destination.
func (s *Store) WillCopyTo(name string) error {
	return s.use(name, 0, passgraph.AccessCopyDestination, nil)
}
