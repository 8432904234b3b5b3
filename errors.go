package vecmigrate

import (
	"github.com/hupe1980/vecmigrate/manifest"
	"github.com/hupe1980/vecmigrate/reconcile"
	"github.com/hupe1980/vecmigrate/remote"
)

// Unified error surface. Callers can match these with errors.Is without
// importing the subpackages that produce them.
var (
	// ErrInvalidManifest indicates a structurally unusable dataset manifest.
	ErrInvalidManifest = manifest.ErrInvalidManifest

	// ErrResourceNotFound indicates a named remote resource is absent and
	// creation was not requested.
	ErrResourceNotFound = reconcile.ErrResourceNotFound

	// ErrAmbiguousResource indicates a lookup matched more than one remote
	// resource.
	ErrAmbiguousResource = reconcile.ErrAmbiguousResource

	// ErrConfiguration indicates missing or contradictory migration
	// parameters.
	ErrConfiguration = reconcile.ErrConfiguration

	// ErrNotFound indicates the remote service reported a missing resource.
	ErrNotFound = remote.ErrNotFound
)
