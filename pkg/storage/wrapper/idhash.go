package wrapper

import (
	"github.com/marmos91/dittovfs/pkg/storage"
)

// IDHash reports the hashed form of the inner backend's id, so that ids
// longer than storage.MaxIDLength fit fixed-width storage tables.
type IDHash struct {
	storage.Backend
}

// IDHashWrapper returns a Wrapper applying IDHash.
func IDHashWrapper() Wrapper {
	return func(_ string, b storage.Backend) storage.Backend {
		return &IDHash{Backend: b}
	}
}

func (h *IDHash) ID() string {
	return storage.HashID(h.Backend.ID())
}

func (h *IDHash) Unwrap() storage.Backend {
	return h.Backend
}
