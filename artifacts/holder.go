package artifacts

import "sync/atomic"

// Holder publishes the bundle currently used for serving.
type Holder struct {
	current atomic.Pointer[Bundle]
}

func NewHolder(b *Bundle) *Holder {
	h := &Holder{}
	if b != nil {
		h.current.Store(b)
	}
	return h
}

// Current returns the serving bundle, or nil when none has been loaded.
func (h *Holder) Current() *Bundle {
	return h.current.Load()
}

// Swap installs b and returns the previous bundle.
func (h *Holder) Swap(b *Bundle) *Bundle {
	return h.current.Swap(b)
}
