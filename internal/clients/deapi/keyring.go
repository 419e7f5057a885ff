// internal/clients/deapi/keyring.go
package deapi

import (
	"sync"

	"adreel/internal/common/metrics"
)

// KeyRing rotates through a pool of API keys. Rotation happens when a key is
// rate limited, wrapping back to the first key after the last.
type KeyRing struct {
	mu    sync.Mutex
	keys  []string
	index int
}

func NewKeyRing(keys []string) *KeyRing {
	return &KeyRing{keys: keys}
}

// Current returns the key requests should use right now.
func (k *KeyRing) Current() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys) == 0 {
		return ""
	}
	return k.keys[k.index]
}

// Rotate advances to the next key. It reports false when there is only one
// key and rotating would be pointless.
func (k *KeyRing) Rotate() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys) <= 1 {
		return false
	}
	k.index = (k.index + 1) % len(k.keys)
	metrics.RenderKeyRotations.Inc()
	return true
}

// Len returns the number of keys in the ring.
func (k *KeyRing) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.keys)
}
