// Package secure keeps fetched secret material encrypted while it sits
// in process memory. Records pulled from the vault are sealed into a
// memguard enclave between accesses so plaintext never lingers on the
// heap or reaches swap.
package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Buffer holds sensitive bytes encrypted at rest in memory. The
// underlying memguard enclave encrypts with XSalsa20-Poly1305 and
// attempts to mlock its pages.
type Buffer struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	destroyed bool
}

// Seal copies data into a protected buffer. The caller keeps ownership
// of the input slice and should zero it afterwards; memguard wipes its
// own copy on enclave resealing.
func Seal(data []byte) *Buffer {
	return &Buffer{enclave: memguard.NewEnclave(data)}
}

// With decrypts the buffer, passes the plaintext to f, and wipes the
// plaintext again before returning. The slice given to f is only valid
// for the duration of the call.
func (b *Buffer) With(f func(data []byte) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed || b.enclave == nil {
		return f(nil)
	}

	locked, err := b.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return f(locked.Bytes())
}

// Destroy marks the buffer unusable. Idempotent; With on a destroyed
// buffer sees nil data. The encrypted enclave itself is safe to leave
// for the garbage collector.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}
	b.enclave = nil
	b.destroyed = true
}

// Purge wipes all memguard-managed memory. Call once, deferred in main.
func Purge() {
	memguard.Purge()
}
