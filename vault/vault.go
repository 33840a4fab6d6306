// Package vault gates the sensitive configuration surfaces behind a passcode.
// The gate is coarse: one successful verification unlocks every gated surface
// for the current configuration session, and closing the surface locks it
// again. There is no lockout after repeated failures.
package vault

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Verifier checks a passcode attempt. Implementations must not embed secrets
// in source; the hash comes from configuration.
type Verifier interface {
	Verify(pin string) bool
}

// BcryptVerifier verifies attempts against a bcrypt hash.
type BcryptVerifier struct {
	Hash string
}

// Verify reports whether pin matches the configured hash. An empty hash means
// no passcode has been provisioned yet, so every attempt is refused.
func (v BcryptVerifier) Verify(pin string) bool {
	if v.Hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(v.Hash), []byte(pin)) == nil
}

// HashPasscode produces the bcrypt hash to store in configuration.
func HashPasscode(pin string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Gate is the session-scoped unlock state for the configuration surfaces.
type Gate struct {
	mu       sync.Mutex
	verifier Verifier
	unlocked bool
}

// NewGate creates a locked gate.
func NewGate(v Verifier) *Gate {
	return &Gate{verifier: v}
}

// Verify attempts to unlock with the given passcode. A wrong passcode leaves
// the gate locked and is always retryable.
func (g *Gate) Verify(pin string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifier.Verify(pin) {
		g.unlocked = true
	}
	return g.unlocked
}

// Unlocked reports the current gate state.
func (g *Gate) Unlocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlocked
}

// Reset locks the gate. Called whenever the configuration surface closes; the
// unlocked state never survives a session.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unlocked = false
}

// SetVerifier swaps the verifier, for passcode changes at runtime.
func (g *Gate) SetVerifier(v Verifier) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifier = v
}
