package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Status is the lifecycle position of a state record.
type Status string

const (
	// StatusApplied means the provider call for the last snapshot succeeded.
	StatusApplied Status = "applied"
	// StatusPending means a provider call was in flight when the record was
	// last written; the work is retried on the next run.
	StatusPending Status = "pending"
	// StatusFailed means the last provider call errored; retried next run.
	StatusFailed Status = "failed"
)

// Record is the persisted snapshot of one applied resource.
type Record struct {
	Kind       string         `json:"kind"`
	Name       string         `json:"name"`
	ProviderID string         `json:"providerId,omitempty"`
	Attrs      map[string]any `json:"attrs"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	// Dependencies holds the keys this resource depended on when applied,
	// in canonical form. Deletion ordering is derived from them after the
	// declaration is gone.
	Dependencies []string  `json:"dependencies,omitempty"`
	Hash         string    `json:"hash,omitempty"`
	Status       Status    `json:"status"`
	AppliedAt    time.Time `json:"appliedAt"`
}

// Key returns the record's identity.
func (r *Record) Key() Key {
	return Key{Kind: r.Kind, Name: r.Name}
}

// HashAttrs returns the SHA-256 of the canonical JSON encoding of attrs.
// encoding/json sorts map keys, so equal maps hash equal regardless of
// insertion order.
func HashAttrs(attrs map[string]any) string {
	b, err := json.Marshal(attrs)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
