package domain

import (
	"time"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
)

// ProtocolResult reports how listing one protocol went during a refresh.
type ProtocolResult struct {
	Protocol certDomain.Protocol
	Count    int   // Certificates listed, zero when Err is set
	Err      error // *EngineError, nil on success
}

// RefreshResult is delivered to waiters and subscribers when a refresh pass
// has published its snapshot. Err joins the per-protocol engine errors and the
// group loading error; the snapshot is published even when Err is set.
type RefreshResult struct {
	Generation uint64
	Protocols  []ProtocolResult
	GroupCount int
	GroupsErr  error
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether every protocol and the groups loaded without error.
func (r RefreshResult) Succeeded() bool {
	return r.Err == nil
}

// Duration returns how long the pass took.
func (r RefreshResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
