// Package service provides the in-memory certificate store shared by the
// refresh controller, the resolver and the HTTP handlers.
package service

import (
	"sync"
	"sync/atomic"
	"time"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
	"github.com/allisson/keycache/internal/keycache/domain"
)

// Store holds the current certificate snapshot.
//
// Readers load the current snapshot without locking and keep a consistent view
// for as long as they hold it. Writers serialize on mu, derive a new snapshot
// and publish it with a single atomic swap. Queries run on the snapshot
// returned by Snapshot.
type Store struct {
	mu        sync.Mutex
	current   atomic.Pointer[domain.Snapshot]
	groupsRev uint64
	clock     func() time.Time
}

// NewStore creates an empty, unpopulated store.
func NewStore() *Store {
	s := &Store{clock: time.Now}
	s.current.Store(domain.EmptySnapshot())
	return s
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *domain.Snapshot {
	return s.current.Load()
}

// Initialized reports whether a full load has completed.
func (s *Store) Initialized() bool {
	return s.Snapshot().Populated()
}

// Generation returns the generation of the current snapshot.
func (s *Store) Generation() uint64 {
	return s.Snapshot().Generation()
}

// GroupsRevision returns a counter advanced by every SetGroups call.
// Read it before loading groups and hand it to ReplaceAll.
func (s *Store) GroupsRevision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupsRev
}

// ReplaceAll publishes a populated snapshot holding exactly certs. It is the
// only way out of the empty state, also for an empty list.
//
// groups replace the key groups unless SetGroups ran after groupsRev was read;
// the groups published by SetGroups are newer and are kept in that case.
func (s *Store) ReplaceAll(
	certs []*certDomain.Certificate,
	groups []*groupsDomain.KeyGroup,
	groupsRev uint64,
) *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.Snapshot()
	if groupsRev != s.groupsRev {
		groups = prev.Groups()
	}
	next := domain.NewSnapshot(prev.Generation()+1, certs, groups, s.clock())
	s.current.Store(next)
	return next
}

// SetGroups publishes a snapshot with the same certificates and new key groups.
// The populated state is carried over unchanged.
func (s *Store) SetGroups(groups []*groupsDomain.KeyGroup) *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.groupsRev++
	prev := s.Snapshot()
	next := prev.WithGroups(prev.Generation()+1, s.clock(), groups)
	s.current.Store(next)
	return next
}
