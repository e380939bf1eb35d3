package signal

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is an in-memory implementation of Store for tests and local development.
type InMemoryStore struct {
	mu           sync.RWMutex
	profiles     map[string]Profile
	interactions []InteractionEvent
	embeddings   map[string]map[EmbeddingKind]Embedding // userID -> kind -> embedding
	privacy      map[string]PrivacySettings
	blocks       map[string]Set                     // blocker -> blocked
	follows      map[string]map[string]FollowStatus // follower -> followee -> status
	checkIns     map[string]map[string]CheckIn      // eventID -> userID -> check-in
	bookmarks    map[string]map[string]Set          // eventID -> userID -> session IDs
	meetings     map[string]Set                     // requester -> pending recipients
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		profiles:   make(map[string]Profile),
		embeddings: make(map[string]map[EmbeddingKind]Embedding),
		privacy:    make(map[string]PrivacySettings),
		blocks:     make(map[string]Set),
		follows:    make(map[string]map[string]FollowStatus),
		checkIns:   make(map[string]map[string]CheckIn),
		bookmarks:  make(map[string]map[string]Set),
		meetings:   make(map[string]Set),
	}
}

// AddProfile stores or replaces a profile.
func (s *InMemoryStore) AddProfile(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = copyProfile(p)
}

// AddInteraction appends an event to the interaction log.
func (s *InMemoryStore) AddInteraction(e InteractionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions = append(s.interactions, e)
}

// SetEmbedding stores or overwrites the embedding for (UserID, Kind).
func (s *InMemoryStore) SetEmbedding(e Embedding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKind, ok := s.embeddings[e.UserID]
	if !ok {
		byKind = make(map[EmbeddingKind]Embedding)
		s.embeddings[e.UserID] = byKind
	}
	vec := make([]float32, len(e.Vector))
	copy(vec, e.Vector)
	e.Vector = vec
	byKind[e.Kind] = e
}

// SetPrivacySettings stores or replaces a user's privacy settings.
func (s *InMemoryStore) SetPrivacySettings(p PrivacySettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.HiddenFrom = append([]string(nil), p.HiddenFrom...)
	s.privacy[p.UserID] = p
}

// Block records that blockerID blocked blockedID.
func (s *InMemoryStore) Block(blockerID, blockedID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocks[blockerID] == nil {
		s.blocks[blockerID] = make(Set)
	}
	s.blocks[blockerID][blockedID] = struct{}{}
}

// Follow records a follow edge with the given status.
func (s *InMemoryStore) Follow(followerID, followeeID string, status FollowStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.follows[followerID] == nil {
		s.follows[followerID] = make(map[string]FollowStatus)
	}
	s.follows[followerID][followeeID] = status
}

// CheckIn records a user's check-in to an event.
func (s *InMemoryStore) CheckIn(c CheckIn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkIns[c.EventID] == nil {
		s.checkIns[c.EventID] = make(map[string]CheckIn)
	}
	s.checkIns[c.EventID][c.UserID] = c
}

// Bookmark records that userID bookmarked sessionID of eventID.
func (s *InMemoryStore) Bookmark(eventID, userID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bookmarks[eventID] == nil {
		s.bookmarks[eventID] = make(map[string]Set)
	}
	if s.bookmarks[eventID][userID] == nil {
		s.bookmarks[eventID][userID] = make(Set)
	}
	s.bookmarks[eventID][userID][sessionID] = struct{}{}
}

// RequestMeeting records a pending meeting request from fromID to toID.
func (s *InMemoryStore) RequestMeeting(fromID, toID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meetings[fromID] == nil {
		s.meetings[fromID] = make(Set)
	}
	s.meetings[fromID][toID] = struct{}{}
}

// GetProfile returns the profile for userID or ErrNotFound.
func (s *InMemoryStore) GetProfile(_ context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyProfile(p)
	return &cp, nil
}

// ListCandidatePool returns all profiles except userID, ordered by ID.
// With an eventID only checked-in users are returned.
func (s *InMemoryStore) ListCandidatePool(_ context.Context, userID, eventID string) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool := make([]Profile, 0, len(s.profiles))
	for id, p := range s.profiles {
		if id == userID {
			continue
		}
		if eventID != "" {
			if _, ok := s.checkIns[eventID][id]; !ok {
				continue
			}
		}
		pool = append(pool, copyProfile(p))
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
	return pool, nil
}

// ListInteractions returns events from actorID to targetID at or after since.
func (s *InMemoryStore) ListInteractions(_ context.Context, actorID, targetID string, since time.Time) ([]InteractionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []InteractionEvent
	for _, e := range s.interactions {
		if e.ActorID == actorID && e.TargetID == targetID && !e.OccurredAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// HasPendingMeetingRequest reports whether fromID has a pending request to toID.
func (s *InMemoryStore) HasPendingMeetingRequest(_ context.Context, fromID, toID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meetings[fromID].Has(toID), nil
}

// GetEmbeddings returns a copy of all embeddings for userID.
func (s *InMemoryStore) GetEmbeddings(_ context.Context, userID string) (map[EmbeddingKind]Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[EmbeddingKind]Embedding, len(s.embeddings[userID]))
	for kind, e := range s.embeddings[userID] {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		e.Vector = vec
		out[kind] = e
	}
	return out, nil
}

// GetPrivacySettings returns stored settings for the given users.
func (s *InMemoryStore) GetPrivacySettings(_ context.Context, userIDs []string) (map[string]PrivacySettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]PrivacySettings, len(userIDs))
	for _, id := range userIDs {
		if p, ok := s.privacy[id]; ok {
			p.HiddenFrom = append([]string(nil), p.HiddenFrom...)
			out[id] = p
		}
	}
	return out, nil
}

// GetBlockedUsers returns users blocked by or blocking userID.
func (s *InMemoryStore) GetBlockedUsers(_ context.Context, userID string) (Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Set)
	for id := range s.blocks[userID] {
		out[id] = struct{}{}
	}
	for blocker, blocked := range s.blocks {
		if blocked.Has(userID) {
			out[blocker] = struct{}{}
		}
	}
	return out, nil
}

// GetSkippedSince returns users userID skipped at or after since.
func (s *InMemoryStore) GetSkippedSince(_ context.Context, userID string, since time.Time) (Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Set)
	for _, e := range s.interactions {
		if e.ActorID == userID && e.Type == EventSkipped && !e.OccurredAt.Before(since) {
			out[e.TargetID] = struct{}{}
		}
	}
	return out, nil
}

// GetFollowStatus returns the status of the followerID -> followeeID edge.
func (s *InMemoryStore) GetFollowStatus(_ context.Context, followerID, followeeID string) (FollowStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.follows[followerID][followeeID], nil
}

// ListFollowing returns the users userID follows.
func (s *InMemoryStore) ListFollowing(_ context.Context, userID string) (map[string]FollowStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]FollowStatus, len(s.follows[userID]))
	for id, st := range s.follows[userID] {
		out[id] = st
	}
	return out, nil
}

// ListFollowers returns the users following userID.
func (s *InMemoryStore) ListFollowers(_ context.Context, userID string) (map[string]FollowStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]FollowStatus)
	for follower, edges := range s.follows {
		if st, ok := edges[userID]; ok {
			out[follower] = st
		}
	}
	return out, nil
}

// GetCheckIn returns userID's check-in at eventID, or nil.
func (s *InMemoryStore) GetCheckIn(_ context.Context, userID, eventID string) (*CheckIn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.checkIns[eventID][userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// ListCheckIns returns all check-ins for eventID.
func (s *InMemoryStore) ListCheckIns(_ context.Context, eventID string) (map[string]CheckIn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]CheckIn, len(s.checkIns[eventID]))
	for id, c := range s.checkIns[eventID] {
		out[id] = c
	}
	return out, nil
}

// CountSharedBookmarks counts sessions of eventID bookmarked by both users.
func (s *InMemoryStore) CountSharedBookmarks(_ context.Context, userID, candidateID, eventID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mine := s.bookmarks[eventID][userID]
	theirs := s.bookmarks[eventID][candidateID]
	count := 0
	for session := range mine {
		if theirs.Has(session) {
			count++
		}
	}
	return count, nil
}

// copyProfile returns a deep copy so callers cannot mutate stored state.
func copyProfile(p Profile) Profile {
	p.Skills = append([]string(nil), p.Skills...)
	p.Interests = append([]string(nil), p.Interests...)
	p.LookingFor = append([]string(nil), p.LookingFor...)
	return p
}
