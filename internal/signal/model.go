// Package signal provides read-only access to the data that feeds candidate
// scoring: profiles, interaction events, embeddings, privacy settings, block and
// skip lists, the follow graph, event check-ins and session bookmarks.
package signal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Context identifies the product surface requesting candidates.
type Context string

// Supported ranking contexts.
const (
	ContextPulse Context = "pulse" // general discovery feed
	ContextZone  Context = "zone"  // in-person event networking
)

// ErrInvalidContext is returned when a context string is not pulse or zone.
var ErrInvalidContext = errors.New("invalid context: must be pulse or zone")

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ParseContext converts a raw string into a Context.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseContext(s string) (Context, error) {
	switch Context(strings.ToLower(strings.TrimSpace(s))) {
	case ContextPulse:
		return ContextPulse, nil
	case ContextZone:
		return ContextZone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidContext, s)
	}
}

// EventType enumerates the interaction events recorded in the append-only log.
type EventType string

// Interaction event types.
const (
	EventContactExchanged EventType = "contact_exchanged"
	EventMeetingAccepted  EventType = "meeting_accepted"
	EventMeetingRequested EventType = "meeting_requested"
	EventMessageReplied   EventType = "message_replied"
	EventMessageSent      EventType = "message_sent"
	EventFollowed         EventType = "followed"
	EventSaved            EventType = "saved"
	EventProfileExpanded  EventType = "profile_expanded"
	EventProfileViewed    EventType = "profile_viewed"
	EventScrolledPast     EventType = "scrolled_past"
	EventSkipped          EventType = "skipped"
	EventUnfollowed       EventType = "unfollowed"
)

// Profile is an immutable snapshot of a user's attributes for one ranking call.
type Profile struct {
	ID           string    `json:"id"`
	Skills       []string  `json:"skills,omitempty"`
	Interests    []string  `json:"interests,omitempty"`
	LookingFor   []string  `json:"looking_for,omitempty"`
	Organization string    `json:"organization,omitempty"`
	Online       bool      `json:"online"`
	Verified     bool      `json:"verified"`
	Premium      bool      `json:"premium"`
	IsPrivate    bool      `json:"is_private"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// InteractionEvent is one entry of the append-only interaction log.
type InteractionEvent struct {
	ActorID    string            `json:"actor_id"`
	TargetID   string            `json:"target_id"`
	Type       EventType         `json:"event_type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// EmbeddingKind identifies which source text an embedding was generated from.
type EmbeddingKind string

// Embedding kinds produced by the upstream embedding service.
const (
	EmbeddingBio       EmbeddingKind = "bio"
	EmbeddingSkills    EmbeddingKind = "skills"
	EmbeddingInterests EmbeddingKind = "interests"
	EmbeddingCombined  EmbeddingKind = "combined"
)

// Embedding is a fixed-dimension vector for one (user, kind) pair.
// ContentHash identifies the source text the vector was generated from.
type Embedding struct {
	UserID      string        `json:"user_id"`
	Kind        EmbeddingKind `json:"kind"`
	Vector      []float32     `json:"-"`
	ContentHash string        `json:"content_hash"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// PrivacySettings controls whether and how a user may be recommended.
// A user without a settings record is treated as DefaultPrivacySettings.
type PrivacySettings struct {
	UserID                string   `json:"user_id"`
	AIMatchingEnabled     bool     `json:"ai_matching_enabled"`
	ShowInRecommendations bool     `json:"show_in_recommendations"`
	AllowBioScoring       bool     `json:"allow_bio_scoring"`
	AllowSkillsScoring    bool     `json:"allow_skills_scoring"`
	AllowInterestsScoring bool     `json:"allow_interests_scoring"`
	AllowActivityScoring  bool     `json:"allow_activity_scoring"`
	RequireMutualFollow   bool     `json:"require_mutual_follow"`
	HiddenFrom            []string `json:"hidden_from,omitempty"`
}

// DefaultPrivacySettings returns the permissive settings applied when a user
// has no settings record.
func DefaultPrivacySettings(userID string) PrivacySettings {
	return PrivacySettings{
		UserID:                userID,
		AIMatchingEnabled:     true,
		ShowInRecommendations: true,
		AllowBioScoring:       true,
		AllowSkillsScoring:    true,
		AllowInterestsScoring: true,
		AllowActivityScoring:  true,
	}
}

// HidesFrom reports whether userID is on the explicit hide-list.
func (p PrivacySettings) HidesFrom(userID string) bool {
	for _, id := range p.HiddenFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// FollowStatus is the state of a follow edge.
type FollowStatus string

// Follow edge states. FollowNone means no edge exists.
const (
	FollowNone     FollowStatus = ""
	FollowPending  FollowStatus = "pending"
	FollowAccepted FollowStatus = "accepted"
)

// CheckIn records a user's presence at an in-person event.
type CheckIn struct {
	UserID      string    `json:"user_id"`
	EventID     string    `json:"event_id"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// Set is a string membership set used for block lists, skip lists and similar lookups.
type Set map[string]struct{}

// NewSet builds a Set from the given values.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Has reports whether v is in the set. A nil set contains nothing.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Intersect returns the values of a that also appear in b, preserving a's order
// and dropping duplicates. Comparison is case-insensitive on trimmed values.
func Intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	other := make(Set, len(b))
	for _, v := range b {
		other[normalizeTag(v)] = struct{}{}
	}
	seen := make(Set, len(a))
	var out []string
	for _, v := range a {
		key := normalizeTag(v)
		if key == "" || seen.Has(key) || !other.Has(key) {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func normalizeTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
