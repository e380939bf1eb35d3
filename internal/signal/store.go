package signal

import (
	"context"
	"time"
)

// ProfileReader reads profile snapshots and the raw candidate pool.
type ProfileReader interface {
	// GetProfile returns the profile for userID or ErrNotFound.
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	// ListCandidatePool returns every other user that could be ranked for userID.
	// When eventID is non-empty the pool is restricted to that event's attendees.
	ListCandidatePool(ctx context.Context, userID, eventID string) ([]Profile, error)
}

// InteractionReader reads the append-only interaction log.
type InteractionReader interface {
	// ListInteractions returns events from actorID to targetID that occurred at or after since.
	ListInteractions(ctx context.Context, actorID, targetID string, since time.Time) ([]InteractionEvent, error)
	// HasPendingMeetingRequest reports whether fromID has an unanswered meeting request to toID.
	HasPendingMeetingRequest(ctx context.Context, fromID, toID string) (bool, error)
}

// EmbeddingReader reads embedding vectors written by the embedding service.
type EmbeddingReader interface {
	// GetEmbeddings returns all embeddings stored for userID keyed by kind.
	// A user with no embeddings yields an empty map, not an error.
	GetEmbeddings(ctx context.Context, userID string) (map[EmbeddingKind]Embedding, error)
}

// PrivacyReader reads privacy settings and exclusion lists.
type PrivacyReader interface {
	// GetPrivacySettings returns settings for the given users. Users without a
	// record are absent from the result.
	GetPrivacySettings(ctx context.Context, userIDs []string) (map[string]PrivacySettings, error)
	// GetBlockedUsers returns users that userID blocked or that blocked userID.
	GetBlockedUsers(ctx context.Context, userID string) (Set, error)
	// GetSkippedSince returns users that userID skipped at or after since.
	GetSkippedSince(ctx context.Context, userID string, since time.Time) (Set, error)
}

// GraphReader reads the follow graph.
type GraphReader interface {
	// GetFollowStatus returns the status of the followerID -> followeeID edge.
	GetFollowStatus(ctx context.Context, followerID, followeeID string) (FollowStatus, error)
	// ListFollowing returns the users userID follows with each edge's status.
	ListFollowing(ctx context.Context, userID string) (map[string]FollowStatus, error)
	// ListFollowers returns the users following userID with each edge's status.
	ListFollowers(ctx context.Context, userID string) (map[string]FollowStatus, error)
}

// EventReader reads event check-ins and session bookmarks.
type EventReader interface {
	// GetCheckIn returns userID's check-in at eventID, or nil when absent.
	GetCheckIn(ctx context.Context, userID, eventID string) (*CheckIn, error)
	// ListCheckIns returns all check-ins for eventID keyed by user.
	ListCheckIns(ctx context.Context, eventID string) (map[string]CheckIn, error)
	// CountSharedBookmarks counts sessions of eventID bookmarked by both users.
	CountSharedBookmarks(ctx context.Context, userID, candidateID, eventID string) (int, error)
}

// Store is the full read-only capability consumed by the scoring core.
type Store interface {
	ProfileReader
	InteractionReader
	EmbeddingReader
	PrivacyReader
	GraphReader
	EventReader
}
