package signal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/onnwee/matchcore/internal/tracing"
)

// PostgresStore implements Store on top of the application's PostgreSQL schema.
// All queries are read-only; the write side belongs to the application layer.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const profileColumns = `id, skills, interests, looking_for, COALESCE(organization, ''),
	is_online, is_verified, is_premium, is_private, created_at, COALESCE(updated_at, created_at)`

func scanProfile(row interface{ Scan(...any) error }) (Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID,
		pq.Array(&p.Skills),
		pq.Array(&p.Interests),
		pq.Array(&p.LookingFor),
		&p.Organization,
		&p.Online,
		&p.Verified,
		&p.Premium,
		&p.IsPrivate,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

// GetProfile returns the profile for userID or ErrNotFound.
func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (_ *Profile, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "profiles", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1 AND deleted_at IS NULL`
	p, err := scanProfile(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

// ListCandidatePool returns all active profiles except userID ordered by id.
// With an eventID the pool is joined against the event's check-ins.
func (s *PostgresStore) ListCandidatePool(ctx context.Context, userID, eventID string) (_ []Profile, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "profiles", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var rows *sql.Rows
	if eventID == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+profileColumns+`
			FROM profiles
			WHERE id <> $1 AND deleted_at IS NULL
			ORDER BY id`, userID)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+profileColumns+`
			FROM profiles p
			WHERE p.id <> $1 AND p.deleted_at IS NULL
			  AND EXISTS (
				SELECT 1 FROM event_check_ins c
				WHERE c.user_id = p.id AND c.event_id = $2
			  )
			ORDER BY p.id`, userID, eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate pool: %w", err)
	}
	defer rows.Close()

	var pool []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		pool = append(pool, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidate pool: %w", err)
	}
	return pool, nil
}

// ListInteractions returns events from actorID to targetID at or after since.
func (s *PostgresStore) ListInteractions(ctx context.Context, actorID, targetID string, since time.Time) (_ []InteractionEvent, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "interaction_events", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT actor_id, target_id, event_type, occurred_at, metadata
		FROM interaction_events
		WHERE actor_id = $1 AND target_id = $2 AND occurred_at >= $3
		ORDER BY occurred_at`, actorID, targetID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	defer rows.Close()

	var events []InteractionEvent
	for rows.Next() {
		var (
			e        InteractionEvent
			eventTyp string
			metadata []byte
		)
		if err := rows.Scan(&e.ActorID, &e.TargetID, &eventTyp, &e.OccurredAt, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		e.Type = EventType(eventTyp)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode interaction metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interactions: %w", err)
	}
	return events, nil
}

// HasPendingMeetingRequest reports whether fromID has a pending meeting request to toID.
func (s *PostgresStore) HasPendingMeetingRequest(ctx context.Context, fromID, toID string) (_ bool, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "meeting_requests", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var exists bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM meeting_requests
			WHERE requester_id = $1 AND recipient_id = $2 AND status = 'pending'
		)`, fromID, toID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check meeting requests: %w", err)
	}
	return exists, nil
}

// GetEmbeddings returns all embeddings stored for userID.
func (s *PostgresStore) GetEmbeddings(ctx context.Context, userID string) (_ map[EmbeddingKind]Embedding, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "user_embeddings", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, embedding, content_hash, updated_at
		FROM user_embeddings
		WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[EmbeddingKind]Embedding)
	for rows.Next() {
		var (
			kind string
			vec  pgvector.Vector
			e    = Embedding{UserID: userID}
		)
		if err := rows.Scan(&kind, &vec, &e.ContentHash, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		e.Kind = EmbeddingKind(kind)
		e.Vector = vec.Slice()
		out[e.Kind] = e
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating embeddings: %w", err)
	}
	return out, nil
}

// GetPrivacySettings returns settings rows for the given users.
func (s *PostgresStore) GetPrivacySettings(ctx context.Context, userIDs []string) (_ map[string]PrivacySettings, err error) {
	out := make(map[string]PrivacySettings, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "privacy_settings", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, ai_matching_enabled, show_in_recommendations,
		       allow_bio_scoring, allow_skills_scoring, allow_interests_scoring,
		       allow_activity_scoring, require_mutual_follow, hidden_from
		FROM privacy_settings
		WHERE user_id = ANY($1)`, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to get privacy settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p PrivacySettings
		if err := rows.Scan(
			&p.UserID,
			&p.AIMatchingEnabled,
			&p.ShowInRecommendations,
			&p.AllowBioScoring,
			&p.AllowSkillsScoring,
			&p.AllowInterestsScoring,
			&p.AllowActivityScoring,
			&p.RequireMutualFollow,
			pq.Array(&p.HiddenFrom),
		); err != nil {
			return nil, fmt.Errorf("failed to scan privacy settings: %w", err)
		}
		out[p.UserID] = p
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating privacy settings: %w", err)
	}
	return out, nil
}

// GetBlockedUsers returns users blocked by or blocking userID.
func (s *PostgresStore) GetBlockedUsers(ctx context.Context, userID string) (_ Set, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "user_blocks", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	return s.querySet(ctx, `
		SELECT blocked_id FROM user_blocks WHERE blocker_id = $1
		UNION
		SELECT blocker_id FROM user_blocks WHERE blocked_id = $1`, userID)
}

// GetSkippedSince returns users userID skipped at or after since.
func (s *PostgresStore) GetSkippedSince(ctx context.Context, userID string, since time.Time) (_ Set, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "interaction_events", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	return s.querySet(ctx, `
		SELECT DISTINCT target_id FROM interaction_events
		WHERE actor_id = $1 AND event_type = $2 AND occurred_at >= $3`,
		userID, string(EventSkipped), since)
}

// GetFollowStatus returns the status of the followerID -> followeeID edge.
func (s *PostgresStore) GetFollowStatus(ctx context.Context, followerID, followeeID string) (_ FollowStatus, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "follows", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var status string
	err = s.db.QueryRowContext(ctx, `
		SELECT status FROM follows WHERE follower_id = $1 AND followee_id = $2`,
		followerID, followeeID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return FollowNone, nil
	}
	if err != nil {
		return FollowNone, fmt.Errorf("failed to get follow status: %w", err)
	}
	return FollowStatus(status), nil
}

// ListFollowing returns the users userID follows.
func (s *PostgresStore) ListFollowing(ctx context.Context, userID string) (_ map[string]FollowStatus, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "follows", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	return s.queryEdges(ctx, `SELECT followee_id, status FROM follows WHERE follower_id = $1`, userID)
}

// ListFollowers returns the users following userID.
func (s *PostgresStore) ListFollowers(ctx context.Context, userID string) (_ map[string]FollowStatus, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "follows", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	return s.queryEdges(ctx, `SELECT follower_id, status FROM follows WHERE followee_id = $1`, userID)
}

// GetCheckIn returns userID's latest check-in at eventID, or nil.
func (s *PostgresStore) GetCheckIn(ctx context.Context, userID, eventID string) (_ *CheckIn, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "event_check_ins", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	c := CheckIn{UserID: userID, EventID: eventID}
	err = s.db.QueryRowContext(ctx, `
		SELECT checked_in_at FROM event_check_ins
		WHERE user_id = $1 AND event_id = $2
		ORDER BY checked_in_at DESC
		LIMIT 1`, userID, eventID).Scan(&c.CheckedInAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get check-in: %w", err)
	}
	return &c, nil
}

// ListCheckIns returns the latest check-in per user for eventID.
func (s *PostgresStore) ListCheckIns(ctx context.Context, eventID string) (_ map[string]CheckIn, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "event_check_ins", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, MAX(checked_in_at)
		FROM event_check_ins
		WHERE event_id = $1
		GROUP BY user_id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}
	defer rows.Close()

	out := make(map[string]CheckIn)
	for rows.Next() {
		c := CheckIn{EventID: eventID}
		if err := rows.Scan(&c.UserID, &c.CheckedInAt); err != nil {
			return nil, fmt.Errorf("failed to scan check-in: %w", err)
		}
		out[c.UserID] = c
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating check-ins: %w", err)
	}
	return out, nil
}

// CountSharedBookmarks counts sessions of eventID bookmarked by both users.
func (s *PostgresStore) CountSharedBookmarks(ctx context.Context, userID, candidateID, eventID string) (_ int, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "session_bookmarks", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var count int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM session_bookmarks a
		JOIN session_bookmarks b ON a.session_id = b.session_id
		WHERE a.user_id = $1 AND b.user_id = $2 AND a.event_id = $3 AND b.event_id = $3`,
		userID, candidateID, eventID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count shared bookmarks: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) querySet(ctx context.Context, query string, args ...any) (Set, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query id set: %w", err)
	}
	defer rows.Close()

	out := make(Set)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating id set: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) queryEdges(ctx context.Context, query string, userID string) (map[string]FollowStatus, error) {
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query follows: %w", err)
	}
	defer rows.Close()

	out := make(map[string]FollowStatus)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("failed to scan follow: %w", err)
		}
		out[id] = FollowStatus(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating follows: %w", err)
	}
	return out, nil
}
