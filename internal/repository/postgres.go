package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/codera/memefeed/pkg/models"
)

// Querier is the subset of pgxpool.Pool the repositories use; pgxmock
// satisfies it in tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PostgresInteractionRepository reads interaction events from the
// user_interactions table.
type PostgresInteractionRepository struct {
	db     Querier
	logger *logrus.Logger
}

func NewPostgresInteractionRepository(db Querier, logger *logrus.Logger) *PostgresInteractionRepository {
	return &PostgresInteractionRepository{db: db, logger: logger}
}

func (r *PostgresInteractionRepository) ListForUsers(
	ctx context.Context,
	userIDs []uuid.UUID,
	itemIDs []uuid.UUID,
	interactionType models.InteractionType,
) ([]models.InteractionEvent, error) {
	query := `
		SELECT user_id, item_id, interaction_type, created_at
		FROM user_interactions
		WHERE interaction_type = $1`
	args := []interface{}{string(interactionType)}
	argIndex := 2

	if len(userIDs) > 0 {
		query += fmt.Sprintf(" AND user_id = ANY($%d)", argIndex)
		args = append(args, userIDs)
		argIndex++
	}
	if len(itemIDs) > 0 {
		query += fmt.Sprintf(" AND item_id = ANY($%d)", argIndex)
		args = append(args, itemIDs)
		argIndex++
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("interaction query failed: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (r *PostgresInteractionRepository) ListForUser(
	ctx context.Context,
	userID uuid.UUID,
	types []models.InteractionType,
) ([]models.InteractionEvent, error) {
	query := `
		SELECT user_id, item_id, interaction_type, created_at
		FROM user_interactions
		WHERE user_id = $1`
	args := []interface{}{userID}

	if len(types) > 0 {
		typeStrings := make([]string, len(types))
		for i, t := range types {
			typeStrings[i] = string(t)
		}
		query += " AND interaction_type = ANY($2)"
		args = append(args, typeStrings)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("interaction query failed: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (r *PostgresInteractionRepository) CountSince(
	ctx context.Context,
	userID uuid.UUID,
	since time.Time,
) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM user_interactions
		WHERE user_id = $1 AND created_at >= $2`

	var count int
	if err := r.db.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("interaction count failed: %w", err)
	}
	return count, nil
}

func scanEvents(rows pgx.Rows) ([]models.InteractionEvent, error) {
	var events []models.InteractionEvent
	for rows.Next() {
		var ev models.InteractionEvent
		var interactionType string
		if err := rows.Scan(&ev.UserID, &ev.ItemID, &interactionType, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction row: %w", err)
		}
		ev.Type = models.InteractionType(interactionType)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// PostgresItemRepository reads publicly visible memes.
type PostgresItemRepository struct {
	db     Querier
	logger *logrus.Logger
}

func NewPostgresItemRepository(db Querier, logger *logrus.Logger) *PostgresItemRepository {
	return &PostgresItemRepository{db: db, logger: logger}
}

func (r *PostgresItemRepository) List(ctx context.Context, filter models.MemeFilter) ([]models.Meme, error) {
	query := `
		SELECT id, meme_type, title, tags, author_id, hot_score, visibility, created_at
		FROM memes
		WHERE visibility = 'public'`
	var args []interface{}
	argIndex := 1

	if len(filter.IDs) > 0 {
		query += fmt.Sprintf(" AND id = ANY($%d)", argIndex)
		args = append(args, filter.IDs)
		argIndex++
	}
	if len(filter.Tags) > 0 {
		query += fmt.Sprintf(" AND tags && $%d", argIndex)
		args = append(args, filter.Tags)
		argIndex++
	}
	if len(filter.Types) > 0 {
		query += fmt.Sprintf(" AND meme_type = ANY($%d)", argIndex)
		args = append(args, filter.Types)
		argIndex++
	}
	if len(filter.ExcludeIDs) > 0 {
		query += fmt.Sprintf(" AND id != ALL($%d)", argIndex)
		args = append(args, filter.ExcludeIDs)
		argIndex++
	}
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("meme query failed: %w", err)
	}
	defer rows.Close()

	return scanMemes(rows)
}

func (r *PostgresItemRepository) ListPublicSample(ctx context.Context, limit int) ([]models.Meme, error) {
	query := `
		SELECT id, meme_type, title, tags, author_id, hot_score, visibility, created_at
		FROM memes
		WHERE visibility = 'public'
		ORDER BY hot_score DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("meme sample query failed: %w", err)
	}
	defer rows.Close()

	return scanMemes(rows)
}

func scanMemes(rows pgx.Rows) ([]models.Meme, error) {
	var memes []models.Meme
	for rows.Next() {
		var m models.Meme
		if err := rows.Scan(&m.ID, &m.Type, &m.Title, &m.Tags, &m.AuthorID,
			&m.HotScore, &m.Visibility, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan meme row: %w", err)
		}
		memes = append(memes, m)
	}
	return memes, rows.Err()
}

// PostgresUserRepository samples recently active users for matrix
// construction and cache warming.
type PostgresUserRepository struct {
	db     Querier
	logger *logrus.Logger
}

func NewPostgresUserRepository(db Querier, logger *logrus.Logger) *PostgresUserRepository {
	return &PostgresUserRepository{db: db, logger: logger}
}

func (r *PostgresUserRepository) ListActiveSample(ctx context.Context, limit int) ([]models.User, error) {
	query := `
		SELECT id, status, last_active_at
		FROM users
		WHERE status = 'active'
		ORDER BY last_active_at DESC NULLS LAST
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("user sample query failed: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Status, &u.LastActiveAt); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
