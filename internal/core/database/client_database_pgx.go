package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/saved-ai/engine/internal/config"
	"github.com/saved-ai/engine/internal/core"
	"github.com/saved-ai/engine/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// DB exposes the underlying pool so the vector store can share it.
func (c *DatabaseClient) DB() *sql.DB {
	return c.db
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) GetOrCreateUser(ctx context.Context, externalID int64, username, firstName string, invitedBy *int64) (*models.User, error) {
	const q = `
		INSERT INTO users (external_id, username, first_name, invited_by_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (external_id) DO UPDATE
			SET username = EXCLUDED.username,
			    first_name = EXCLUDED.first_name,
			    updated_at = now()
		RETURNING id, external_id, username, first_name, shard_id,
		          storage_volume, subscription_end, invited_by_id, created_at, updated_at
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, externalID, username, firstName, invitedBy).Scan(
		&u.ID, &u.ExternalID, &u.Username, &u.FirstName, &u.ShardID,
		&u.StorageVolume, &u.SubscriptionEnd, &u.InvitedByID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *DatabaseClient) GetUserByExternalID(ctx context.Context, externalID int64) (*models.User, error) {
	return c.getUser(ctx, "external_id", externalID)
}

func (c *DatabaseClient) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return c.getUser(ctx, "id", id)
}

func (c *DatabaseClient) getUser(ctx context.Context, col string, key int64) (*models.User, error) {
	q := fmt.Sprintf(`
		SELECT id, external_id, username, first_name, shard_id,
		       storage_volume, subscription_end, invited_by_id, created_at, updated_at
		FROM users WHERE %s = $1
	`, col)
	var u models.User
	err := c.db.QueryRowContext(ctx, q, key).Scan(
		&u.ID, &u.ExternalID, &u.Username, &u.FirstName, &u.ShardID,
		&u.StorageVolume, &u.SubscriptionEnd, &u.InvitedByID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *DatabaseClient) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AssignShard writes shard only when the user has none yet, then reads
// back whatever is persisted. Two racing writers both end up with the
// winner's value.
func (c *DatabaseClient) AssignShard(ctx context.Context, userID int64, shard string) (string, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET shard_id = $2, updated_at = now()
		WHERE id = $1 AND shard_id IS NULL
	`, userID, shard); err != nil {
		_ = tx.Rollback()
		return "", err
	}

	var persisted sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT shard_id FROM users WHERE id = $1`, userID).Scan(&persisted); err != nil {
		_ = tx.Rollback()
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	if !persisted.Valid {
		return "", errors.New("shard assignment did not persist")
	}
	return persisted.String, nil
}

func (c *DatabaseClient) AddStorageVolume(ctx context.Context, userID int64, delta float64) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE users SET storage_volume = storage_volume + $2, updated_at = now()
		WHERE id = $1
	`, userID, delta)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("user not found: %d", userID)
	}
	return nil
}

func (c *DatabaseClient) SetSubscriptionEnd(ctx context.Context, userID int64, end time.Time) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE users SET subscription_end = $2, updated_at = now()
		WHERE id = $1
	`, userID, end)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("user not found: %d", userID)
	}
	return nil
}

// Notes

func (c *DatabaseClient) CreateNote(ctx context.Context, note *models.Note) error {
	if note == nil {
		return errors.New("nil note")
	}
	const q = `
		INSERT INTO notes (user_id, text, message_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	return c.db.QueryRowContext(ctx, q, note.UserID, note.Text, note.MessageID).
		Scan(&note.ID, &note.CreatedAt)
}

func (c *DatabaseClient) ListPendingNotes(ctx context.Context, userID int64) ([]models.Note, error) {
	const q = `
		SELECT id, user_id, text, message_id, ingested, created_at
		FROM notes
		WHERE user_id = $1 AND NOT ingested
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.UserID, &n.Text, &n.MessageID, &n.Ingested, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountNotes(ctx context.Context, userID int64) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM notes WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (c *DatabaseClient) MarkNotesIngested(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `UPDATE notes SET ingested = TRUE WHERE id = $1`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Actions

func (c *DatabaseClient) RecordAction(ctx context.Context, userID int64, messageID int64, text string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO user_actions (user_id, message_id, text)
		VALUES ($1, $2, $3)
	`, userID, messageID, text)
	return err
}

func (c *DatabaseClient) CountActionsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `
		SELECT count(*) FROM user_actions
		WHERE user_id = $1 AND created_at >= $2
	`, userID, since).Scan(&n)
	return n, err
}

var _ core.DbClient = (*DatabaseClient)(nil)
