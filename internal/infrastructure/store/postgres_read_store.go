package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/ewaste-exchange/internal/readmodel"
)

// PostgresReadStore implements ReadStoreInterface using PostgreSQL. Each
// collection has its own table: the document lives in a jsonb column and the
// columns the queries filter on are kept alongside it.
type PostgresReadStore struct {
	db *sql.DB
}

// NewPostgresReadStore creates a new PostgreSQL-based read store
func NewPostgresReadStore(db *sql.DB) *PostgresReadStore {
	return &PostgresReadStore{db: db}
}

var errUnknownCollection = errors.New("unknown read model collection")

func tableFor(collection string) (string, error) {
	switch collection {
	case readmodel.CollectionPosts:
		return "read_posts", nil
	case readmodel.CollectionRequests:
		return "read_requests", nil
	case readmodel.CollectionAccounts:
		return "read_accounts", nil
	case readmodel.CollectionSessions:
		return "read_sessions", nil
	}
	return "", fmt.Errorf("%w: %s", errUnknownCollection, collection)
}

// Set stores a read model
func (rs *PostgresReadStore) Set(ctx context.Context, collection, id string, data any) error {
	switch m := data.(type) {
	case *readmodel.PostReadModel:
		return rs.setPost(ctx, id, m)
	case *readmodel.RecyclerRequestReadModel:
		return rs.setRequest(ctx, id, m)
	case *readmodel.AccountReadModel:
		return rs.setAccount(ctx, id, m)
	case *readmodel.SessionReadModel:
		return rs.setSession(ctx, id, m)
	}
	return fmt.Errorf("%w: %s (%T)", errUnknownCollection, collection, data)
}

// Get retrieves a read model by id
func (rs *PostgresReadStore) Get(ctx context.Context, collection, id string) (any, bool, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, false, err
	}

	row := rs.db.QueryRowContext(ctx, rs.selectFor(collection, table)+" WHERE id = $1", id)
	model, err := rs.scan(collection, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s %s: %w", collection, id, err)
	}
	return model, true, nil
}

// GetAll retrieves all items in a collection
func (rs *PostgresReadStore) GetAll(ctx context.Context, collection string) ([]any, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}
	return rs.query(ctx, collection, rs.selectFor(collection, table)+" ORDER BY id")
}

// Delete removes a read model
func (rs *PostgresReadStore) Delete(ctx context.Context, collection, id string) error {
	table, err := tableFor(collection)
	if err != nil {
		return err
	}
	if _, err := rs.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", collection, id, err)
	}
	return nil
}

// GetAccountByEmail looks an account up through the unique email index.
func (rs *PostgresReadStore) GetAccountByEmail(ctx context.Context, email string) (*readmodel.AccountReadModel, bool, error) {
	row := rs.db.QueryRowContext(ctx,
		rs.selectFor(readmodel.CollectionAccounts, "read_accounts")+" WHERE email = $1", email)
	model, err := rs.scan(readmodel.CollectionAccounts, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get account by email: %w", err)
	}
	return model.(*readmodel.AccountReadModel), true, nil
}

// ListRequestsByRecycler returns a recycler's inbox, newest first.
func (rs *PostgresReadStore) ListRequestsByRecycler(ctx context.Context, recyclerID string) ([]*readmodel.RecyclerRequestReadModel, error) {
	items, err := rs.query(ctx, readmodel.CollectionRequests,
		rs.selectFor(readmodel.CollectionRequests, "read_requests")+" WHERE recycler_id = $1 ORDER BY sent_at DESC", recyclerID)
	if err != nil {
		return nil, err
	}
	out := make([]*readmodel.RecyclerRequestReadModel, 0, len(items))
	for _, item := range items {
		out = append(out, item.(*readmodel.RecyclerRequestReadModel))
	}
	return out, nil
}

// DeleteExpiredSessions removes sessions whose refresh token expired.
func (rs *PostgresReadStore) DeleteExpiredSessions(ctx context.Context, now time.Time) error {
	_, err := rs.db.ExecContext(ctx, "DELETE FROM read_sessions WHERE expires_at < $1", now)
	return err
}

func (rs *PostgresReadStore) selectFor(collection, table string) string {
	switch collection {
	case readmodel.CollectionAccounts:
		return "SELECT data, password_hash FROM " + table
	case readmodel.CollectionSessions:
		return "SELECT data, refresh_token_hash FROM " + table
	}
	return "SELECT data FROM " + table
}

func (rs *PostgresReadStore) query(ctx context.Context, collection, query string, args ...any) ([]any, error) {
	rows, err := rs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer rows.Close()

	var items []any
	for rows.Next() {
		model, err := rs.scan(collection, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", collection, err)
		}
		items = append(items, model)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (rs *PostgresReadStore) scan(collection string, row rowScanner) (any, error) {
	var data []byte
	switch collection {
	case readmodel.CollectionPosts:
		if err := row.Scan(&data); err != nil {
			return nil, err
		}
		var m readmodel.PostReadModel
		return &m, json.Unmarshal(data, &m)

	case readmodel.CollectionRequests:
		if err := row.Scan(&data); err != nil {
			return nil, err
		}
		var m readmodel.RecyclerRequestReadModel
		return &m, json.Unmarshal(data, &m)

	case readmodel.CollectionAccounts:
		var hash string
		if err := row.Scan(&data, &hash); err != nil {
			return nil, err
		}
		var m readmodel.AccountReadModel
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		m.PasswordHash = hash
		return &m, nil

	case readmodel.CollectionSessions:
		var hash string
		if err := row.Scan(&data, &hash); err != nil {
			return nil, err
		}
		var m readmodel.SessionReadModel
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		m.RefreshTokenHash = hash
		return &m, nil
	}
	return nil, fmt.Errorf("%w: %s", errUnknownCollection, collection)
}

func (rs *PostgresReadStore) setPost(ctx context.Context, id string, p *readmodel.PostReadModel) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = rs.db.ExecContext(ctx, `
		INSERT INTO read_posts (id, owner_id, recycler_id, status, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			recycler_id = EXCLUDED.recycler_id,
			status = EXCLUDED.status,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, id, p.OwnerID, nullString(p.RecyclerID), p.Status, data, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to set post %s: %w", id, err)
	}
	return nil
}

func (rs *PostgresReadStore) setRequest(ctx context.Context, id string, r *readmodel.RecyclerRequestReadModel) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = rs.db.ExecContext(ctx, `
		INSERT INTO read_requests (id, post_id, recycler_id, status, data, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			data = EXCLUDED.data
	`, id, r.PostID, r.RecyclerID, r.Status, data, r.SentAt)
	if err != nil {
		return fmt.Errorf("failed to set request %s: %w", id, err)
	}
	return nil
}

func (rs *PostgresReadStore) setAccount(ctx context.Context, id string, a *readmodel.AccountReadModel) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = rs.db.ExecContext(ctx, `
		INSERT INTO read_accounts (id, email, role, city, password_hash, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			role = EXCLUDED.role,
			city = EXCLUDED.city,
			password_hash = EXCLUDED.password_hash,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, id, a.Email, a.Role, nullString(a.City), a.PasswordHash, data, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to set account %s: %w", id, err)
	}
	return nil
}

func (rs *PostgresReadStore) setSession(ctx context.Context, id string, s *readmodel.SessionReadModel) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = rs.db.ExecContext(ctx, `
		INSERT INTO read_sessions (id, account_id, refresh_token_hash, expires_at, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, id, s.AccountID, s.RefreshTokenHash, s.ExpiresAt, data)
	if err != nil {
		return fmt.Errorf("failed to set session %s: %w", id, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
