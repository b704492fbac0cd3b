package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/vaultshare/fileshare-api/internal/database"
)

// ErrNotFound is returned when no pending token exists for (user, type).
var ErrNotFound = errors.New("token not found")

// Repository defines the persistence operations the lifecycle manager needs.
type Repository interface {
	GetByUserAndType(ctx context.Context, userID uuid.UUID, typ Type) (*Token, error)
	Insert(ctx context.Context, t *Token) error
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

// BunRepository persists tokens in Postgres via bun.
type BunRepository struct {
	db *bun.DB
}

func NewBunRepository(db *bun.DB) *BunRepository {
	return &BunRepository{db: db}
}

// GetByUserAndType retrieves the pending token for (user, type)
func (r *BunRepository) GetByUserAndType(ctx context.Context, userID uuid.UUID, typ Type) (*Token, error) {
	dbToken := new(database.Token)
	err := r.db.NewSelect().
		Model(dbToken).
		Where("user_id = ?", userID).
		Where("token_type = ?", string(typ)).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return mapDBTokenToModel(dbToken), nil
}

// Insert stores a freshly issued token
func (r *BunRepository) Insert(ctx context.Context, t *Token) error {
	dbToken := &database.Token{
		TokenType:   string(t.Type),
		HashedToken: t.HashedToken,
		UserID:      t.UserID,
		CreatedAt:   t.CreatedAt,
		ExpiresAt:   t.ExpiresAt,
	}

	_, err := r.db.NewInsert().
		Model(dbToken).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}

	t.ID = dbToken.ID
	return nil
}

// DeleteByID removes a consumed or superseded token
func (r *BunRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*database.Token)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	return nil
}

func mapDBTokenToModel(dbt *database.Token) *Token {
	return &Token{
		ID:          dbt.ID,
		Type:        Type(dbt.TokenType),
		HashedToken: dbt.HashedToken,
		UserID:      dbt.UserID,
		CreatedAt:   dbt.CreatedAt,
		ExpiresAt:   dbt.ExpiresAt,
	}
}
