package users

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/societynet/societychat/internal/common/errors"
	"github.com/societynet/societychat/internal/infra/cache"
)

type User struct {
	ID        uuid.UUID
	Name      string
	Role      string
	Muted     bool
	CreatedAt time.Time
}

type Repository struct {
	pool  *pgxpool.Pool
	cache *cache.Cache
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func NewRepositoryWithCache(pool *pgxpool.Pool, c *cache.Cache) *Repository {
	return &Repository{pool: pool, cache: c}
}

const userCacheTTL = 5 * time.Minute

func (r *Repository) userCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("user:%s", id.String())
}

func (r *Repository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, name, role, muted)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	return r.pool.QueryRow(ctx, query,
		user.ID, user.Name, user.Role, user.Muted,
	).Scan(&user.CreatedAt)
}

// GetByID deliberately bypasses the cache for the muted flag: the coordinator
// re-reads the user row on every send so a mid-session mute takes effect on
// the very next message.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, name, role, muted, created_at
		FROM users
		WHERE id = $1
	`

	user := &User{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Name, &user.Role, &user.Muted, &user.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetDisplay serves join-time lookups where a short staleness window is fine.
func (r *Repository) GetDisplay(ctx context.Context, id uuid.UUID) (*User, error) {
	if r.cache != nil {
		var cached User
		if err := r.cache.Get(ctx, r.userCacheKey(id), &cached); err == nil {
			return &cached, nil
		}
	}

	user, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, r.userCacheKey(id), user, userCacheTTL)
	}
	return user, nil
}

// ToggleMuted flips the persisted mute flag atomically and returns the new
// state together with the user's display name.
func (r *Repository) ToggleMuted(ctx context.Context, id uuid.UUID) (bool, string, error) {
	query := `
		UPDATE users
		SET muted = NOT muted
		WHERE id = $1
		RETURNING muted, name
	`

	var muted bool
	var name string
	err := r.pool.QueryRow(ctx, query, id).Scan(&muted, &name)
	if err == pgx.ErrNoRows {
		return false, "", errors.NotFound("user not found")
	}
	if err != nil {
		return false, "", err
	}

	if r.cache != nil {
		_ = r.cache.Delete(ctx, r.userCacheKey(id))
	}
	return muted, name, nil
}
