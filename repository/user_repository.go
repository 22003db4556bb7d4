package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"k8s.io/klog/v2"

	"github.com/samandartukhtayev/user-sync/models"
	"github.com/samandartukhtayev/user-sync/sharding"
)

// ErrNotFound is returned when no user exists with the requested id
var ErrNotFound = errors.New("user not found")

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		username   TEXT NOT NULL,
		age        INTEGER NOT NULL,
		location   TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)
`

// UserRepository handles all user-related database operations
// It abstracts away the sharding and replication complexity from the service layer
type UserRepository struct {
	shardManager *sharding.ShardManager
	now          func() time.Time
}

// NewUserRepository creates a new user repository
func NewUserRepository(sm *sharding.ShardManager) *UserRepository {
	return &UserRepository{
		shardManager: sm,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates the users table on every primary
func (r *UserRepository) Migrate(ctx context.Context) error {
	for _, shard := range r.shardManager.GetAllShards() {
		if _, err := shard.Primary.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("failed to migrate shard %d: %w", shard.ShardID, err)
		}
	}
	return nil
}

// Create inserts a new user; the caller assigns user.ID, which picks the shard.
// Writes always go to the primary database of that shard.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return errors.New("failed to create user: missing id")
	}

	db := r.shardManager.GetPrimaryDB(user.ID)
	createdAt := r.now()

	query := `
		INSERT INTO users (id, username, age, location, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := db.ExecContext(ctx, query, user.ID, user.Username, user.Age, user.Location, createdAt); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.CreatedAt = createdAt

	klog.FromContext(ctx).V(4).Info("Created user", "id", user.ID, "shard", r.shardManager.GetShardID(user.ID))
	return nil
}

// GetByID retrieves a user by id
// Reads can come from replica databases for better load distribution
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.get(ctx, r.shardManager.GetReplicaDB(id), id)
}

// GetByIDFromPrimary retrieves a user from the primary database
// Use this when you need the most up-to-date data (e.g., after a write)
func (r *UserRepository) GetByIDFromPrimary(ctx context.Context, id string) (*models.User, error) {
	return r.get(ctx, r.shardManager.GetPrimaryDB(id), id)
}

func (r *UserRepository) get(ctx context.Context, db *sql.DB, id string) (*models.User, error) {
	query := `
		SELECT id, username, age, location, created_at
		FROM users
		WHERE id = $1
	`

	user := &models.User{}
	err := db.QueryRowContext(ctx, query, id).
		Scan(&user.ID, &user.Username, &user.Age, &user.Location, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// Update overwrites the editable fields of an existing user
// Writes always go to the primary database
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	db := r.shardManager.GetPrimaryDB(user.ID)

	query := `
		UPDATE users
		SET username = $1, age = $2, location = $3
		WHERE id = $4
	`

	result, err := db.ExecContext(ctx, query, user.Username, user.Age, user.Location, user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, user.ID)
	}

	return nil
}

// Delete deletes a user by id
// Writes always go to the primary database
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	db := r.shardManager.GetPrimaryDB(id)

	result, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

// List retrieves all users across all shards, oldest first.
// Reads go to the primaries so a list issued right after a write sees it.
func (r *UserRepository) List(ctx context.Context) ([]*models.User, error) {
	allUsers := make([]*models.User, 0)

	query := `
		SELECT id, username, age, location, created_at
		FROM users
	`

	for _, shard := range r.shardManager.GetAllShards() {
		users, err := r.listShard(ctx, shard, query)
		if err != nil {
			return nil, err
		}
		allUsers = append(allUsers, users...)
	}

	sort.SliceStable(allUsers, func(i, j int) bool {
		if !allUsers[i].CreatedAt.Equal(allUsers[j].CreatedAt) {
			return allUsers[i].CreatedAt.Before(allUsers[j].CreatedAt)
		}
		return allUsers[i].ID < allUsers[j].ID
	})

	return allUsers, nil
}

func (r *UserRepository) listShard(ctx context.Context, shard *sharding.Shard, query string) ([]*models.User, error) {
	rows, err := shard.Primary.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query shard %d: %w", shard.ShardID, err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.ID, &user.Username, &user.Age, &user.Location, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user from shard %d: %w", shard.ShardID, err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows from shard %d: %w", shard.ShardID, err)
	}

	return users, nil
}

// CountUsersPerShard returns the count of users in each shard
// Useful for monitoring shard distribution
func (r *UserRepository) CountUsersPerShard(ctx context.Context) (map[int]int, error) {
	counts := make(map[int]int)

	for _, shard := range r.shardManager.GetAllShards() {
		var count int
		err := shard.Primary.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("failed to count users in shard %d: %w", shard.ShardID, err)
		}
		counts[shard.ShardID] = count
	}

	return counts, nil
}
