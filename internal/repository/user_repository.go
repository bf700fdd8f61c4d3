package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/lib/pq"

	"github.com/unclebandit/campaign-dispatcher/internal/model"
)

// UserRepositoryInterface defines methods used by the segment resolver
type UserRepositoryInterface interface {
	ListAll(ctx context.Context) ([]model.User, error)
}

// UserRepository is the concrete implementation
type UserRepository struct {
	DB *sql.DB
}

// ListAll fetches every recipient, ordered by id.
func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	query := `
        SELECT id, name, email, tags
        FROM users
        ORDER BY id
    `
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, pq.Array(&u.Tags)); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	query := `INSERT INTO users (name, email, tags) VALUES ($1, $2, $3) RETURNING id`
	if u.Tags == nil {
		u.Tags = []string{}
	}
	if err := r.DB.QueryRowContext(ctx, query, u.Name, u.Email, pq.Array(u.Tags)).Scan(&u.ID); err != nil {
		return fmt.Errorf("insert user %s: %w", u.Email, err)
	}
	return nil
}

var demoNames = []string{
	"Ray", "Alice", "Bob", "Carol", "David", "Eve", "Frank", "Grace", "Heidi", "Ivan",
	"Judy", "Mallory", "Niaj", "Olivia", "Peggy", "Rupert", "Sybil", "Trent", "Victor", "Wendy",
}

// DemoUsers builds n demo recipients with randomly assigned vip/tw/jp tags.
func DemoUsers(n int, rng *rand.Rand) []model.User {
	users := make([]model.User, 0, n)
	for i := 0; i < n; i++ {
		name := demoNames[i%len(demoNames)]
		if i >= len(demoNames) {
			name = fmt.Sprintf("%s%d", name, i/len(demoNames))
		}
		tags := []string{}
		if rng.Float64() < 0.4 {
			tags = append(tags, "vip")
		}
		if rng.Float64() < 0.3 {
			tags = append(tags, "tw")
		}
		if rng.Float64() < 0.2 {
			tags = append(tags, "jp")
		}
		users = append(users, model.User{
			Name:  name,
			Email: fmt.Sprintf("%s@example.com", strings.ToLower(name)),
			Tags:  tags,
		})
	}
	return users
}

// SeedIfEmpty inserts n demo users when the users table is empty and
// reports how many were inserted.
func (r *UserRepository) SeedIfEmpty(ctx context.Context, n int, rng *rand.Rand) (int, error) {
	count, err := r.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}
	users := DemoUsers(n, rng)
	for i := range users {
		if err := r.Create(ctx, &users[i]); err != nil {
			return i, err
		}
	}
	return len(users), nil
}

var _ UserRepositoryInterface = (*UserRepository)(nil)
