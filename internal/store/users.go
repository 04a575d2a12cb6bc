package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// UserFilter selects users. Set fields are combined disjunctively (any
// matching selector qualifies a row). At least one field must be set.
type UserFilter struct {
	UserID string
	Name   string
	Email  string
	Phone  string
}

// IsEmpty reports whether no selector is set.
func (f UserFilter) IsEmpty() bool {
	return f.UserID == "" && f.Name == "" && f.Email == "" && f.Phone == ""
}

// SearchUsers finds up to 10 users matching any of the filter's selectors,
// sorted by full name.
func (s *Store) SearchUsers(ctx context.Context, f UserFilter) ([]User, error) {
	if f.IsEmpty() {
		return nil, fmt.Errorf("store: search users: at least one selector is required")
	}

	var conditions []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Name != "" {
		add("full_name ILIKE $%d", like(f.Name))
	}
	if f.Email != "" {
		add("email ILIKE $%d", like(f.Email))
	}
	if f.Phone != "" {
		add("phone ILIKE $%d", like(f.Phone))
	}

	query := fmt.Sprintf(`
		SELECT user_id, full_name, phone, email, preferred_language
		FROM users
		WHERE %s
		ORDER BY full_name
		LIMIT 10`, strings.Join(conditions, " OR "))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.FullName, &u.Phone, &u.Email, &u.PreferredLanguage); err != nil {
			return nil, fmt.Errorf("store: search users scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: search users: %w", err)
	}
	return users, nil
}

// ListStores returns pharmacy locations, optionally filtered by city
// (case-insensitive partial match), sorted by city then name.
func (s *Store) ListStores(ctx context.Context, city string) ([]Location, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if city == "" {
		rows, err = s.db.Query(ctx,
			`SELECT store_id, name, city FROM stores ORDER BY city, name`)
	} else {
		rows, err = s.db.Query(ctx,
			`SELECT store_id, name, city FROM stores WHERE city ILIKE $1 ORDER BY name`,
			like(city))
	}
	if err != nil {
		return nil, fmt.Errorf("store: list stores: %w", err)
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Name, &l.City); err != nil {
			return nil, fmt.Errorf("store: list stores scan: %w", err)
		}
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list stores: %w", err)
	}
	return locations, nil
}
