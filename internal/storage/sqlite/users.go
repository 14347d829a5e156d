package sqlite

import (
	"context"
	"database/sql"

	gateway "github.com/eugener/aigateway/internal"
)

const userColumns = `id, first_name, last_name, username, email, phone, status, role,
	password_hash, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, u *gateway.User) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO users (id, first_name, last_name, username, email, phone, status, role,
		 password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, nullStr(u.FirstName), nullStr(u.LastName), u.Username, u.Email, nullStr(u.Phone),
		string(u.Status), string(u.Role), nullStr(u.PasswordHash),
		timeToStr(u.CreatedAt), timeToStr(u.UpdatedAt),
	)
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (*gateway.User, error) {
	row := s.read.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*gateway.User, error) {
	row := s.read.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*gateway.User, error) {
	row := s.read.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email)
	return scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context, offset, limit int) ([]*gateway.User, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, u *gateway.User) error {
	result, err := s.write.ExecContext(ctx,
		`UPDATE users SET first_name=?, last_name=?, username=?, email=?, phone=?, status=?,
		 role=?, password_hash=?, updated_at=? WHERE id=?`,
		nullStr(u.FirstName), nullStr(u.LastName), u.Username, u.Email, nullStr(u.Phone),
		string(u.Status), string(u.Role), nullStr(u.PasswordHash), timeToStr(u.UpdatedAt), u.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "user")
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	result, err := s.write.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "user")
}

// CountSuperadmins backs the at-most-one-superadmin invariant (P9); the
// caller checks this before promoting a second user to superadmin.
func (s *Store) CountSuperadmins(ctx context.Context) (int, error) {
	var n int
	err := s.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role=?`, string(gateway.RoleSuperadmin),
	).Scan(&n)
	return n, err
}

func scanUser(sc scanner) (*gateway.User, error) {
	var u gateway.User
	var status, role, createdAt, updatedAt string
	var fn, ln, ph, passwordHash sql.NullString

	err := sc.Scan(&u.ID, &fn, &ln, &u.Username, &u.Email, &ph, &status, &role, &passwordHash, &createdAt, &updatedAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	u.FirstName = fn.String
	u.LastName = ln.String
	u.Phone = ph.String
	u.PasswordHash = passwordHash.String
	u.Status = gateway.NormalizeUserStatus(status)
	u.Role = gateway.Role(role)
	u.CreatedAt = mustParseTime(createdAt)
	u.UpdatedAt = mustParseTime(updatedAt)
	return &u, nil
}
