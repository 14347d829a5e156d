package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	gateway "github.com/eugener/aigateway/internal"
)

const userColumns = `id, first_name, last_name, username, email, phone, status, role,
	password_hash, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, u *gateway.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, first_name, last_name, username, email, phone, status, role,
		 password_hash, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, nullableStr(u.FirstName), nullableStr(u.LastName), u.Username, u.Email,
		nullableStr(u.Phone), string(u.Status), string(u.Role), nullableStr(u.PasswordHash),
		u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (*gateway.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*gateway.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*gateway.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
	return scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context, offset, limit int) ([]*gateway.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
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
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET first_name=$1, last_name=$2, username=$3, email=$4, phone=$5, status=$6,
		 role=$7, password_hash=$8, updated_at=$9 WHERE id=$10`,
		nullableStr(u.FirstName), nullableStr(u.LastName), u.Username, u.Email, nullableStr(u.Phone),
		string(u.Status), string(u.Role), nullableStr(u.PasswordHash), u.UpdatedAt, u.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag.RowsAffected(), "user")
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag.RowsAffected(), "user")
}

func (s *Store) CountSuperadmins(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role=$1`, string(gateway.RoleSuperadmin)).Scan(&n)
	return n, err
}

func scanUser(row pgx.Row) (*gateway.User, error) {
	var u gateway.User
	var firstName, lastName, phone, passwordHash *string
	var status, role string

	err := row.Scan(&u.ID, &firstName, &lastName, &u.Username, &u.Email, &phone, &status, &role,
		&passwordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	if firstName != nil {
		u.FirstName = *firstName
	}
	if lastName != nil {
		u.LastName = *lastName
	}
	if phone != nil {
		u.Phone = *phone
	}
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	u.Status = gateway.NormalizeUserStatus(status)
	u.Role = gateway.Role(role)
	return &u, nil
}
