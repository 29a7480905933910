package database

import (
	"context"

	"github.com/google/uuid"
)

const userColumns = `id, store_id, full_name, email, hashed_password, role, created_at`

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.StoreID,
		&u.FullName,
		&u.Email,
		&u.HashedPassword,
		&u.Role,
		&u.CreatedAt,
	)
	return u, err
}

const getUserByEmail = `
SELECT ` + userColumns + `
FROM users
WHERE email = $1
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByEmail, email)
	return scanUser(row)
}

const getUserByID = `
SELECT ` + userColumns + `
FROM users
WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, getUserByID, id)
	return scanUser(row)
}

const createUser = `
INSERT INTO users (store_id, full_name, email, hashed_password, role)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + userColumns

type CreateUserParams struct {
	StoreID        uuid.UUID
	FullName       string
	Email          string
	HashedPassword string
	Role           string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser,
		arg.StoreID,
		arg.FullName,
		arg.Email,
		arg.HashedPassword,
		arg.Role,
	)
	return scanUser(row)
}
