package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const storeColumns = `id, name, slug, total_tables, override_pin, created_at`

func scanStore(row rowScanner) (Store, error) {
	var s Store
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Slug,
		&s.TotalTables,
		&s.OverridePin,
		&s.CreatedAt,
	)
	return s, err
}

const getStore = `
SELECT ` + storeColumns + `
FROM stores
WHERE id = $1
`

func (q *Queries) GetStore(ctx context.Context, id uuid.UUID) (Store, error) {
	row := q.db.QueryRow(ctx, getStore, id)
	return scanStore(row)
}

const createStore = `
INSERT INTO stores (name, slug, total_tables, override_pin)
VALUES ($1, $2, $3, $4)
RETURNING ` + storeColumns

type CreateStoreParams struct {
	Name        string
	Slug        string
	TotalTables int32
	OverridePin pgtype.Text
}

func (q *Queries) CreateStore(ctx context.Context, arg CreateStoreParams) (Store, error) {
	row := q.db.QueryRow(ctx, createStore, arg.Name, arg.Slug, arg.TotalTables, arg.OverridePin)
	return scanStore(row)
}
