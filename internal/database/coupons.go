package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const couponColumns = `id, store_id, code, discount_type, discount_value, min_order_value,
	max_uses, used_count, starts_at, expires_at, is_active, created_at`

func scanCoupon(row rowScanner) (Coupon, error) {
	var c Coupon
	err := row.Scan(
		&c.ID,
		&c.StoreID,
		&c.Code,
		&c.DiscountType,
		&c.DiscountValue,
		&c.MinOrderValue,
		&c.MaxUses,
		&c.UsedCount,
		&c.StartsAt,
		&c.ExpiresAt,
		&c.IsActive,
		&c.CreatedAt,
	)
	return c, err
}

const getCouponByCode = `
SELECT ` + couponColumns + `
FROM coupons
WHERE store_id = $1 AND UPPER(code) = UPPER($2)
`

type GetCouponByCodeParams struct {
	StoreID uuid.UUID
	Code    string
}

func (q *Queries) GetCouponByCode(ctx context.Context, arg GetCouponByCodeParams) (Coupon, error) {
	row := q.db.QueryRow(ctx, getCouponByCode, arg.StoreID, arg.Code)
	return scanCoupon(row)
}

const redeemCoupon = `
UPDATE coupons
SET used_count = used_count + 1
WHERE id = $1 AND is_active
  AND (max_uses IS NULL OR used_count < max_uses)
RETURNING used_count
`

// RedeemCoupon increments the usage counter only while uses remain, so two
// racing redemptions of the last use cannot both succeed. pgx.ErrNoRows
// means the coupon was exhausted or deactivated between validation and
// redemption.
func (q *Queries) RedeemCoupon(ctx context.Context, id uuid.UUID) (int32, error) {
	var usedCount int32
	err := q.db.QueryRow(ctx, redeemCoupon, id).Scan(&usedCount)
	return usedCount, err
}

const createCoupon = `
INSERT INTO coupons (
	store_id, code, discount_type, discount_value, min_order_value,
	max_uses, starts_at, expires_at, is_active
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + couponColumns

type CreateCouponParams struct {
	StoreID       uuid.UUID
	Code          string
	DiscountType  string
	DiscountValue pgtype.Numeric
	MinOrderValue pgtype.Numeric
	MaxUses       pgtype.Int4
	StartsAt      pgtype.Timestamptz
	ExpiresAt     pgtype.Timestamptz
	IsActive      bool
}

func (q *Queries) CreateCoupon(ctx context.Context, arg CreateCouponParams) (Coupon, error) {
	row := q.db.QueryRow(ctx, createCoupon,
		arg.StoreID,
		arg.Code,
		arg.DiscountType,
		arg.DiscountValue,
		arg.MinOrderValue,
		arg.MaxUses,
		arg.StartsAt,
		arg.ExpiresAt,
		arg.IsActive,
	)
	return scanCoupon(row)
}
