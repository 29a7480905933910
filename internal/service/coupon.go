package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Errors returned by coupon validation. Each one is a distinct reject
// reason so terminals can tell the operator why a code did not apply.
var (
	ErrCouponNotFound   = errors.New("coupon not found")
	ErrCouponInactive   = errors.New("coupon is not active")
	ErrCouponNotStarted = errors.New("coupon is not yet valid")
	ErrCouponExpired    = errors.New("coupon has expired")
	ErrCouponExhausted  = errors.New("coupon usage limit reached")
	ErrCouponMinOrder   = errors.New("order total below coupon minimum")
)

// CouponStore defines the DB methods needed for coupon validation.
// Satisfied by *database.Queries (and its WithTx variant).
type CouponStore interface {
	GetCouponByCode(ctx context.Context, arg database.GetCouponByCodeParams) (database.Coupon, error)
	RedeemCoupon(ctx context.Context, id uuid.UUID) (int32, error)
}

// CouponResult is a successfully validated coupon with its clamped discount.
type CouponResult struct {
	CouponID uuid.UUID
	Code     string
	Discount decimal.Decimal
}

// ValidateCoupon checks a code against the gross order amount and computes
// the discount, clamped into [0, gross] so the net total can never go
// negative. It is a pure read; redemption is the caller's separate step.
func ValidateCoupon(ctx context.Context, store CouponStore, storeID uuid.UUID, code string, gross decimal.Decimal) (*CouponResult, error) {
	coupon, err := store.GetCouponByCode(ctx, database.GetCouponByCodeParams{
		StoreID: storeID,
		Code:    code,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	if !coupon.IsActive {
		return nil, ErrCouponInactive
	}

	now := time.Now()
	if coupon.StartsAt.Valid && now.Before(coupon.StartsAt.Time) {
		return nil, ErrCouponNotStarted
	}
	if coupon.ExpiresAt.Valid && now.After(coupon.ExpiresAt.Time) {
		return nil, ErrCouponExpired
	}
	if coupon.MaxUses.Valid && coupon.UsedCount >= coupon.MaxUses.Int32 {
		return nil, ErrCouponExhausted
	}

	minOrder := numericToDecimal(coupon.MinOrderValue)
	if gross.LessThan(minOrder) {
		return nil, ErrCouponMinOrder
	}

	var discount decimal.Decimal
	switch coupon.DiscountType {
	case enum.DiscountTypePercent:
		discount = gross.Mul(numericToDecimal(coupon.DiscountValue)).Div(decimal.NewFromInt(100))
	default:
		discount = numericToDecimal(coupon.DiscountValue)
	}

	// Clamp: never discount more than the gross, never negative.
	if discount.GreaterThan(gross) {
		discount = gross
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	return &CouponResult{
		CouponID: coupon.ID,
		Code:     coupon.Code,
		Discount: discount,
	}, nil
}

// IsCouponError reports whether err is one of the coupon reject reasons,
// as opposed to a backend failure.
func IsCouponError(err error) bool {
	return errors.Is(err, ErrCouponNotFound) ||
		errors.Is(err, ErrCouponInactive) ||
		errors.Is(err, ErrCouponNotStarted) ||
		errors.Is(err, ErrCouponExpired) ||
		errors.Is(err, ErrCouponExhausted) ||
		errors.Is(err, ErrCouponMinOrder)
}
