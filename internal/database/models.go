package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Store is a tenant: one restaurant with its table count and the manager
// PIN used to override premature table closures.
type Store struct {
	ID          uuid.UUID
	Name        string
	Slug        string
	TotalTables int32
	OverridePin pgtype.Text
	CreatedAt   time.Time
}

type User struct {
	ID             uuid.UUID
	StoreID        uuid.UUID
	FullName       string
	Email          string
	HashedPassword string
	Role           string
	CreatedAt      time.Time
}

// Order is a single order row. TotalPrice is net (gross minus discount).
// TableNumber is set iff Channel is "mesa"; CourierID iff a courier has
// claimed an "entrega" order.
type Order struct {
	ID                uuid.UUID
	StoreID           uuid.UUID
	OrderNumber       string
	Channel           string
	Status            string
	TableNumber       pgtype.Int4
	CustomerName      string
	IsPlaceholderName bool
	CustomerPhone     pgtype.Text
	Address           pgtype.Text
	TotalPrice        pgtype.Numeric
	Discount          pgtype.Numeric
	CouponCode        pgtype.Text
	CouponID          pgtype.UUID
	PaymentMethod     pgtype.Text
	CancelReason      pgtype.Text
	CourierID         pgtype.UUID
	CreatedBy         pgtype.UUID
	CreatedAt         time.Time
	LastStatusChange  time.Time
}

// OrderItem snapshots the product at order time. RemovedIngredients and
// SelectedAddons are serialized JSON, not foreign keys, so later catalog
// edits never touch historical orders.
type OrderItem struct {
	ID                 uuid.UUID
	OrderID            uuid.UUID
	ProductName        string
	Quantity           int32
	UnitPrice          pgtype.Numeric
	TotalPrice         pgtype.Numeric
	RemovedIngredients []byte
	SelectedAddons     []byte
	Status             string
	SendToKitchen      bool
	CreatedAt          time.Time
}

type Coupon struct {
	ID            uuid.UUID
	StoreID       uuid.UUID
	Code          string
	DiscountType  string
	DiscountValue pgtype.Numeric
	MinOrderValue pgtype.Numeric
	MaxUses       pgtype.Int4
	UsedCount     int32
	StartsAt      pgtype.Timestamptz
	ExpiresAt     pgtype.Timestamptz
	IsActive      bool
	CreatedAt     time.Time
}
