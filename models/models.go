package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Order is a customer order whose outbound items are verified back in.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID        int64      `bun:"id,pk,autoincrement"`
	Reference string     `bun:"reference,unique,notnull"`
	Status    string     `bun:"status,notnull"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	ClosedAt  *time.Time `bun:"closed_at"`
}

// Asset is the warehouse item master. QRCode is the printed label value.
type Asset struct {
	bun.BaseModel `bun:"table:assets,alias:a"`

	ID             int64     `bun:"id,pk,autoincrement"`
	QRCode         string    `bun:"qr_code,unique,notnull"`
	Name           string    `bun:"name,notnull"`
	TrackingMethod string    `bun:"tracking_method,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// OrderReturnItem is one line of an order's expected return set.
type OrderReturnItem struct {
	bun.BaseModel `bun:"table:order_return_items,alias:ori"`

	ID               int64     `bun:"id,pk,autoincrement"`
	OrderID          int64     `bun:"order_id,notnull"`
	AssetID          int64     `bun:"asset_id,notnull"`
	RequiredQuantity int64     `bun:"required_quantity,notnull"`
	ScannedQuantity  int64     `bun:"scanned_quantity,notnull,default:0"`
	CreatedAt        time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt        time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Inspection records one finalized condition inspection for a scanned item.
type Inspection struct {
	bun.BaseModel `bun:"table:inspections,alias:i"`

	ID                 int64     `bun:"id,pk,autoincrement"`
	OrderID            int64     `bun:"order_id,notnull"`
	AssetID            int64     `bun:"asset_id,notnull"`
	QRCode             string    `bun:"qr_code,notnull"`
	Condition          string    `bun:"condition,notnull"`
	Notes              string    `bun:"notes"`
	RefurbDaysEstimate int64     `bun:"refurb_days_estimate,notnull,default:0"`
	DiscrepancyReason  string    `bun:"discrepancy_reason"`
	Quantity           int64     `bun:"quantity,notnull"`
	IdempotencyKey     string    `bun:"idempotency_key,unique,notnull"`
	CreatedAt          time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// InspectionPhoto stores individual photos attached to an inspection.
type InspectionPhoto struct {
	bun.BaseModel `bun:"table:inspection_photos,alias:ip"`

	ID           int64     `bun:"id,pk,autoincrement"`
	InspectionID int64     `bun:"inspection_id,notnull"`
	PhotoBlob    []byte    `bun:"photo_blob,notnull"`
	PhotoMIME    string    `bun:"photo_mime,notnull,default:'image/jpeg'"`
	PhotoName    string    `bun:"photo_name,notnull,default:'photo.jpg'"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// AuditLog captures immutable change history for key operations.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:al"`

	ID         int64     `bun:"id,pk,autoincrement"`
	Action     string    `bun:"action,notnull"`
	EntityType string    `bun:"entity_type,notnull"`
	EntityID   string    `bun:"entity_id,notnull"`
	BeforeJSON string    `bun:"before_json"`
	AfterJSON  string    `bun:"after_json"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
