package session

import (
	"context"

	"returnscan/scan/inspection"
	"returnscan/scan/inventory"
)

// Snapshot is the server view of an order's return progress, used to seed and
// refresh the in-memory inventory model.
type Snapshot struct {
	OrderID         int64
	TotalItems      int64
	ItemsScanned    int64
	PercentComplete int
	Items           []inventory.Item
}

// SubmitRequest carries one validated inspection to the persistence boundary.
type SubmitRequest struct {
	QRCode             string
	Condition          string
	Notes              string
	Photos             []inspection.Photo
	RefurbDaysEstimate int64
	DiscrepancyReason  string
	Quantity           int64
	IdempotencyKey     string
}

// SubmitResult is the server acknowledgment for a stored inspection.
type SubmitResult struct {
	UpdatedItem inventory.Item
	NewProgress inventory.Progress
}

// Backend is the persistence boundary consumed by a scan session. Submission
// failures must be reported as *RejectedError or *NetworkError so the session
// can route them; CompleteReturnScan errors are wrapped as *CompletionError.
type Backend interface {
	GetReturnProgress(ctx context.Context, orderID int64) (Snapshot, error)
	SubmitInspection(ctx context.Context, orderID int64, req SubmitRequest) (SubmitResult, error)
	CompleteReturnScan(ctx context.Context, orderID int64) (string, error)
}
