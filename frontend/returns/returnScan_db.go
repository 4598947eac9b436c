package returns

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"returnscan/infrastructure/audit"
	"returnscan/infrastructure/sqlite"
	"returnscan/models"
	"returnscan/scan/inspection"
	"returnscan/scan/inventory"
)

var (
	ErrUnknownCode          = errors.New("code matches no item in this order")
	ErrOrderNotScannable    = errors.New("order is not accepting return scans")
	ErrOrderNotFullyScanned = errors.New("order is not fully scanned")
)

// RejectionError reports server-side validation failure for a submitted
// inspection. The submission was not stored.
type RejectionError struct {
	Fields []inspection.FieldError
}

func (e *RejectionError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Error())
	}
	return "inspection rejected: " + strings.Join(msgs, "; ")
}

func LoadOrder(ctx context.Context, db *sqlite.DB, orderID int64) (models.Order, error) {
	var order models.Order
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&order).Where("id = ?", orderID).Limit(1).Scan(ctx)
	})
	return order, err
}

// LoadReturnProgress returns the expected-return lines and derived progress
// for an order, in manifest order.
func LoadReturnProgress(ctx context.Context, db *sqlite.DB, orderID int64) (ProgressData, error) {
	var data ProgressData
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		data, err = loadProgressTx(ctx, tx, orderID)
		return err
	})
	return data, err
}

func loadProgressTx(ctx context.Context, tx bun.Tx, orderID int64) (ProgressData, error) {
	data := ProgressData{OrderID: orderID, Items: make([]ItemProgress, 0)}
	if err := tx.NewRaw(`
SELECT reference, status FROM orders WHERE id = ?`, orderID).Scan(ctx, &data.OrderReference, &data.OrderStatus); err != nil {
		return data, err
	}

	var lines []struct {
		AssetID          int64  `bun:"asset_id"`
		QRCode           string `bun:"qr_code"`
		AssetName        string `bun:"asset_name"`
		TrackingMethod   string `bun:"tracking_method"`
		RequiredQuantity int64  `bun:"required_quantity"`
		ScannedQuantity  int64  `bun:"scanned_quantity"`
	}
	if err := tx.NewRaw(`
SELECT a.id AS asset_id, a.qr_code, a.name AS asset_name, a.tracking_method,
       ori.required_quantity, ori.scanned_quantity
FROM order_return_items ori
JOIN assets a ON a.id = ori.asset_id
WHERE ori.order_id = ?
ORDER BY ori.id ASC`, orderID).Scan(ctx, &lines); err != nil {
		return data, err
	}

	for _, line := range lines {
		data.TotalItems += line.RequiredQuantity
		data.ItemsScanned += line.ScannedQuantity
		data.Items = append(data.Items, ItemProgress{
			AssetID:          line.AssetID,
			QRCode:           line.QRCode,
			AssetName:        line.AssetName,
			TrackingMethod:   line.TrackingMethod,
			RequiredQuantity: line.RequiredQuantity,
			ScannedQuantity:  line.ScannedQuantity,
		})
	}
	data.PercentComplete = inventory.PercentComplete(data.ItemsScanned, data.TotalItems)
	return data, nil
}

// SaveInspection stores one inspection, applies its quantity to the matching
// return line and promotes the order into return_scanning on the first scan.
// A resubmission carrying an already-stored idempotency key is replayed from
// the stored row without applying anything twice.
func SaveInspection(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, input InspectionInput) (SubmitOutcome, error) {
	var outcome SubmitOutcome
	if strings.TrimSpace(input.IdempotencyKey) == "" {
		return outcome, fmt.Errorf("idempotency key is required")
	}

	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var order models.Order
		if err := tx.NewSelect().Model(&order).Where("id = ?", input.OrderID).Limit(1).Scan(ctx); err != nil {
			return err
		}
		if order.Status != "open" && order.Status != "return_scanning" {
			return ErrOrderNotScannable
		}

		var stored models.Inspection
		err := tx.NewSelect().Model(&stored).
			Where("order_id = ?", input.OrderID).
			Where("idempotency_key = ?", input.IdempotencyKey).
			Limit(1).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err == nil {
			replay, err := buildOutcomeTx(ctx, tx, input.OrderID, stored.AssetID)
			if err != nil {
				return err
			}
			replay.InspectionID = stored.ID
			replay.Replayed = true
			outcome = replay
			return nil
		}

		var asset models.Asset
		if err := tx.NewSelect().Model(&asset).Where("qr_code = ?", input.QRCode).Limit(1).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUnknownCode
			}
			return err
		}
		var line models.OrderReturnItem
		if err := tx.NewSelect().Model(&line).
			Where("order_id = ?", input.OrderID).
			Where("asset_id = ?", asset.ID).
			Limit(1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUnknownCode
			}
			return err
		}

		draft := inspection.Draft{
			QRCode:             input.QRCode,
			AssetID:            asset.ID,
			AssetName:          asset.Name,
			TrackingMethod:     asset.TrackingMethod,
			RequiredQuantity:   line.RequiredQuantity,
			ScannedQuantity:    line.ScannedQuantity,
			Condition:          input.Condition,
			Notes:              input.Notes,
			RefurbDaysEstimate: input.RefurbDaysEstimate,
			DiscrepancyReason:  input.DiscrepancyReason,
			Quantity:           input.Quantity,
		}
		if line.ScannedQuantity >= line.RequiredQuantity {
			return &RejectionError{Fields: []inspection.FieldError{
				{Field: "quantity", Message: "item is already fully scanned"},
			}}
		}
		if errs := inspection.Validate(&draft); len(errs) > 0 {
			return &RejectionError{Fields: errs}
		}

		confirmed := draft.ConfirmedQuantity()
		if remaining := line.RequiredQuantity - line.ScannedQuantity; confirmed > remaining {
			confirmed = remaining
		}

		row := models.Inspection{
			OrderID:            input.OrderID,
			AssetID:            asset.ID,
			QRCode:             input.QRCode,
			Condition:          input.Condition,
			Notes:              input.Notes,
			RefurbDaysEstimate: input.RefurbDaysEstimate,
			DiscrepancyReason:  input.DiscrepancyReason,
			Quantity:           confirmed,
			IdempotencyKey:     input.IdempotencyKey,
		}
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return err
		}
		for _, p := range input.Photos {
			photo := models.InspectionPhoto{
				InspectionID: row.ID,
				PhotoBlob:    p.Blob,
				PhotoMIME:    p.MIMEType,
				PhotoName:    p.FileName,
			}
			if _, err := tx.NewInsert().Model(&photo).Exec(ctx); err != nil {
				return err
			}
		}

		before := line
		line.ScannedQuantity += confirmed
		line.UpdatedAt = time.Now()
		if _, err := tx.NewUpdate().Model(&line).WherePK().Exec(ctx); err != nil {
			return err
		}
		if auditSvc != nil {
			if err := auditSvc.Write(ctx, tx, "inspection.create", "inspections", fmt.Sprintf("%d", row.ID), nil, row); err != nil {
				return err
			}
			if err := auditSvc.Write(ctx, tx, "return_item.scan", "order_return_items", fmt.Sprintf("%d", line.ID), before, line); err != nil {
				return err
			}
		}
		if err := promoteOrderToScanning(ctx, tx, input.OrderID); err != nil {
			return err
		}

		outcome, err = buildOutcomeTx(ctx, tx, input.OrderID, asset.ID)
		if err != nil {
			return err
		}
		outcome.InspectionID = row.ID
		return nil
	})
	return outcome, err
}

func buildOutcomeTx(ctx context.Context, tx bun.Tx, orderID, assetID int64) (SubmitOutcome, error) {
	progress, err := loadProgressTx(ctx, tx, orderID)
	if err != nil {
		return SubmitOutcome{}, err
	}
	outcome := SubmitOutcome{
		NewProgress: ProgressSummary{
			OrderID:         orderID,
			TotalItems:      progress.TotalItems,
			ItemsScanned:    progress.ItemsScanned,
			PercentComplete: progress.PercentComplete,
		},
	}
	for _, item := range progress.Items {
		if item.AssetID == assetID {
			outcome.UpdatedItem = item
			break
		}
	}
	return outcome, nil
}

func promoteOrderToScanning(ctx context.Context, tx bun.Tx, orderID int64) error {
	_, err := tx.NewRaw(`UPDATE orders SET status = 'return_scanning', updated_at = ? WHERE id = ? AND status = 'open'`,
		time.Now(), orderID).Exec(ctx)
	return err
}

// CompleteReturn closes the order once every line is fully scanned. Calling it
// on an already returned order reports the final status without error.
func CompleteReturn(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, orderID int64) (string, error) {
	var status string
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var order models.Order
		if err := tx.NewSelect().Model(&order).Where("id = ?", orderID).Limit(1).Scan(ctx); err != nil {
			return err
		}
		if order.Status == "returned" {
			status = order.Status
			return nil
		}
		if order.Status != "open" && order.Status != "return_scanning" {
			return ErrOrderNotScannable
		}

		var short int64
		if err := tx.NewRaw(`
SELECT COUNT(*) FROM order_return_items
WHERE order_id = ? AND scanned_quantity < required_quantity`, orderID).Scan(ctx, &short); err != nil {
			return err
		}
		if short > 0 {
			return ErrOrderNotFullyScanned
		}

		before := order
		now := time.Now()
		order.Status = "returned"
		order.ClosedAt = &now
		order.UpdatedAt = now
		res, err := tx.NewUpdate().Model(&order).
			WherePK().
			Where("status IN ('open', 'return_scanning')").
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			// Another writer closed it first; report the stored status.
			return tx.NewRaw(`SELECT status FROM orders WHERE id = ?`, orderID).Scan(ctx, &status)
		}
		if auditSvc != nil {
			if err := auditSvc.Write(ctx, tx, "order.return_complete", "orders", fmt.Sprintf("%d", order.ID), before, order); err != nil {
				return err
			}
		}
		status = order.Status
		return nil
	})
	return status, err
}

// LoadInspectionPhoto loads one stored photo, verifying it belongs to the
// order in the URL.
func LoadInspectionPhoto(ctx context.Context, db *sqlite.DB, orderID, inspectionID, photoID int64) (blob []byte, mimeType, fileName string, err error) {
	var mimeVal sql.NullString
	var fileVal sql.NullString
	err = db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`
SELECT ip.photo_blob, ip.photo_mime, ip.photo_name
FROM inspection_photos ip
JOIN inspections i ON i.id = ip.inspection_id
WHERE ip.id = ? AND ip.inspection_id = ? AND i.order_id = ?`, photoID, inspectionID, orderID).Scan(ctx, &blob, &mimeVal, &fileVal)
	})
	if err != nil {
		return nil, "", "", err
	}
	if mimeVal.Valid {
		mimeType = mimeVal.String
	}
	if fileVal.Valid {
		fileName = fileVal.String
	}
	return blob, mimeType, fileName, nil
}

// InspectionView is one stored inspection line for the order history table.
type InspectionView struct {
	ID                 int64  `bun:"id"`
	AssetName          string `bun:"asset_name"`
	QRCode             string `bun:"qr_code"`
	Condition          string `bun:"condition"`
	Notes              string `bun:"notes"`
	RefurbDaysEstimate int64  `bun:"refurb_days_estimate"`
	DiscrepancyReason  string `bun:"discrepancy_reason"`
	Quantity           int64  `bun:"quantity"`
	PhotoCount         int64  `bun:"photo_count"`
}

// LoadOrderInspections returns the stored inspections for an order, most
// recent first.
func LoadOrderInspections(ctx context.Context, db *sqlite.DB, orderID int64) ([]InspectionView, error) {
	views := make([]InspectionView, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`
SELECT i.id, a.name AS asset_name, i.qr_code, i.condition, COALESCE(i.notes, '') AS notes,
       i.refurb_days_estimate, COALESCE(i.discrepancy_reason, '') AS discrepancy_reason, i.quantity,
       (SELECT COUNT(*) FROM inspection_photos ip WHERE ip.inspection_id = i.id) AS photo_count
FROM inspections i
JOIN assets a ON a.id = i.asset_id
WHERE i.order_id = ?
ORDER BY i.id DESC`, orderID).Scan(ctx, &views)
	})
	return views, err
}
