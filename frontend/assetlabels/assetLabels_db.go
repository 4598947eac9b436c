package assetlabels

import (
	"context"

	"github.com/uptrace/bun"

	"returnscan/infrastructure/sqlite"
)

func LoadAssetLabel(ctx context.Context, db *sqlite.DB, assetID int64) (AssetLabelData, error) {
	var label AssetLabelData
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`
SELECT id, qr_code, name, tracking_method FROM assets WHERE id = ?`, assetID).
			Scan(ctx, &label.AssetID, &label.QRCode, &label.Name, &label.TrackingMethod)
	})
	return label, err
}

// LoadOrderAssetLabels returns one label per expected-return line of an order,
// in manifest order.
func LoadOrderAssetLabels(ctx context.Context, db *sqlite.DB, orderID int64) ([]AssetLabelData, error) {
	var rows []struct {
		AssetID        int64  `bun:"asset_id"`
		QRCode         string `bun:"qr_code"`
		Name           string `bun:"name"`
		TrackingMethod string `bun:"tracking_method"`
	}
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`
SELECT a.id AS asset_id, a.qr_code, a.name, a.tracking_method
FROM order_return_items ori
JOIN assets a ON a.id = ori.asset_id
WHERE ori.order_id = ?
ORDER BY ori.id ASC`, orderID).Scan(ctx, &rows)
	})
	if err != nil {
		return nil, err
	}
	labels := make([]AssetLabelData, 0, len(rows))
	for _, row := range rows {
		labels = append(labels, AssetLabelData{
			AssetID:        row.AssetID,
			QRCode:         row.QRCode,
			Name:           row.Name,
			TrackingMethod: row.TrackingMethod,
		})
	}
	return labels, nil
}
