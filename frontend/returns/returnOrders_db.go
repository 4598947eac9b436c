package returns

import (
	"context"

	"github.com/uptrace/bun"

	"returnscan/infrastructure/sqlite"
	"returnscan/scan/inventory"
)

// OrderSummary is one row of the orders overview screen.
type OrderSummary struct {
	ID              int64
	Reference       string
	Status          string
	TotalItems      int64
	ItemsScanned    int64
	PercentComplete int
}

// LoadOrderSummaries lists orders with their derived return progress, open
// work first.
func LoadOrderSummaries(ctx context.Context, db *sqlite.DB) ([]OrderSummary, error) {
	var rows []struct {
		ID           int64  `bun:"id"`
		Reference    string `bun:"reference"`
		Status       string `bun:"status"`
		TotalItems   int64  `bun:"total_items"`
		ItemsScanned int64  `bun:"items_scanned"`
	}
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`
SELECT o.id, o.reference, o.status,
       COALESCE(SUM(ori.required_quantity), 0) AS total_items,
       COALESCE(SUM(ori.scanned_quantity), 0) AS items_scanned
FROM orders o
LEFT JOIN order_return_items ori ON ori.order_id = o.id
GROUP BY o.id
ORDER BY CASE o.status WHEN 'return_scanning' THEN 0 WHEN 'open' THEN 1 ELSE 2 END, o.id DESC`).Scan(ctx, &rows)
	})
	if err != nil {
		return nil, err
	}

	summaries := make([]OrderSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, OrderSummary{
			ID:              row.ID,
			Reference:       row.Reference,
			Status:          row.Status,
			TotalItems:      row.TotalItems,
			ItemsScanned:    row.ItemsScanned,
			PercentComplete: inventory.PercentComplete(row.ItemsScanned, row.TotalItems),
		})
	}
	return summaries, nil
}
