package returns

import (
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"

	sharedhtml "returnscan/frontend/shared/html"
	"returnscan/infrastructure/sqlite"
)

// OrdersPageQueryHandler renders the orders overview with per-order return
// progress and links into the scan screens.
func OrdersPageQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := LoadOrderSummaries(r.Context(), db)
		if err != nil {
			slog.Error("return orders: failed to load summaries", slog.Any("err", err))
			http.Error(w, "failed to load orders", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, renderOrdersPage(summaries))
	}
}

func renderOrdersPage(summaries []OrderSummary) string {
	var b strings.Builder
	b.WriteString(`<main class="mx-auto max-w-3xl p-4"><h1 class="text-xl font-semibold">Return orders</h1>`)
	b.WriteString(`<table class="table table-sm mt-4 bg-base-100"><thead><tr><th>Order</th><th>Status</th><th class="text-right">Progress</th><th></th></tr></thead><tbody>`)
	for _, s := range summaries {
		b.WriteString(`<tr><td>`)
		b.WriteString(html.EscapeString(s.Reference))
		b.WriteString(`</td><td>`)
		b.WriteString(html.EscapeString(s.Status))
		fmt.Fprintf(&b, `</td><td class="text-right tabular-nums">%d / %d (%d%%)</td><td class="text-right">`, s.ItemsScanned, s.TotalItems, s.PercentComplete)
		if s.Status == "open" || s.Status == "return_scanning" {
			fmt.Fprintf(&b, `<a class="btn btn-sm btn-primary" href="/scan/orders/%d">Scan</a> `, s.ID)
		}
		fmt.Fprintf(&b, `<a class="btn btn-sm" href="/orders/%d/asset-labels.pdf">Labels</a>`, s.ID)
		b.WriteString(`</td></tr>`)
	}
	b.WriteString(`</tbody></table></main>`)
	return sharedhtml.RenderLayout("Return Orders", b.String())
}
