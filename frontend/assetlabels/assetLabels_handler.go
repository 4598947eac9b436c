package assetlabels

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"returnscan/infrastructure/sqlite"
)

// AssetLabelQueryHandler streams a single-asset QR label PDF.
func AssetLabelQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assetID, err := strconv.ParseInt(chi.URLParam(r, "assetID"), 10, 64)
		if err != nil || assetID <= 0 {
			http.Error(w, "invalid asset id", http.StatusBadRequest)
			return
		}
		label, err := LoadAssetLabel(r.Context(), db, assetID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "asset not found", http.StatusNotFound)
				return
			}
			slog.Error("asset labels: failed to load asset", slog.Int64("asset_id", assetID), slog.Any("err", err))
			http.Error(w, "failed to load asset", http.StatusInternalServerError)
			return
		}
		pdfBytes, err := renderAssetLabelsPDF([]AssetLabelData{label}, time.Now())
		if err != nil {
			slog.Error("asset labels: failed to render label", slog.Int64("asset_id", assetID), slog.Any("err", err))
			http.Error(w, "failed to render label", http.StatusInternalServerError)
			return
		}
		writePDF(w, fmt.Sprintf("asset-%d-label.pdf", assetID), pdfBytes)
	}
}

// OrderAssetLabelsQueryHandler streams one label per expected-return line of
// an order, for reprinting a full set before a pickup.
func OrderAssetLabelsQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
		if err != nil || orderID <= 0 {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}
		labels, err := LoadOrderAssetLabels(r.Context(), db, orderID)
		if err != nil {
			slog.Error("asset labels: failed to load order assets", slog.Int64("order_id", orderID), slog.Any("err", err))
			http.Error(w, "failed to load order assets", http.StatusInternalServerError)
			return
		}
		if len(labels) == 0 {
			http.Error(w, "order has no return items", http.StatusNotFound)
			return
		}
		pdfBytes, err := renderAssetLabelsPDF(labels, time.Now())
		if err != nil {
			slog.Error("asset labels: failed to render labels", slog.Int64("order_id", orderID), slog.Any("err", err))
			http.Error(w, "failed to render labels", http.StatusInternalServerError)
			return
		}
		writePDF(w, fmt.Sprintf("order-%d-asset-labels.pdf", orderID), pdfBytes)
	}
}

func writePDF(w http.ResponseWriter, fileName string, pdfBytes []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename=\""+fileName+"\"")
	_, _ = w.Write(pdfBytes)
}
