package returns

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"returnscan/infrastructure/audit"
	"returnscan/infrastructure/sqlite"
)

// ReturnProgressQueryHandler serves the expected-return lines and derived
// progress for an order.
func ReturnProgressQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}
		data, err := LoadReturnProgress(r.Context(), db, orderID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "order not found", http.StatusNotFound)
				return
			}
			slog.Error("return scan: failed to load progress", slog.Int64("order_id", orderID), slog.Any("err", err))
			http.Error(w, "failed to load return progress", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

// CreateInspectionCommandHandler stores one inspection submission. The
// Idempotency-Key header is mandatory; resubmitting a stored key replays the
// original outcome instead of applying the quantity twice.
func CreateInspectionCommandHandler(db *sqlite.DB, auditSvc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}
		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" {
			http.Error(w, "Idempotency-Key header is required", http.StatusBadRequest)
			return
		}
		if err := parseInspectionForm(r); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}

		input := InspectionInput{
			OrderID:           orderID,
			QRCode:            strings.TrimSpace(r.FormValue("qrCode")),
			Condition:         strings.TrimSpace(r.FormValue("condition")),
			Notes:             strings.TrimSpace(r.FormValue("notes")),
			DiscrepancyReason: strings.TrimSpace(r.FormValue("discrepancyReason")),
			IdempotencyKey:    key,
		}
		if input.QRCode == "" {
			http.Error(w, "qrCode is required", http.StatusBadRequest)
			return
		}
		if v := strings.TrimSpace(r.FormValue("refurbDaysEstimate")); v != "" {
			input.RefurbDaysEstimate, err = strconv.ParseInt(v, 10, 64)
			if err != nil || input.RefurbDaysEstimate < 0 {
				http.Error(w, "invalid refurb days estimate", http.StatusBadRequest)
				return
			}
		}
		if v := strings.TrimSpace(r.FormValue("quantity")); v != "" {
			input.Quantity, err = strconv.ParseInt(v, 10, 64)
			if err != nil || input.Quantity < 0 {
				http.Error(w, "invalid quantity", http.StatusBadRequest)
				return
			}
		}
		photos, err := parseInspectionPhotos(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		input.Photos = photos

		outcome, err := SaveInspection(r.Context(), db, auditSvc, input)
		if err != nil {
			var rej *RejectionError
			switch {
			case errors.Is(err, sql.ErrNoRows):
				http.Error(w, "order not found", http.StatusNotFound)
			case errors.Is(err, ErrUnknownCode):
				writeError(w, http.StatusUnprocessableEntity, errorResponse{
					Error:  ErrUnknownCode.Error(),
					Fields: []fieldMessage{{Field: "qrCode", Message: ErrUnknownCode.Error()}},
				})
			case errors.Is(err, ErrOrderNotScannable):
				http.Error(w, ErrOrderNotScannable.Error(), http.StatusConflict)
			case errors.As(err, &rej):
				resp := errorResponse{Error: "inspection rejected"}
				for _, f := range rej.Fields {
					resp.Fields = append(resp.Fields, fieldMessage{Field: f.Field, Message: f.Message})
				}
				writeError(w, http.StatusUnprocessableEntity, resp)
			default:
				slog.Error("return scan: failed to save inspection", slog.Int64("order_id", orderID), slog.Any("err", err))
				http.Error(w, "failed to save inspection", http.StatusInternalServerError)
			}
			return
		}
		status := http.StatusCreated
		if outcome.Replayed {
			status = http.StatusOK
		}
		writeJSON(w, status, outcome)
	}
}

// CompleteReturnCommandHandler closes a fully scanned order.
func CompleteReturnCommandHandler(db *sqlite.DB, auditSvc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}
		status, err := CompleteReturn(r.Context(), db, auditSvc, orderID)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				http.Error(w, "order not found", http.StatusNotFound)
			case errors.Is(err, ErrOrderNotFullyScanned), errors.Is(err, ErrOrderNotScannable):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				slog.Error("return scan: failed to complete return", slog.Int64("order_id", orderID), slog.Any("err", err))
				http.Error(w, "failed to complete return", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusOK, struct{ NewStatus string }{NewStatus: status})
	}
}

// InspectionPhotoQueryHandler streams one stored inspection photo.
func InspectionPhotoQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}
		inspectionID, err := strconv.ParseInt(chi.URLParam(r, "inspectionID"), 10, 64)
		if err != nil || inspectionID <= 0 {
			http.Error(w, "invalid inspection id", http.StatusBadRequest)
			return
		}
		photoID, err := strconv.ParseInt(chi.URLParam(r, "photoID"), 10, 64)
		if err != nil || photoID <= 0 {
			http.Error(w, "invalid photo id", http.StatusBadRequest)
			return
		}

		blob, mimeType, fileName, err := LoadInspectionPhoto(r.Context(), db, orderID, inspectionID, photoID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.NotFound(w, r)
				return
			}
			slog.Error("return scan: failed to load photo", slog.Int64("photo_id", photoID), slog.Any("err", err))
			http.Error(w, "failed to load photo", http.StatusInternalServerError)
			return
		}
		if len(blob) == 0 {
			http.NotFound(w, r)
			return
		}
		if strings.TrimSpace(mimeType) == "" {
			mimeType = http.DetectContentType(blob)
		}
		w.Header().Set("Content-Type", mimeType)
		if strings.TrimSpace(fileName) != "" {
			w.Header().Set("Content-Disposition", "inline; filename=\""+fileName+"\"")
		}
		_, _ = w.Write(blob)
	}
}

// ScanPageQueryHandler renders the return-scan screen for an order.
func ScanPageQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}
		data, err := LoadReturnProgress(r.Context(), db, orderID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "order not found", http.StatusNotFound)
				return
			}
			slog.Error("return scan: failed to load progress", slog.Int64("order_id", orderID), slog.Any("err", err))
			http.Error(w, "failed to load return progress", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, renderScanPage(data))
	}
}

func parseOrderID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
}

func parseInspectionForm(r *http.Request) error {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type"))), "multipart/form-data") {
		return r.ParseMultipartForm(50 << 20) // 50MB for multiple photos
	}
	return r.ParseForm()
}

func parseInspectionPhotos(r *http.Request) ([]PhotoInput, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		return nil, nil
	}

	const maxPhoto = 5 << 20 // 5MB per photo
	var photos []PhotoInput
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(io.LimitReader(f, maxPhoto+1))
		f.Close()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}
		if len(data) > maxPhoto {
			return nil, errors.New("each photo must be 5MB or less")
		}

		mimeType := strings.TrimSpace(fh.Header.Get("Content-Type"))
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}
		if !strings.HasPrefix(mimeType, "image/") {
			return nil, errors.New("photos must be image files")
		}

		fileName := strings.TrimSpace(fh.Filename)
		if fileName == "" {
			exts, _ := mime.ExtensionsByType(mimeType)
			ext := ""
			if len(exts) > 0 {
				ext = exts[0]
			}
			fileName = "inspection-photo" + ext
		} else {
			fileName = filepath.Base(fileName)
		}

		photos = append(photos, PhotoInput{Blob: data, MIMEType: mimeType, FileName: fileName})
	}
	return photos, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, resp errorResponse) {
	writeJSON(w, status, resp)
}
