package returns

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"returnscan/infrastructure/audit"
	"returnscan/infrastructure/sqlite"
)

func newTestRouter(db *sqlite.DB) *chi.Mux {
	auditSvc := audit.NewService()
	r := chi.NewRouter()
	r.Get("/api/orders/{orderID}/return-progress", ReturnProgressQueryHandler(db))
	r.Post("/api/orders/{orderID}/inspections", CreateInspectionCommandHandler(db, auditSvc))
	r.Post("/api/orders/{orderID}/complete-return", CompleteReturnCommandHandler(db, auditSvc))
	r.Get("/api/orders/{orderID}/inspections/{inspectionID}/photos/{photoID}", InspectionPhotoQueryHandler(db))
	r.Get("/scan/orders/{orderID}", ScanPageQueryHandler(db))
	return r
}

func multipartBody(t *testing.T, fields map[string]string, photos map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	for name, blob := range photos {
		fw, err := mw.CreateFormFile("photos", name)
		if err != nil {
			t.Fatalf("create photo part: %v", err)
		}
		if _, err := fw.Write(blob); err != nil {
			t.Fatalf("write photo part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func postInspection(t *testing.T, router http.Handler, url, key string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields, nil)
	req := httptest.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", contentType)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestReturnProgressEndpoint(t *testing.T) {
	db := openTestDB(t)
	seedChairOrder(t, db)
	router := newTestRouter(db)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/1/return-progress", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var data ProgressData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if data.OrderID != 1 || data.TotalItems != 1 || len(data.Items) != 1 {
		t.Fatalf("unexpected payload: %+v", data)
	}
}

func TestReturnProgressEndpoint_UnknownOrder(t *testing.T) {
	db := openTestDB(t)
	router := newTestRouter(db)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/99/return-progress", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateInspectionEndpoint(t *testing.T) {
	db := openTestDB(t)
	seedChairOrder(t, db)
	router := newTestRouter(db)

	rec := postInspection(t, router, "/api/orders/1/inspections", "key-1", map[string]string{
		"qrCode": "QR-CHAIR", "condition": "GREEN", "quantity": "1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var outcome SubmitOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if outcome.UpdatedItem.ScannedQuantity != 1 || outcome.NewProgress.PercentComplete != 100 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	// The same key replays with 200 and does not apply again.
	rec = postInspection(t, router, "/api/orders/1/inspections", "key-1", map[string]string{
		"qrCode": "QR-CHAIR", "condition": "GREEN", "quantity": "1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if !outcome.Replayed || outcome.UpdatedItem.ScannedQuantity != 1 {
		t.Fatalf("unexpected replay outcome: %+v", outcome)
	}
}

func TestCreateInspectionEndpoint_RequiresIdempotencyKey(t *testing.T) {
	db := openTestDB(t)
	seedChairOrder(t, db)
	router := newTestRouter(db)

	rec := postInspection(t, router, "/api/orders/1/inspections", "", map[string]string{
		"qrCode": "QR-CHAIR", "condition": "GREEN",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key, got %d", rec.Code)
	}
}

func TestCreateInspectionEndpoint_RejectionCarriesFieldErrors(t *testing.T) {
	db := openTestDB(t)
	seedPlateOrder(t, db)
	router := newTestRouter(db)

	rec := postInspection(t, router, "/api/orders/2/inspections", "key-1", map[string]string{
		"qrCode": "QR-PLATE", "condition": "GREEN", "quantity": "12",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if len(resp.Fields) != 1 || resp.Fields[0].Field != "quantity" {
		t.Fatalf("unexpected fields: %+v", resp.Fields)
	}
}

func TestCreateInspectionEndpoint_UnknownCodeIs422(t *testing.T) {
	db := openTestDB(t)
	seedChairOrder(t, db)
	router := newTestRouter(db)

	rec := postInspection(t, router, "/api/orders/1/inspections", "key-1", map[string]string{
		"qrCode": "QR-NOPE", "condition": "GREEN",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestCreateInspectionEndpoint_ReturnedOrderIs409(t *testing.T) {
	db := openTestDB(t)
	seedOrder(t, db, 1, "returned")
	seedAsset(t, db, 10, "QR-CHAIR", "Chair", "INDIVIDUAL")
	seedReturnLine(t, db, 1, 10, 1, 1)
	router := newTestRouter(db)

	rec := postInspection(t, router, "/api/orders/1/inspections", "key-1", map[string]string{
		"qrCode": "QR-CHAIR", "condition": "GREEN",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestCompleteReturnEndpoint(t *testing.T) {
	db := openTestDB(t)
	seedOrder(t, db, 1, "return_scanning")
	seedAsset(t, db, 10, "QR-CHAIR", "Chair", "INDIVIDUAL")
	seedReturnLine(t, db, 1, 10, 1, 1)
	router := newTestRouter(db)

	req := httptest.NewRequest(http.MethodPost, "/api/orders/1/complete-return", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out struct{ NewStatus string }
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.NewStatus != "returned" {
		t.Fatalf("expected returned, got %q", out.NewStatus)
	}
}

func TestCompleteReturnEndpoint_ShortScanIs409(t *testing.T) {
	db := openTestDB(t)
	seedPlateOrder(t, db)
	router := newTestRouter(db)

	req := httptest.NewRequest(http.MethodPost, "/api/orders/2/complete-return", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestInspectionPhotoEndpoint(t *testing.T) {
	db := openTestDB(t)
	seedChairOrder(t, db)
	router := newTestRouter(db)

	body, contentType := multipartBody(t, map[string]string{
		"qrCode": "QR-CHAIR", "condition": "RED", "notes": "Leg broken", "refurbDaysEstimate": "3",
	}, map[string][]byte{"damage.jpg": {0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 0x4a, 0x46, 0x49, 0x46}})
	req := httptest.NewRequest(http.MethodPost, "/api/orders/1/inspections", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Idempotency-Key", "key-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var outcome SubmitOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}

	photoURL := "/api/orders/1/inspections/" + strconv.FormatInt(outcome.InspectionID, 10) + "/photos/1"
	req = httptest.NewRequest(http.MethodGet, photoURL, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "image/") {
		t.Fatalf("expected image content type, got %q", got)
	}
}

func TestScanPageRenders(t *testing.T) {
	db := openTestDB(t)
	seedChairOrder(t, db)
	router := newTestRouter(db)

	req := httptest.NewRequest(http.MethodGet, "/scan/orders/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	page := rec.Body.String()
	if !strings.Contains(page, "ORD-0001") || !strings.Contains(page, "QR-CHAIR") {
		t.Fatalf("expected order reference and item in page")
	}
	if !strings.Contains(page, "Idempotency-Key") {
		t.Fatalf("expected scan script to send idempotency keys")
	}
}
