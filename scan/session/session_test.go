package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"returnscan/scan/inspection"
	"returnscan/scan/inventory"
	"returnscan/scan/source"
)

// feedDecoder lets tests push decode values into a running source.
type feedDecoder struct {
	codes   chan string
	openErr error
}

func newFeedDecoder() *feedDecoder {
	return &feedDecoder{codes: make(chan string, 8)}
}

func (d *feedDecoder) Open(context.Context) error { return d.openErr }

func (d *feedDecoder) Next(ctx context.Context) (string, error) {
	select {
	case c := <-d.codes:
		return c, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (d *feedDecoder) Close() error { return nil }

// fakeBackend implements Backend with scripted behavior and call recording.
type fakeBackend struct {
	mu            sync.Mutex
	snapshot      Snapshot
	submitErr     error
	completeErr   error
	submits       []SubmitRequest
	completeCalls int
}

func (b *fakeBackend) GetReturnProgress(context.Context, int64) (Snapshot, error) {
	return b.snapshot, nil
}

func (b *fakeBackend) SubmitInspection(_ context.Context, _ int64, req SubmitRequest) (SubmitResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitErr != nil {
		return SubmitResult{}, b.submitErr
	}
	b.submits = append(b.submits, req)
	return SubmitResult{}, nil
}

func (b *fakeBackend) CompleteReturnScan(context.Context, int64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completeCalls++
	if b.completeErr != nil {
		return "", b.completeErr
	}
	return "returned", nil
}

func (b *fakeBackend) submitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.submits)
}

func (b *fakeBackend) completed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completeCalls
}

func chairSnapshot() Snapshot {
	return Snapshot{
		OrderID:    42,
		TotalItems: 1,
		Items: []inventory.Item{
			{AssetID: 1, QRCode: "QR-CHAIR", AssetName: "Chair", TrackingMethod: inventory.TrackingIndividual, RequiredQuantity: 1},
		},
	}
}

func plateSnapshot() Snapshot {
	return Snapshot{
		OrderID:    42,
		TotalItems: 10,
		Items: []inventory.Item{
			{AssetID: 2, QRCode: "QR-PLATE", AssetName: "Plate", TrackingMethod: inventory.TrackingBatch, RequiredQuantity: 10},
		},
	}
}

func startSession(t *testing.T, backend Backend, events Events) *Session {
	t.Helper()
	s, err := New(Config{
		OrderID:     42,
		Backend:     backend,
		Decoder:     newFeedDecoder(),
		QuietWindow: 2 * time.Second,
		Events:      events,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start session: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func eventAt(code string, offset time.Duration) source.Event {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return source.Event{Code: code, At: base.Add(offset)}
}

func TestScenarioA_SingleIndividualItemCompletesOrder(t *testing.T) {
	backend := &fakeBackend{snapshot: chairSnapshot()}
	var completedStatus string
	var finalized []string
	s := startSession(t, backend, Events{
		InspectionFinalized: func(assetID int64, condition, itemStatus string) {
			finalized = append(finalized, fmt.Sprintf("%d/%s/%s", assetID, condition, itemStatus))
		},
		OrderCompleted: func(status string) { completedStatus = status },
	})

	s.handleEvent(eventAt("QR-CHAIR", 0))
	if s.DraftState() != inspection.StateOpen {
		t.Fatalf("expected open draft, got %s", s.DraftState())
	}
	if err := s.EditDraft(func(d *inspection.Draft) { d.Condition = inspection.ConditionGreen }); err != nil {
		t.Fatalf("edit draft: %v", err)
	}
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	items := s.Items()
	if items[0].ScannedQuantity != 1 {
		t.Fatalf("expected scanned quantity 1, got %d", items[0].ScannedQuantity)
	}
	if p := s.Progress(); p.PercentComplete != 100 {
		t.Fatalf("expected 100%%, got %d", p.PercentComplete)
	}
	if backend.completed() != 1 {
		t.Fatalf("expected completion to fire once, got %d", backend.completed())
	}
	if completedStatus != "returned" {
		t.Fatalf("expected returned status, got %q", completedStatus)
	}
	if len(finalized) != 1 || finalized[0] != "1/GREEN/complete" {
		t.Fatalf("unexpected finalized events: %v", finalized)
	}
	if s.Completion() != CompletionCompleted {
		t.Fatalf("expected completed state, got %s", s.Completion())
	}

	// Session is terminated: further events are ignored.
	s.handleEvent(eventAt("QR-CHAIR", 10*time.Second))
	if s.Draft() != nil {
		t.Fatalf("expected no draft after session termination")
	}
}

func TestScenarioB_BatchQuantityOverRemainingRejectedLocally(t *testing.T) {
	backend := &fakeBackend{snapshot: plateSnapshot()}
	s := startSession(t, backend, Events{})

	s.handleEvent(eventAt("QR-PLATE", 0))
	_ = s.EditDraft(func(d *inspection.Draft) {
		d.Condition = inspection.ConditionGreen
		d.Quantity = 12
	})

	err := s.Submit(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if backend.submitCount() != 0 {
		t.Fatalf("expected no network call on local validation failure")
	}
	if s.DraftState() != inspection.StateOpen {
		t.Fatalf("expected draft to stay open, got %s", s.DraftState())
	}
}

func TestScenarioC_RedConditionRefurbDaysCorrection(t *testing.T) {
	backend := &fakeBackend{snapshot: chairSnapshot()}
	s := startSession(t, backend, Events{})

	s.handleEvent(eventAt("QR-CHAIR", 0))
	_ = s.EditDraft(func(d *inspection.Draft) {
		d.Condition = inspection.ConditionRed
		d.RefurbDaysEstimate = 0
	})

	err := s.Submit(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	_ = s.EditDraft(func(d *inspection.Draft) {
		d.RefurbDaysEstimate = 3
		d.Notes = "Leg broken"
	})
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("expected corrected draft to submit, got %v", err)
	}
	if backend.submitCount() != 1 {
		t.Fatalf("expected exactly one submission, got %d", backend.submitCount())
	}
}

func TestScenarioD_DuplicateDecodeWhileOpenIsDropped(t *testing.T) {
	backend := &fakeBackend{snapshot: chairSnapshot()}
	s := startSession(t, backend, Events{})

	s.handleEvent(eventAt("QR-CHAIR", 0))
	first := s.Draft()
	if first == nil {
		t.Fatalf("expected draft after first decode")
	}

	s.handleEvent(eventAt("QR-CHAIR", 200*time.Millisecond))
	second := s.Draft()
	if second == nil || second.IdempotencyKey != first.IdempotencyKey {
		t.Fatalf("expected the duplicate decode to be dropped")
	}
}

func TestScenarioE_NetworkErrorKeepsDraftAndQuantities(t *testing.T) {
	backend := &fakeBackend{snapshot: plateSnapshot()}
	backend.submitErr = &NetworkError{Err: errors.New("connection reset")}
	s := startSession(t, backend, Events{})

	s.handleEvent(eventAt("QR-PLATE", 0))
	_ = s.EditDraft(func(d *inspection.Draft) {
		d.Condition = inspection.ConditionGreen
		d.Quantity = 4
		d.Notes = "two chipped"
	})

	err := s.Submit(context.Background())
	var nerr *NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if s.DraftState() != inspection.StateReopenedWithErrors {
		t.Fatalf("expected reopened draft, got %s", s.DraftState())
	}
	d := s.Draft()
	if d == nil || d.Quantity != 4 || d.Notes != "two chipped" {
		t.Fatalf("expected draft fields intact, got %+v", d)
	}
	if s.Items()[0].ScannedQuantity != 0 {
		t.Fatalf("expected no scanned quantity change on failure")
	}
	firstKey := d.IdempotencyKey

	// User-initiated retry of the same draft reuses the idempotency key.
	backend.mu.Lock()
	backend.submitErr = nil
	backend.mu.Unlock()
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	backend.mu.Lock()
	gotKey := backend.submits[0].IdempotencyKey
	backend.mu.Unlock()
	if gotKey != firstKey {
		t.Fatalf("expected retry to reuse idempotency key %q, got %q", firstKey, gotKey)
	}
	if s.Items()[0].ScannedQuantity != 4 {
		t.Fatalf("expected scanned quantity 4 after retry, got %d", s.Items()[0].ScannedQuantity)
	}
}

func TestUnknownCodeIsNonBlockingNotice(t *testing.T) {
	backend := &fakeBackend{snapshot: chairSnapshot()}
	var notices []NoticeKind
	s := startSession(t, backend, Events{
		Notice: func(kind NoticeKind, _, _ string) { notices = append(notices, kind) },
	})

	s.handleEvent(eventAt("QR-NOPE", 0))
	if s.Draft() != nil {
		t.Fatalf("expected no draft for unknown code")
	}
	if len(notices) != 1 || notices[0] != NoticeUnknownCode {
		t.Fatalf("expected unknown code notice, got %v", notices)
	}

	// The busy flag was released; the next decode can still open a draft.
	s.handleEvent(eventAt("QR-CHAIR", 3*time.Second))
	if s.Draft() == nil {
		t.Fatalf("expected draft after notice recovery")
	}
}

func TestAlreadyCompleteItemNeverOpensDraft(t *testing.T) {
	snap := chairSnapshot()
	snap.Items[0].ScannedQuantity = 1
	backend := &fakeBackend{snapshot: snap}
	var notices []NoticeKind
	s := startSession(t, backend, Events{
		Notice: func(kind NoticeKind, _, _ string) { notices = append(notices, kind) },
	})

	s.handleEvent(eventAt("QR-CHAIR", 0))
	if s.Draft() != nil {
		t.Fatalf("expected no draft for complete item")
	}
	if len(notices) != 1 || notices[0] != NoticeAlreadyComplete {
		t.Fatalf("expected already complete notice, got %v", notices)
	}
}

func TestCompletionFailureAllowsExplicitRetry(t *testing.T) {
	backend := &fakeBackend{snapshot: chairSnapshot()}
	backend.completeErr = errors.New("order service down")
	s := startSession(t, backend, Events{})

	s.handleEvent(eventAt("QR-CHAIR", 0))
	_ = s.EditDraft(func(d *inspection.Draft) { d.Condition = inspection.ConditionGreen })

	err := s.Submit(context.Background())
	var cerr *CompletionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CompletionError, got %v", err)
	}
	if s.Completion() != CompletionScanning {
		t.Fatalf("expected completion back at scanning, got %s", s.Completion())
	}
	if p := s.Progress(); p.PercentComplete != 100 {
		t.Fatalf("expected progress to stay at 100, got %d", p.PercentComplete)
	}

	backend.mu.Lock()
	backend.completeErr = nil
	backend.mu.Unlock()
	if err := s.RetryCompletion(context.Background()); err != nil {
		t.Fatalf("retry completion: %v", err)
	}
	if s.Completion() != CompletionCompleted {
		t.Fatalf("expected completed after retry, got %s", s.Completion())
	}
	if backend.completed() != 2 {
		t.Fatalf("expected two completion calls, got %d", backend.completed())
	}
}

func TestCompletionTriggerFiresOnceAcrossBoundaryObservations(t *testing.T) {
	snap := Snapshot{
		OrderID:    42,
		TotalItems: 2,
		Items: []inventory.Item{
			{AssetID: 1, QRCode: "QR-A", AssetName: "A", TrackingMethod: inventory.TrackingIndividual, RequiredQuantity: 1},
			{AssetID: 2, QRCode: "QR-B", AssetName: "B", TrackingMethod: inventory.TrackingIndividual, RequiredQuantity: 1, ScannedQuantity: 1},
		},
	}
	backend := &fakeBackend{snapshot: snap}
	s := startSession(t, backend, Events{})

	s.handleEvent(eventAt("QR-A", 0))
	_ = s.EditDraft(func(d *inspection.Draft) { d.Condition = inspection.ConditionGreen })
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Re-observing progress at the boundary must not re-fire the trigger.
	if p := s.Progress(); p.PercentComplete != 100 {
		t.Fatalf("expected 100%%, got %d", p.PercentComplete)
	}
	if s.markCompletionFired() {
		t.Fatalf("expected one-shot guard to stay latched")
	}
	if backend.completed() != 1 {
		t.Fatalf("expected exactly one completion call, got %d", backend.completed())
	}
}

func TestCancelReleasesPhotoCaptureAndResumes(t *testing.T) {
	backend := &fakeBackend{snapshot: chairSnapshot()}
	s := startSession(t, backend, Events{})

	s.handleEvent(eventAt("QR-CHAIR", 0))
	released := false
	s.AttachPhotoCapture(func() { released = true })

	if err := s.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !released {
		t.Fatalf("expected photo capture released on cancel")
	}
	if s.Draft() != nil {
		t.Fatalf("expected draft discarded on cancel")
	}
	if backend.submitCount() != 0 {
		t.Fatalf("expected no submission on cancel")
	}

	// Scanning can continue after cancel.
	s.handleEvent(eventAt("QR-CHAIR", 5*time.Second))
	if s.Draft() == nil {
		t.Fatalf("expected new draft after cancel")
	}
}

func TestCameraUnavailableFallsBackToManualEntry(t *testing.T) {
	backend := &fakeBackend{snapshot: chairSnapshot()}
	dec := newFeedDecoder()
	dec.openErr = source.ErrCameraUnavailable
	var notices []NoticeKind
	s, err := New(Config{
		OrderID:     42,
		Backend:     backend,
		Decoder:     dec,
		QuietWindow: 2 * time.Second,
		Events: Events{
			Notice: func(kind NoticeKind, _, _ string) { notices = append(notices, kind) },
		},
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected camera failure to be non-fatal, got %v", err)
	}
	t.Cleanup(s.Close)

	if len(notices) != 1 || notices[0] != NoticeCameraUnavailable {
		t.Fatalf("expected camera unavailable notice, got %v", notices)
	}

	s.ManualEntry("QR-CHAIR")
	if s.Draft() == nil {
		t.Fatalf("expected manual entry to open a draft")
	}
}

func TestDecodedEventsFlowThroughSource(t *testing.T) {
	backend := &fakeBackend{snapshot: chairSnapshot()}
	dec := newFeedDecoder()
	s, err := New(Config{
		OrderID:     42,
		Backend:     backend,
		Decoder:     dec,
		QuietWindow: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Close)

	dec.codes <- "QR-CHAIR"
	deadline := time.After(2 * time.Second)
	for s.Draft() == nil {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for draft from decoded event")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRegistryEnforcesOneSessionPerOrder(t *testing.T) {
	backend := &fakeBackend{snapshot: chairSnapshot()}
	r := NewRegistry()
	a := startSession(t, backend, Events{})
	b := startSession(t, backend, Events{})

	if err := r.Add(42, a); err != nil {
		t.Fatalf("add first session: %v", err)
	}
	if err := r.Add(42, b); err == nil {
		t.Fatalf("expected second session for same order to be rejected")
	}
	if got, ok := r.Get(42); !ok || got != a {
		t.Fatalf("expected first session registered")
	}
	r.Remove(42)
	if _, ok := r.Get(42); ok {
		t.Fatalf("expected session removed")
	}
	if err := r.Add(42, b); err != nil {
		t.Fatalf("add after remove: %v", err)
	}
}
