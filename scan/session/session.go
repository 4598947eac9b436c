// Package session drives one return-scan session end to end: it feeds code
// events through the debounce filter into the inventory model, owns the single
// in-flight inspection, submits finalized inspections to the backend and fires
// the order-completion transition exactly once.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"returnscan/scan/debounce"
	"returnscan/scan/inspection"
	"returnscan/scan/inventory"
	"returnscan/scan/source"
)

// CompletionState tracks the order-closing trigger.
type CompletionState string

const (
	CompletionScanning   CompletionState = "scanning"
	CompletionCompleting CompletionState = "completing"
	CompletionCompleted  CompletionState = "completed"
)

// NoticeKind classifies non-blocking notices surfaced to the UI.
type NoticeKind string

const (
	NoticeUnknownCode       NoticeKind = "unknown_code"
	NoticeAlreadyComplete   NoticeKind = "already_complete"
	NoticeCameraUnavailable NoticeKind = "camera_unavailable"
)

// Events are the callbacks a surrounding UI may register. Internal draft state
// is never exposed through them. All callbacks are optional.
type Events struct {
	Notice              func(kind NoticeKind, code, message string)
	InspectionFinalized func(assetID int64, condition, itemStatus string)
	ProgressChanged     func(p inventory.Progress)
	OrderCompleted      func(newStatus string)
}

// Config assembles a session.
type Config struct {
	OrderID       int64
	Backend       Backend
	Decoder       source.Decoder
	QuietWindow   time.Duration
	SubmitTimeout time.Duration
	Events        Events
	Logger        *slog.Logger

	// NewKey mints the idempotency key attached to each draft; defaults to
	// uuid.NewString. The key is reused across user retries of the same draft
	// so a write applied before a lost response is never applied twice.
	NewKey func() string
}

// Session is one live return-scan session for one order.
type Session struct {
	orderID       int64
	backend       Backend
	src           *source.Source
	filter        *debounce.Filter
	machine       *inspection.Machine
	events        Events
	log           *slog.Logger
	submitTimeout time.Duration
	newKey        func() string

	// procMu serializes event resolution so events are handled strictly in
	// the order the filter forwards them.
	procMu sync.Mutex

	mu              sync.Mutex
	inv             *inventory.Model
	completionState CompletionState
	completionFired bool
	terminated      bool
	releasePhotoCam func()
}

// New builds a session; Start must be called before events flow.
func New(cfg Config) (*Session, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("session backend is required")
	}
	if cfg.Decoder == nil {
		return nil, fmt.Errorf("session decoder is required")
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 15 * time.Second
	}
	if cfg.NewKey == nil {
		cfg.NewKey = uuid.NewString
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{
		orderID:         cfg.OrderID,
		backend:         cfg.Backend,
		src:             source.New(cfg.Decoder),
		filter:          debounce.New(cfg.QuietWindow),
		machine:         inspection.NewMachine(),
		events:          cfg.Events,
		log:             cfg.Logger,
		submitTimeout:   cfg.SubmitTimeout,
		newKey:          cfg.NewKey,
		completionState: CompletionScanning,
	}, nil
}

// Start loads the order snapshot and begins consuming decode events. A camera
// failure is surfaced as a notice and the session continues manual-only; it
// never corrupts session state.
func (s *Session) Start(ctx context.Context) error {
	snap, err := s.backend.GetReturnProgress(ctx, s.orderID)
	if err != nil {
		return fmt.Errorf("load return progress: %w", err)
	}

	s.mu.Lock()
	s.inv = inventory.NewModel(s.orderID, snap.Items)
	s.mu.Unlock()

	if err := s.src.Start(ctx); err != nil {
		if errors.Is(err, source.ErrCameraUnavailable) {
			s.log.Warn("camera unavailable, manual entry only",
				slog.Int64("order_id", s.orderID), slog.Any("err", err))
			s.notify(NoticeCameraUnavailable, "", "camera unavailable; use manual entry")
			return nil
		}
		return err
	}

	// The source closes its event channel once stopped, ending this loop.
	go func() {
		for ev := range s.src.Events() {
			s.handleEvent(ev)
		}
	}()
	return nil
}

// ManualEntry feeds a manually typed code through the same resolution path as
// camera decodes. It bypasses the quiet window but still respects the busy
// flag.
func (s *Session) ManualEntry(code string) {
	s.handleEvent(source.Event{Code: code, Manual: true, At: time.Now()})
}

func (s *Session) handleEvent(ev source.Event) {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	if s.isTerminated() {
		return
	}
	if !s.filter.Accept(ev) {
		return
	}

	item, err := s.model().Resolve(ev.Code)
	if err != nil {
		s.notify(NoticeUnknownCode, ev.Code, "code matches no item in this order")
		s.filter.Release()
		return
	}
	if item.Complete() {
		s.notify(NoticeAlreadyComplete, ev.Code, fmt.Sprintf("%s is already fully scanned", item.AssetName))
		s.filter.Release()
		return
	}

	// The code source stays paused for as long as the draft is alive; the
	// busy flag keeps manual entries out for the same span.
	s.src.Pause()
	if _, err := s.machine.Open(item, s.newKey()); err != nil {
		s.log.Error("open inspection draft failed",
			slog.Int64("order_id", s.orderID), slog.String("code", ev.Code), slog.Any("err", err))
		s.filter.Release()
		s.src.Resume()
	}
}

// Draft returns a copy of the live draft for display, or nil.
func (s *Session) Draft() *inspection.Draft {
	return s.machine.Draft()
}

// EditDraft mutates the open draft.
func (s *Session) EditDraft(fn func(*inspection.Draft)) error {
	return s.machine.Edit(fn)
}

// DraftState exposes the inspection machine state.
func (s *Session) DraftState() inspection.State {
	return s.machine.State()
}

// AttachPhotoCapture registers the release hook for a damage-photo camera the
// UI opened for the current draft. It is invoked on cancel and on Close.
func (s *Session) AttachPhotoCapture(release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releasePhotoCam = release
}

// Submit validates and submits the open draft. On success the scan is applied
// to the inventory model, progress is recomputed and the completion trigger
// fires exactly once when 100% is first reached. On failure the draft stays
// open with every field intact.
func (s *Session) Submit(ctx context.Context) error {
	draft, fieldErrs := s.machine.BeginSubmit()
	if len(fieldErrs) > 0 {
		return &ValidationError{Fields: fieldErrs}
	}

	req := SubmitRequest{
		QRCode:             draft.QRCode,
		Condition:          draft.Condition,
		Notes:              draft.Notes,
		Photos:             draft.Photos,
		RefurbDaysEstimate: draft.RefurbDaysEstimate,
		DiscrepancyReason:  draft.DiscrepancyReason,
		Quantity:           draft.Quantity,
		IdempotencyKey:     draft.IdempotencyKey,
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()
	res, err := s.backend.SubmitInspection(submitCtx, s.orderID, req)
	if err != nil {
		err = classifySubmitErr(err)
		s.machine.FinishSubmit(err)
		s.log.Warn("inspection submission failed",
			slog.Int64("order_id", s.orderID), slog.String("code", draft.QRCode), slog.Any("err", err))
		return err
	}
	s.machine.FinishSubmit(nil)

	item, prog := s.model().ApplyScan(draft.QRCode, draft.ConfirmedQuantity())
	updated := res.UpdatedItem
	if updated.QRCode == "" {
		updated = item
	}
	itemStatus := "partial"
	if updated.Complete() {
		itemStatus = "complete"
	}
	if s.events.InspectionFinalized != nil {
		s.events.InspectionFinalized(draft.AssetID, draft.Condition, itemStatus)
	}
	if s.events.ProgressChanged != nil {
		s.events.ProgressChanged(prog)
	}

	s.releasePhoto()
	s.filter.Release()
	s.src.Resume()

	if prog.PercentComplete == 100 && s.markCompletionFired() {
		return s.complete(ctx)
	}
	return nil
}

// Cancel discards the open draft without submitting, releases any photo
// capture resource and resumes the code source.
func (s *Session) Cancel() error {
	if err := s.machine.Cancel(); err != nil {
		return err
	}
	s.releasePhoto()
	s.filter.Release()
	s.src.Resume()
	return nil
}

// RetryCompletion re-attempts the order-closing call after a CompletionError.
// It is only valid while progress sits at 100% and the session is scanning.
func (s *Session) RetryCompletion(ctx context.Context) error {
	s.mu.Lock()
	if s.completionState != CompletionScanning {
		s.mu.Unlock()
		return fmt.Errorf("completion is not retryable in state %s", s.completionState)
	}
	s.mu.Unlock()
	if s.model().Progress().PercentComplete != 100 {
		return fmt.Errorf("order is not fully scanned")
	}
	return s.complete(ctx)
}

func (s *Session) complete(ctx context.Context) error {
	s.mu.Lock()
	s.completionState = CompletionCompleting
	s.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()
	status, err := s.backend.CompleteReturnScan(callCtx, s.orderID)
	if err != nil {
		// Applied quantities are never rolled back; the user retries
		// completion explicitly.
		s.mu.Lock()
		s.completionState = CompletionScanning
		s.mu.Unlock()
		cerr := &CompletionError{Err: err}
		s.log.Error("order completion failed", slog.Int64("order_id", s.orderID), slog.Any("err", err))
		return cerr
	}

	s.mu.Lock()
	s.completionState = CompletionCompleted
	s.terminated = true
	s.mu.Unlock()
	s.src.Stop()
	if s.events.OrderCompleted != nil {
		s.events.OrderCompleted(status)
	}
	return nil
}

// Progress returns the current derived progress.
func (s *Session) Progress() inventory.Progress {
	return s.model().Progress()
}

// Items returns the expected-return lines in manifest order.
func (s *Session) Items() []inventory.Item {
	return s.model().Items()
}

// Completion returns the completion trigger state.
func (s *Session) Completion() CompletionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completionState
}

// Close terminates the session and releases every held resource.
func (s *Session) Close() {
	s.mu.Lock()
	s.terminated = true
	s.mu.Unlock()
	s.releasePhoto()
	s.src.Stop()
}

func (s *Session) model() *inventory.Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inv
}

func (s *Session) isTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// markCompletionFired flips the one-shot guard; progress recomputation can be
// observed more than once around the 100% boundary.
func (s *Session) markCompletionFired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completionFired {
		return false
	}
	s.completionFired = true
	return true
}

func (s *Session) releasePhoto() {
	s.mu.Lock()
	release := s.releasePhotoCam
	s.releasePhotoCam = nil
	s.mu.Unlock()
	if release != nil {
		release()
	}
}

func (s *Session) notify(kind NoticeKind, code, message string) {
	if s.events.Notice != nil {
		s.events.Notice(kind, code, message)
	}
}

func classifySubmitErr(err error) error {
	var rejected *RejectedError
	var network *NetworkError
	switch {
	case errors.As(err, &rejected), errors.As(err, &network):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &NetworkError{Err: err}
	default:
		return &NetworkError{Err: err}
	}
}
