package returns

type PhotoInput struct {
	Blob     []byte
	MIMEType string
	FileName string
}

// InspectionInput is one inspection submission after form parsing.
type InspectionInput struct {
	OrderID            int64
	QRCode             string
	Condition          string
	Notes              string
	RefurbDaysEstimate int64
	DiscrepancyReason  string
	Quantity           int64
	IdempotencyKey     string
	Photos             []PhotoInput
}

// ItemProgress is one expected-return line as served to scan clients.
type ItemProgress struct {
	AssetID          int64
	QRCode           string
	AssetName        string
	TrackingMethod   string
	RequiredQuantity int64
	ScannedQuantity  int64
}

// ProgressSummary is the derived order-level progress.
type ProgressSummary struct {
	OrderID         int64
	TotalItems      int64
	ItemsScanned    int64
	PercentComplete int
}

// ProgressData is the full return-progress payload for an order.
type ProgressData struct {
	OrderID         int64
	OrderReference  string
	OrderStatus     string
	TotalItems      int64
	ItemsScanned    int64
	PercentComplete int
	Items           []ItemProgress
}

// SubmitOutcome acknowledges one stored inspection.
type SubmitOutcome struct {
	InspectionID int64
	Replayed     bool
	UpdatedItem  ItemProgress
	NewProgress  ProgressSummary
}

type fieldMessage struct {
	Field   string
	Message string
}

type errorResponse struct {
	Error  string
	Fields []fieldMessage
}
