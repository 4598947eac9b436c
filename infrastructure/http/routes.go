package http

import (
	"returnscan/frontend/assetlabels"
	"returnscan/frontend/returns"
)

// RegisterReturnRoutes wires the return-scan screens and the JSON API the
// scan clients drive.
func (s *Server) RegisterReturnRoutes() {
	s.router.Get("/scan/orders", returns.OrdersPageQueryHandler(s.DB))
	s.router.Get("/scan/orders/{orderID}", returns.ScanPageQueryHandler(s.DB))

	s.router.Get("/api/orders/{orderID}/return-progress", returns.ReturnProgressQueryHandler(s.DB))
	s.router.Post("/api/orders/{orderID}/inspections", returns.CreateInspectionCommandHandler(s.DB, s.Audit))
	s.router.Post("/api/orders/{orderID}/complete-return", returns.CompleteReturnCommandHandler(s.DB, s.Audit))
	s.router.Get("/api/orders/{orderID}/inspections/{inspectionID}/photos/{photoID}", returns.InspectionPhotoQueryHandler(s.DB))
}

// RegisterLabelRoutes wires the printable QR label PDFs.
func (s *Server) RegisterLabelRoutes() {
	s.router.Get("/assets/{assetID}/label.pdf", assetlabels.AssetLabelQueryHandler(s.DB))
	s.router.Get("/orders/{orderID}/asset-labels.pdf", assetlabels.OrderAssetLabelsQueryHandler(s.DB))
}
