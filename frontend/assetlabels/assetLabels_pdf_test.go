package assetlabels

import (
	"bytes"
	"testing"
	"time"
)

func TestRenderAssetLabelsPDF(t *testing.T) {
	labels := []AssetLabelData{
		{AssetID: 1, QRCode: "QR-CHAIR", Name: "Chair", TrackingMethod: "INDIVIDUAL"},
		{AssetID: 2, QRCode: "QR-PLATE", Name: "Plate", TrackingMethod: "BATCH"},
	}
	printedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	pdfBytes, err := renderAssetLabelsPDF(labels, printedAt)
	if err != nil {
		t.Fatalf("render labels: %v", err)
	}
	if !bytes.HasPrefix(pdfBytes, []byte("%PDF")) {
		t.Fatalf("expected PDF output")
	}
	if len(pdfBytes) < 1000 {
		t.Fatalf("suspiciously small PDF: %d bytes", len(pdfBytes))
	}
}

func TestRenderAssetLabelsPDF_EmptyInput(t *testing.T) {
	if _, err := renderAssetLabelsPDF(nil, time.Now()); err == nil {
		t.Fatalf("expected error for empty label set")
	}
}

func TestRenderQRPNG(t *testing.T) {
	png, err := renderQRPNG("QR-CHAIR", 300)
	if err != nil {
		t.Fatalf("render qr: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("expected PNG output")
	}
}
