package assetlabels

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/qr"
	"github.com/jung-kurt/gofpdf"
)

// AssetLabelData is one printable QR label.
type AssetLabelData struct {
	AssetID        int64
	QRCode         string
	Name           string
	TrackingMethod string
}

// renderAssetLabelsPDF renders one A6 landscape label per asset: the QR code
// the scan screen decodes, the asset name alongside, and a code128 strip for
// handheld 1D scanners.
func renderAssetLabelsPDF(labels []AssetLabelData, printedAt time.Time) ([]byte, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels to render")
	}

	pdf := gofpdf.New("L", "mm", "A6", "")
	pdf.SetTitle("Asset Labels", false)
	pdf.SetAutoPageBreak(false, 0)

	for _, label := range labels {
		qrPNG, err := renderQRPNG(label.QRCode, 600)
		if err != nil {
			return nil, err
		}

		pdf.AddPage()
		pageW, pageH := pdf.GetPageSize()
		margin := 6.0

		pdf.SetLineWidth(0.35)
		pdf.Rect(margin, margin, pageW-2*margin, pageH-2*margin, "")

		qrSize := pageH - 2*margin - 8
		qrX := margin + 4
		qrY := margin + 4
		opt := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
		imageName := fmt.Sprintf("asset-qr-%d", label.AssetID)
		pdf.RegisterImageOptionsReader(imageName, opt, bytes.NewReader(qrPNG))
		pdf.ImageOptions(imageName, qrX, qrY, qrSize, qrSize, false, opt, 0, "")

		textX := qrX + qrSize + 6
		textW := pageW - margin - 4 - textX

		name := strings.TrimSpace(label.Name)
		if name == "" {
			name = "Unnamed Asset"
		}
		nameFont := fitFontSizeForWidth(pdf, "Helvetica", "B", 22, 11, name, textW)
		pdf.SetFont("Helvetica", "B", nameFont)
		pdf.SetXY(textX, qrY+4)
		pdf.CellFormat(textW, 10, name, "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "B", 14)
		pdf.SetXY(textX, qrY+18)
		pdf.CellFormat(textW, 8, label.QRCode, "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "", 10)
		pdf.SetXY(textX, qrY+30)
		pdf.CellFormat(textW, 6, "Tracking: "+label.TrackingMethod, "", 1, "L", false, 0, "")
		pdf.SetXY(textX, qrY+37)
		pdf.CellFormat(textW, 6, "Printed: "+printedAt.Format("02/01/2006"), "", 1, "L", false, 0, "")

		barPNG, err := renderCode128PNG(label.QRCode, 600, 120)
		if err != nil {
			return nil, err
		}
		barName := fmt.Sprintf("asset-bar-%d", label.AssetID)
		pdf.RegisterImageOptionsReader(barName, opt, bytes.NewReader(barPNG))
		pdf.ImageOptions(barName, textX, qrY+46, textW, 12, false, opt, 0, "")
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func fitFontSizeForWidth(pdf *gofpdf.Fpdf, family, style string, base, min float64, text string, maxWidth float64) float64 {
	if maxWidth <= 0 {
		return min
	}
	size := base
	pdf.SetFont(family, style, size)
	for size > min && pdf.GetStringWidth(text) > maxWidth {
		size -= 0.5
		pdf.SetFont(family, style, size)
	}
	return size
}

func renderQRPNG(value string, size int) ([]byte, error) {
	code, err := qr.Encode(value, qr.M, qr.Auto)
	if err != nil {
		return nil, err
	}
	scaled, err := barcode.Scale(code, size, size)
	if err != nil {
		return nil, err
	}
	normalized := toNRGBA(scaled)
	var qrPNG bytes.Buffer
	if err := png.Encode(&qrPNG, normalized); err != nil {
		return nil, err
	}
	return qrPNG.Bytes(), nil
}

func renderCode128PNG(value string, width, height int) ([]byte, error) {
	code, err := code128.Encode(value)
	if err != nil {
		return nil, err
	}
	scaled, err := barcode.Scale(code, width, height)
	if err != nil {
		return nil, err
	}
	var barPNG bytes.Buffer
	if err := png.Encode(&barPNG, toNRGBA(scaled)); err != nil {
		return nil, err
	}
	return barPNG.Bytes(), nil
}

func toNRGBA(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
	return dst
}
