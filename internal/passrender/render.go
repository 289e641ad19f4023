// Package passrender turns a visitor pass into something a visitor can show
// at the gate: a QR image or a printable page.
package passrender

import (
	"bytes"
	"fmt"
	"time"

	"estate/amenity-service/internal/models"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// QRPayload is what the gate scanner reads. It is the bare code so that a
// scanned and a typed code verify the same way.
func QRPayload(pass models.VisitorPass) string {
	return pass.Code
}

// QRCode renders the pass code as a PNG.
func QRCode(pass models.VisitorPass) ([]byte, error) {
	png, err := qrcode.Encode(QRPayload(pass), qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// PrintablePass renders an A4 page with the pass details and its QR code.
// Times are shown in location.
func PrintablePass(pass models.VisitorPass, location *time.Location) ([]byte, error) {
	if location == nil {
		location = time.UTC
	}
	png, err := QRCode(pass)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Visitor pass "+pass.Code, false)
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 18)
	pdf.Cell(0, 10, "Visitor Pass")
	pdf.Ln(14)

	pdf.SetFont("Arial", "", 12)
	visitor := pass.VisitorName
	if visitor == "" {
		visitor = "-"
	}
	lines := []string{
		"Code: " + pass.Code,
		"Visitor: " + visitor,
		"Apartment: " + orDash(pass.ApartmentID),
		"Issued: " + pass.CreatedAt.In(location).Format("2006-01-02 15:04 MST"),
		"Valid until: " + pass.ExpiresAt.In(location).Format("2006-01-02 15:04 MST"),
		"Status: " + pass.Status,
	}
	for _, line := range lines {
		pdf.Cell(0, 8, line)
		pdf.Ln(8)
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(png))
	pdf.ImageOptions("qr", 140, 30, 50, 50, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
