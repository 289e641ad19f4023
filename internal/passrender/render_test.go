package passrender

import (
	"bytes"
	"testing"
	"time"

	"estate/amenity-service/internal/models"
)

func testPass() models.VisitorPass {
	issued := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	return models.VisitorPass{
		PassID:      "pass-1",
		Code:        "AB3XK9",
		VisitorName: "Dana",
		Status:      models.PassActive,
		CreatedAt:   issued,
		ExpiresAt:   issued.Add(30 * time.Minute),
	}
}

func TestQRCode(t *testing.T) {
	png, err := QRCode(testPass())
	if err != nil {
		t.Fatalf("qr code: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatalf("expected a PNG image")
	}
}

func TestPrintablePass(t *testing.T) {
	pdf, err := PrintablePass(testPass(), time.FixedZone("ICT", 7*60*60))
	if err != nil {
		t.Fatalf("printable pass: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Fatalf("expected a PDF document")
	}
}
