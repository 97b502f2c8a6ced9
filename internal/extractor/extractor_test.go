package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/riverdock/contractdesk/internal/domain/errs"
	"github.com/riverdock/contractdesk/internal/platform/logger"
)

func testLogger() *logger.Logger { return logger.New(logger.ModeDev) }

func TestExtractTXT(t *testing.T) {
	e := New(testLogger(), nil)
	got, err := e.Extract(context.Background(), []byte("Section 5. Price: US$ 335/MT FOB\r\n\r\n\r\nNext paragraph."), "contract.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bytes.ContainsRune([]byte(got), '\r') {
		t.Fatal("carriage returns must be stripped")
	}
}

func TestExtractEmptyFails(t *testing.T) {
	e := New(testLogger(), nil)
	_, err := e.Extract(context.Background(), []byte{}, "empty.txt")
	if errs.KindOf(err) != errs.Empty {
		t.Fatalf("want Empty, got %v", err)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	e := New(testLogger(), nil)
	_, err := e.Extract(context.Background(), []byte("x"), "contract.xlsx")
	if errs.KindOf(err) != errs.UnsupportedFormat {
		t.Fatalf("want UnsupportedFormat, got %v", err)
	}
}

func buildMinimalDocx(t *testing.T, bodyXML string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	f, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>` + bodyXML + `</w:body>
</w:document>`
	if _, err := f.Write([]byte(doc)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractDocxParagraph(t *testing.T) {
	body := `<w:p><w:r><w:t>5. Price: US$ 335/MT FOB Donaldsonville</w:t></w:r></w:p>`
	data := buildMinimalDocx(t, body)
	e := New(testLogger(), nil)
	got, err := e.Extract(context.Background(), data, "contract.docx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "5. Price: US$ 335/MT FOB Donaldsonville"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestExtractDocxTable(t *testing.T) {
	body := `<w:tbl>
		<w:tr><w:tc><w:p><w:r><w:t>Rate</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>$10</w:t></w:r></w:p></w:tc></w:tr>
	</w:tbl>`
	data := buildMinimalDocx(t, body)
	e := New(testLogger(), nil)
	got, err := e.Extract(context.Background(), data, "contract.docm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Rate | $10"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestExtractPDFWithoutBackend(t *testing.T) {
	e := New(testLogger(), nil)
	_, err := e.Extract(context.Background(), []byte("%PDF-1.4"), "contract.pdf")
	if errs.KindOf(err) != errs.ExtractFailed {
		t.Fatalf("want ExtractFailed, got %v", err)
	}
}
