// Package extractor implements DocumentExtractor: bytes + filename to
// plain UTF-8 text, dispatching on extension.
package extractor

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/riverdock/contractdesk/internal/domain/errs"
	"github.com/riverdock/contractdesk/internal/platform/logger"
)

// PDFBackend is the pluggable PDF-to-text backend; internal/clients/docai
// implements this against Google Document AI.
type PDFBackend interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// Extractor dispatches a source file to the matching format handler.
type Extractor struct {
	log     *logger.Logger
	pdf     PDFBackend
}

// New builds an Extractor. pdf may be nil; PDF extraction then always fails
// with ExtractFailed, which lets callers that never touch PDF skip wiring a
// Document AI client.
func New(log *logger.Logger, pdf PDFBackend) *Extractor {
	return &Extractor{log: log.With("component", "extractor"), pdf: pdf}
}

// Extract dispatches on filename extension (case-insensitive) and returns
// normalised UTF-8 text: \n paragraph breaks, no carriage returns, collapsed
// whitespace runs.
func (e *Extractor) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", errs.New(errs.Empty, filename, nil)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	var (
		text string
		err  error
	)
	switch ext {
	case ".txt":
		text, err = extractTXT(data)
	case ".docx":
		text, err = extractOfficeXML(data, false)
	case ".docm":
		text, err = extractOfficeXML(data, true)
	case ".pdf":
		text, err = e.extractPDF(ctx, data)
	default:
		return "", errs.New(errs.UnsupportedFormat, ext, nil)
	}
	if err != nil {
		return "", err
	}
	text = normalize(text)
	if strings.TrimSpace(text) == "" {
		return "", errs.New(errs.Empty, filename, nil)
	}
	return text, nil
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte) (string, error) {
	if e.pdf == nil {
		return "", errs.New(errs.ExtractFailed, "no pdf backend configured", nil)
	}
	text, err := e.pdf.ExtractText(ctx, data)
	if err != nil {
		return "", errs.New(errs.ExtractFailed, "pdf backend", err)
	}
	return text, nil
}

func extractTXT(data []byte) (string, error) {
	return string(data), nil
}
