package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/riverdock/contractdesk/internal/domain/errs"
)

// extractOfficeXML unpacks a DOCX/DOCM zip container and walks
// word/document.xml, interleaving paragraphs and tables in document order.
// VBA project parts are ignored for both formats (DOCM macros are never
// interpreted, only the text body is read).
func extractOfficeXML(data []byte, isMacroEnabled bool) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errs.New(errs.ExtractFailed, "not a valid zip container", err)
	}
	raw, err := readZipFile(zr, "word/document.xml")
	if err != nil {
		return "", errs.New(errs.ExtractFailed, "word/document.xml not found", err)
	}
	body, err := walkDocumentBody(raw)
	if err != nil {
		return "", errs.New(errs.ExtractFailed, "malformed document.xml", err)
	}
	return body, nil
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, errNotFound(name)
}

type notFoundErr string

func (e notFoundErr) Error() string { return "zip entry not found: " + string(e) }
func errNotFound(name string) error { return notFoundErr(name) }

// blockKind distinguishes the two block-level elements this walk cares
// about inside the document body: paragraphs and tables.
type blockKind int

const (
	blockParagraph blockKind = iota
	blockTable
)

// walkDocumentBody is a state machine over xml.Token that reconstructs
// paragraphs (runs concatenated, dropping formatting) and tables (rendered
// as pipe-delimited rows) in document order.
func walkDocumentBody(raw []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))

	var blocks []string
	var curPara strings.Builder
	inPara := false

	var curTable [][]string
	var curRow []string
	var curCell strings.Builder
	inTable := false
	inRow := false
	inCell := false

	flushPara := func() {
		text := strings.TrimSpace(curPara.String())
		if text != "" {
			blocks = append(blocks, text)
		}
		curPara.Reset()
	}
	flushTable := func() {
		if len(curTable) == 0 {
			return
		}
		var rows []string
		for _, row := range curTable {
			rows = append(rows, strings.Join(row, " | "))
		}
		blocks = append(blocks, strings.Join(rows, "\n"))
		curTable = nil
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch localName(t.Name) {
			case "tbl":
				inTable = true
			case "tr":
				if inTable {
					inRow = true
					curRow = nil
				}
			case "tc":
				if inRow {
					inCell = true
					curCell.Reset()
				}
			case "p":
				if inTable && !inRow {
					// paragraph directly inside a table cell's neighbor content; ignore
					continue
				}
				if !inTable {
					inPara = true
					curPara.Reset()
				}
			case "t":
				// text runs handled via CharData below; nothing to do on start.
			}
		case xml.EndElement:
			switch localName(t.Name) {
			case "p":
				if inTable && inCell {
					curCell.WriteString(" ")
				} else if !inTable {
					flushPara()
					inPara = false
				}
			case "tc":
				if inCell {
					curRow = append(curRow, strings.TrimSpace(curCell.String()))
					inCell = false
				}
			case "tr":
				if inRow {
					curTable = append(curTable, curRow)
					inRow = false
				}
			case "tbl":
				flushTable()
				inTable = false
			}
		case xml.CharData:
			if inCell {
				curCell.Write(t)
			} else if inPara {
				curPara.Write(t)
			}
		}
	}
	flushPara()
	flushTable()
	return strings.Join(blocks, "\n"), nil
}

func localName(n xml.Name) string {
	if i := strings.LastIndexByte(n.Local, ':'); i >= 0 {
		return n.Local[i+1:]
	}
	return n.Local
}
