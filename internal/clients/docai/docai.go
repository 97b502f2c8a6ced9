// Package docai wraps Google Document AI as the DocumentExtractor's
// pluggable PDF backend, grounded on the teacher's
// platform/gcp document service wrapper: ProcessBytes for the hot path and
// a GCS batch mode for backfills.
package docai

import (
	"context"
	"fmt"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	documentaipb "cloud.google.com/go/documentai/apiv1/documentaipb"
	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/riverdock/contractdesk/internal/platform/logger"
)

// Config names the GCP resources this backend talks to.
type Config struct {
	ProjectID   string
	Location    string
	ProcessorID string
	ClientOpts  []option.ClientOption
}

// Backend implements extractor.PDFBackend against Document AI.
type Backend struct {
	log    *logger.Logger
	cfg    Config
	docCli *documentai.DocumentProcessorClient
	gcsCli *storage.Client
}

// New dials the Document AI and GCS clients. Both are created eagerly so
// misconfiguration surfaces at startup rather than mid-scan.
func New(ctx context.Context, log *logger.Logger, cfg Config) (*Backend, error) {
	docCli, err := documentai.NewDocumentProcessorClient(ctx, cfg.ClientOpts...)
	if err != nil {
		return nil, fmt.Errorf("docai: new document processor client: %w", err)
	}
	gcsCli, err := storage.NewClient(ctx, cfg.ClientOpts...)
	if err != nil {
		return nil, fmt.Errorf("docai: new storage client: %w", err)
	}
	return &Backend{log: log.With("component", "docai"), cfg: cfg, docCli: docCli, gcsCli: gcsCli}, nil
}

func (b *Backend) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", b.cfg.ProjectID, b.cfg.Location, b.cfg.ProcessorID)
}

// ExtractText satisfies extractor.PDFBackend: synchronous online processing
// of a single PDF's raw bytes, returning layout-preserved text with tables
// rendered as pipe-delimited rows.
func (b *Backend) ExtractText(ctx context.Context, data []byte) (string, error) {
	req := &documentaipb.ProcessRequest{
		Name: b.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: "application/pdf",
			},
		},
	}
	resp, err := b.docCli.ProcessDocument(ctx, req)
	if err != nil {
		return "", fmt.Errorf("docai: process document: %w", err)
	}
	return renderDocument(resp.GetDocument()), nil
}

// BatchProcessGCS submits a batch job over every PDF object under
// gcsInputPrefix, writing results under gcsOutputPrefix, for backfill
// re-ingestion of an entire SharePoint folder at once rather than one
// online call per file.
func (b *Backend) BatchProcessGCS(ctx context.Context, bucket, gcsInputPrefix, gcsOutputPrefix string) error {
	req := &documentaipb.BatchProcessRequest{
		Name: b.processorName(),
		InputDocuments: &documentaipb.BatchDocumentsInputConfig{
			Source: &documentaipb.BatchDocumentsInputConfig_GcsPrefix{
				GcsPrefix: &documentaipb.GcsPrefix{GcsUriPrefix: fmt.Sprintf("gs://%s/%s", bucket, gcsInputPrefix)},
			},
		},
		DocumentOutputConfig: &documentaipb.DocumentOutputConfig{
			Destination: &documentaipb.DocumentOutputConfig_GcsOutputConfig_{
				GcsOutputConfig: &documentaipb.DocumentOutputConfig_GcsOutputConfig{
					GcsUri: fmt.Sprintf("gs://%s/%s", bucket, gcsOutputPrefix),
				},
			},
		},
	}
	op, err := b.docCli.BatchProcessDocuments(ctx, req)
	if err != nil {
		return fmt.Errorf("docai: batch process: %w", err)
	}
	if _, err := op.Wait(ctx); err != nil {
		return fmt.Errorf("docai: batch process wait: %w", err)
	}
	return nil
}

// listBatchOutputs enumerates the result objects a batch job wrote, for a
// caller that wants to stitch per-file text back together after a batch
// run completes.
func (b *Backend) listBatchOutputs(ctx context.Context, bucket, prefix string) ([]string, error) {
	var names []string
	it := b.gcsCli.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("docai: list batch outputs: %w", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// Close releases both clients.
func (b *Backend) Close() error {
	err1 := b.docCli.Close()
	err2 := b.gcsCli.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// renderDocument concatenates page text in order, rendering any detected
// table as pipe-delimited rows, the way the teacher's buildDocAIResult
// renders tables to markdown.
func renderDocument(doc *documentaipb.Document) string {
	if doc == nil {
		return ""
	}
	text := doc.GetText()
	var blocks []string
	for _, page := range doc.GetPages() {
		for _, para := range page.GetParagraphs() {
			blocks = append(blocks, textFromAnchor(text, para.GetLayout().GetTextAnchor()))
		}
		for _, table := range page.GetTables() {
			blocks = append(blocks, tableToMarkdown(text, table))
		}
	}
	return strings.Join(blocks, "\n")
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	var b strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := seg.GetStartIndex(), seg.GetEndIndex()
		if start < 0 || end > int64(len(full)) || start > end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return strings.TrimSpace(b.String())
}

func tableToMarkdown(full string, table *documentaipb.Document_Page_Table) string {
	var rows []string
	for _, row := range table.GetHeaderRows() {
		rows = append(rows, rowToMarkdown(full, row))
	}
	for _, row := range table.GetBodyRows() {
		rows = append(rows, rowToMarkdown(full, row))
	}
	return strings.Join(rows, "\n")
}

func rowToMarkdown(full string, row *documentaipb.Document_Page_Table_TableRow) string {
	var cells []string
	for _, cell := range row.GetCells() {
		cells = append(cells, textFromAnchor(full, cell.GetLayout().GetTextAnchor()))
	}
	return strings.Join(cells, " | ")
}
