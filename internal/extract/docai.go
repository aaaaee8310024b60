// Document AI tier of the extraction chain.
//
// Wraps the Google Cloud Document AI online processor. Text is rebuilt
// paragraph by paragraph from the layout text anchors rather than taken from
// the raw text dump: paragraph-aware reconstruction reads better downstream,
// where the text is fed to a language model. The raw dump remains as an
// in-tier fallback when the layout yields (almost) nothing.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/tbourn/go-contract-backend/internal/config"
)

// maxCloudFileBytes is the Document AI online-processing limit. Larger files
// skip the cloud tier entirely.
const maxCloudFileBytes = 20 << 20

// DocAIExtractor is the cloud OCR tier. Construct with NewDocAI; a nil
// *DocAIExtractor is a valid "not configured" value for the Unified chain.
type DocAIExtractor struct {
	client        *documentai.DocumentProcessorClient
	processorName string
	log           zerolog.Logger
}

// NewDocAI builds the Document AI client for the configured processor.
// Returns (nil, nil) when the required settings are absent — the caller is
// expected to run with only the local fallback in that case.
func NewDocAI(ctx context.Context, cfg config.DocAIConfig, log zerolog.Logger) (*DocAIExtractor, error) {
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, nil
	}
	location := cfg.Location
	if location == "" {
		location = "us"
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)

	client, err := documentai.NewDocumentProcessorClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		cfg.ProjectID, location, cfg.ProcessorID)

	log.Info().Str("endpoint", endpoint).Msg("Document AI initialized")
	return &DocAIExtractor{client: client, processorName: name, log: log}, nil
}

// Close releases the underlying gRPC connection.
func (e *DocAIExtractor) Close() error {
	if e == nil || e.client == nil {
		return nil
	}
	return e.client.Close()
}

// Extract submits the file bytes for online processing and reconstructs the
// text. Errors are returned to the chain, which demotes them to the local
// fallback; this method never decides terminality on its own.
func (e *DocAIExtractor) Extract(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat upload: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("file is empty: %s", path)
	}
	if info.Size() > maxCloudFileBytes {
		return "", fmt.Errorf("file too large for Document AI: %d bytes", info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}

	resp, err := e.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: e.processorName,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeTypeFor(path),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("documentai process: %w", err)
	}
	doc := resp.GetDocument()

	text := layoutText(doc)
	if usable(text) {
		e.log.Info().Int("chars", len(text)).Msg("Document AI extraction successful")
		return text, nil
	}

	// Layout reconstruction came up near-empty; fall back to the raw dump.
	raw := strings.TrimSpace(doc.GetText())
	if usable(raw) {
		e.log.Info().Int("chars", len(raw)).Msg("using Document AI raw text fallback")
		return raw, nil
	}
	return "", nil
}

// layoutText rebuilds text from the page/paragraph layout, slicing each
// paragraph's text anchor out of the full document text and joining the
// paragraphs with blank lines in reading order.
func layoutText(doc *documentaipb.Document) string {
	full := doc.GetText()
	var paragraphs []string
	for _, page := range doc.GetPages() {
		for _, para := range page.GetParagraphs() {
			var sb strings.Builder
			for _, seg := range para.GetLayout().GetTextAnchor().GetTextSegments() {
				start, end := seg.GetStartIndex(), seg.GetEndIndex()
				if start < 0 || end > int64(len(full)) || start >= end {
					continue
				}
				sb.WriteString(full[start:end])
			}
			if p := strings.TrimSpace(sb.String()); p != "" {
				paragraphs = append(paragraphs, p)
			}
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// mimeTypeFor maps a file extension to the MIME type Document AI expects.
// Unknown extensions default to PDF, the only type the upload endpoint
// accepts anyway.
func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tiff", ".tif":
		return "image/tiff"
	case ".bmp":
		return "image/bmp"
	case ".webp":
		return "image/webp"
	default:
		return "application/pdf"
	}
}
