// Package extract turns stored customer files into per-page plain text.
//
// Documents with native text (PDF, DOCX, XLSX) are read page by page
// locally. Images go through OCR and yield a single page. A PDF without a
// text layer falls back to OCR when one is configured.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
)

// MaxFileSize is the largest upload accepted, in bytes.
const MaxFileSize = 25 << 20

// Kind is the extraction strategy for a file.
type Kind string

const (
	KindPDF         Kind = "pdf"
	KindDOCX        Kind = "docx"
	KindXLSX        Kind = "xlsx"
	KindImage       Kind = "image"
	KindUnsupported Kind = "unsupported"
)

var kindsByExt = map[string]Kind{
	".pdf":  KindPDF,
	".docx": KindDOCX,
	".xlsx": KindXLSX,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".png":  KindImage,
	".tiff": KindImage,
	".tif":  KindImage,
	// Accepted for upload, but legacy binary Office formats have no reader.
	".doc": KindUnsupported,
	".xls": KindUnsupported,
}

// AllowedExtensions lists the upload extensions, without dots.
var AllowedExtensions = []string{"jpg", "jpeg", "png", "tiff", "doc", "docx", "pdf", "xls", "xlsx"}

// Allowed reports whether fileName has an accepted upload extension.
func Allowed(fileName string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	return slices.Contains(AllowedExtensions, ext)
}

// KindOf picks the strategy for fileName, sniffing the content when the
// extension is unknown.
func KindOf(fileName string, head []byte) Kind {
	if k, ok := kindsByExt[strings.ToLower(filepath.Ext(fileName))]; ok {
		return k
	}
	switch {
	case bytes.HasPrefix(head, []byte("%PDF")):
		return KindPDF
	case bytes.HasPrefix(head, []byte("\x89PNG")), bytes.HasPrefix(head, []byte("\xff\xd8\xff")):
		return KindImage
	}
	return KindUnsupported
}

// Page is the text of one physical page.
type Page struct {
	Number    int      `json:"page"`
	Text      string   `json:"text"`
	WordCount int      `json:"word_count"`
	Languages []string `json:"languages,omitempty"`
}

// Document is the extraction result for one file.
type Document struct {
	FileName string `json:"file_name"`
	Kind     Kind   `json:"kind"`
	Engine   string `json:"engine"`
	Pages    []Page `json:"pages"`
}

// TotalWords sums the word counts of all pages.
func (d *Document) TotalWords() int {
	total := 0
	for _, p := range d.Pages {
		total += p.WordCount
	}
	return total
}

// Languages is the sorted union of languages detected on any page.
func (d *Document) Languages() []string {
	var langs []string
	for _, p := range d.Pages {
		for _, l := range p.Languages {
			if l != "" && !slices.Contains(langs, l) {
				langs = append(langs, l)
			}
		}
	}
	slices.Sort(langs)
	return langs
}

// OCR recognizes text in images and scanned PDFs.
type OCR interface {
	RecognizeImage(ctx context.Context, data []byte) (Page, error)
	RecognizePDF(ctx context.Context, data []byte) ([]Page, error)
	Name() string
}

// Service dispatches files to the extractor for their type.
type Service struct {
	ocr OCR
}

// NewService creates a Service. ocr may be nil, in which case images and
// scanned PDFs fail with ErrOCRUnavailable.
func NewService(ocr OCR) *Service {
	return &Service{ocr: ocr}
}

// ExtractReader reads at most MaxFileSize bytes from r and extracts them.
func (s *Service) ExtractReader(ctx context.Context, fileName string, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, wrap("read", err, fileName)
	}
	if len(data) > MaxFileSize {
		return nil, wrap("read", ErrFileTooLarge, fmt.Sprintf("%s is over %d bytes", fileName, MaxFileSize))
	}
	return s.Extract(ctx, fileName, data)
}

// Extract returns the pages of data. A document with no words at all is an
// error, never an empty success.
func (s *Service) Extract(ctx context.Context, fileName string, data []byte) (*Document, error) {
	kind := KindOf(fileName, data)
	doc := &Document{FileName: fileName, Kind: kind}

	var err error
	switch kind {
	case KindPDF:
		doc.Engine = "pdfcpu"
		doc.Pages, err = extractPDF(data)
		if err == nil && totalWords(doc.Pages) == 0 && s.ocr != nil {
			doc.Engine = s.ocr.Name()
			doc.Pages, err = s.ocr.RecognizePDF(ctx, data)
		}
	case KindDOCX:
		doc.Engine = "docx"
		doc.Pages, err = extractDOCX(data)
	case KindXLSX:
		doc.Engine = "excelize"
		doc.Pages, err = extractXLSX(data)
	case KindImage:
		if s.ocr == nil {
			return nil, wrap("ocr", ErrOCRUnavailable, fileName)
		}
		doc.Engine = s.ocr.Name()
		var page Page
		page, err = s.ocr.RecognizeImage(ctx, data)
		page.Number = 1
		doc.Pages = []Page{page}
	default:
		return nil, wrap("dispatch", ErrUnsupportedType, filepath.Ext(fileName))
	}
	if err != nil {
		return nil, wrap(string(kind), err, fileName)
	}
	if doc.TotalWords() == 0 {
		return nil, wrap(string(kind), ErrEmptyDocument, fileName)
	}
	return doc, nil
}

func totalWords(pages []Page) int {
	n := 0
	for _, p := range pages {
		n += p.WordCount
	}
	return n
}
