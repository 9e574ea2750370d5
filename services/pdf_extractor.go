package services

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrInsufficientText means the PDF has no usable text layer and needs OCR
	ErrInsufficientText = errors.New("insufficient text extracted from PDF")
	ErrInvalidPDF       = errors.New("invalid PDF file")
)

const (
	// DefaultMaxPDFPages caps uploads; exam papers rarely exceed a few dozen pages
	DefaultMaxPDFPages = 50
	minTextLayerChars  = 50
	// tails shorter than this after %%EOF are left alone
	maxTrailingSlack = 10
)

var (
	pdfMagic  = []byte("%PDF-")
	pdfEOFTag = []byte("%%EOF")
)

// PDFExtractor reads the embedded text layer of a PDF. It is the fallback
// when no OCR service is configured.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// sanitizePDF cuts anything appended after the last %%EOF, which PDFs
// saved from download pages often carry
func sanitizePDF(content []byte) []byte {
	if !bytes.HasPrefix(content, pdfMagic) {
		return content
	}
	eof := bytes.LastIndex(content, pdfEOFTag)
	if eof < 0 {
		return content
	}

	end := eof + len(pdfEOFTag)
	for end < len(content) && (content[end] == '\r' || content[end] == '\n') {
		end++
	}
	if tail := len(content) - end; tail > maxTrailingSlack {
		log.Printf("PDF Extractor: dropping %d trailing bytes after %%%%EOF", tail)
		return content[:end]
	}
	return content
}

func openPDF(content []byte) (*pdf.Reader, error) {
	content = sanitizePDF(content)
	return pdf.NewReader(bytes.NewReader(content), int64(len(content)))
}

// Validate checks the header and page count of an upload and returns the
// page count. maxPages <= 0 disables the page limit.
func (p *PDFExtractor) Validate(content []byte, maxPages int) (int, error) {
	if !bytes.HasPrefix(content, pdfMagic) {
		return 0, fmt.Errorf("%w: missing PDF header", ErrInvalidPDF)
	}
	reader, err := openPDF(content)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	pages := reader.NumPage()
	switch {
	case pages == 0:
		return 0, fmt.Errorf("%w: no pages", ErrInvalidPDF)
	case maxPages > 0 && pages > maxPages:
		return pages, fmt.Errorf("%w: %d pages exceeds the limit of %d", ErrInvalidPDF, pages, maxPages)
	}
	return pages, nil
}

// ExtractText returns the text layer, one row per line with a blank line
// between pages
func (p *PDFExtractor) ExtractText(content []byte) (string, error) {
	if len(content) == 0 {
		return "", errors.New("empty PDF content")
	}
	reader, err := openPDF(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	pages := reader.NumPage()
	if pages == 0 {
		return "", errors.New("PDF has no pages")
	}

	var out strings.Builder
	for i := 1; i <= pages; i++ {
		text, err := pageText(reader.Page(i))
		if err != nil {
			log.Printf("PDF Extractor: skipping page %d: %v", i, err)
			continue
		}
		out.WriteString(text)
		out.WriteString("\n")
	}

	text := strings.TrimSpace(out.String())
	if len(text) < minTextLayerChars {
		return "", fmt.Errorf("%w (%d characters)", ErrInsufficientText, len(text))
	}
	log.Printf("PDF Extractor: extracted %d characters from %d pages", len(text), pages)
	return text, nil
}

// pageText joins each text row of page into a line, falling back to the
// plain text stream when rows cannot be decoded
func pageText(page pdf.Page) (text string, err error) {
	if page.V.IsNull() {
		return "", errors.New("null page")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed page: %v", r)
		}
	}()

	rows, err := page.GetTextByRow()
	if err != nil {
		plain, plainErr := page.GetPlainText(nil)
		if plainErr != nil {
			return "", fmt.Errorf("rows: %v, plain text: %w", err, plainErr)
		}
		return plain + "\n", nil
	}

	var b strings.Builder
	for _, row := range rows {
		var line strings.Builder
		for _, word := range row.Content {
			line.WriteString(word.S)
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
