package pdftext

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page is the plain text of one PDF page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Extract returns the readable pages of a PDF. Pages that fail to decode
// are skipped; a document with no readable text is an error.
func Extract(data []byte) (pages []Page, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty pdf")
	}
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	total := reader.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, perr := page.GetPlainText(nil)
		if perr != nil {
			continue
		}
		text = strings.TrimSpace(strings.ReplaceAll(text, "\x00", ""))
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdf has no extractable text")
	}
	return pages, nil
}
