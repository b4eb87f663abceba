// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package loader

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// extractPDFPages returns the plain text of every page. Pages that are empty
// or fail to decode keep their slot with empty text so page numbers stay
// aligned with the source document.
func extractPDFPages(content []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	numPages := reader.NumPage()
	pages := make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i-1] = text
	}

	return pages, nil
}
