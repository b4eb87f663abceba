// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package loader

import (
	"bytes"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// extractHTML converts the body of an HTML document to Markdown, one block
// per line, so headings and list items survive as separate lines for the
// splitter. Script, style and noscript elements are dropped.
func extractHTML(content []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return string(content), nil
	}

	doc := goquery.NewDocumentFromNode(root)
	doc.Find("script, style, noscript, template").Remove()

	sel := doc.Find("body")
	if sel.Length() == 0 {
		sel = doc.Selection
	}

	converter := md.NewConverter("", true, nil)
	markdown := converter.Convert(sel)

	var lines []string
	for _, line := range strings.Split(markdown, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
