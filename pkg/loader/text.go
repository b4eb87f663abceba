// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package loader

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// extractText returns the content as-is.
func extractText(content []byte) (string, error) {
	return string(content), nil
}

// extractCSV joins each row with tabs and rows with newlines. Malformed CSV
// falls back to the raw text.
func extractCSV(content []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var sb strings.Builder
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return string(content), nil
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.Join(record, "\t"))
	}
	return sb.String(), nil
}

// extractJSON pretty-prints a JSON document so the splitter has line breaks
// to work with.
func extractJSON(content []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, content, "", "  "); err != nil {
		return string(content), nil
	}
	return buf.String(), nil
}

// extractJSONL pretty-prints each line of a JSONL file.
func extractJSONL(content []byte) (string, error) {
	var sb strings.Builder
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(line), "", "  "); err != nil {
			sb.WriteString(line)
			continue
		}
		sb.WriteString(buf.String())
	}
	return sb.String(), nil
}
