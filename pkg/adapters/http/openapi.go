// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/leseb/docchat-gw/docs"
	"gopkg.in/yaml.v3"
)

// openAPIJSON converts the embedded YAML document once.
var openAPIJSON = sync.OnceValues(func() ([]byte, error) {
	var spec any
	if err := yaml.Unmarshal(docs.OpenAPISpec, &spec); err != nil {
		return nil, fmt.Errorf("parse openapi.yaml: %w", err)
	}
	return json.Marshal(spec)
})

// handleOpenAPI serves the OpenAPI document as JSON.
func (h *Handler) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	data, err := openAPIJSON()
	if err != nil {
		h.logger.Error("Failed to load OpenAPI document", "error", err)
		h.writeError(w, http.StatusInternalServerError, "spec_error", "Failed to load OpenAPI spec")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
