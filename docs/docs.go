// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package docs embeds the gateway's OpenAPI document.
package docs

import _ "embed"

// OpenAPISpec is the OpenAPI 3 document in YAML.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
