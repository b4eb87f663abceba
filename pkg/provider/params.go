// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Params gives typed access to the settings passed to a Factory. Empty
// values count as unset.
type Params map[string]string

// Get returns the value of key, or def when it is unset.
func (p Params) Get(key, def string) string {
	if v := strings.TrimSpace(p[key]); v != "" {
		return v
	}
	return def
}

// Require fails when any of keys is unset.
func (p Params) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(p[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required param: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Int parses key as a base-10 integer.
func (p Params) Int(key string, def int) (int, error) {
	v := p.Get(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("param %s: invalid integer %q", key, v)
	}
	return n, nil
}

// Duration parses key as a Go duration ("720h") or a number of seconds.
func (p Params) Duration(key string, def time.Duration) (time.Duration, error) {
	v := p.Get(key, "")
	if v == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("param %s: invalid duration %q", key, v)
	}
	return time.Duration(secs) * time.Second, nil
}
