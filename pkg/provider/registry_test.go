// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

type fakeBackend struct{ addr string }

func newFake(_ context.Context, params map[string]string) (*fakeBackend, error) {
	if err := Params(params).Require("addr"); err != nil {
		return nil, err
	}
	return &fakeBackend{addr: params["addr"]}, nil
}

func TestRegistry_New(t *testing.T) {
	r := NewRegistry[*fakeBackend]("vector_store")
	r.Register("fake", newFake)

	b, err := r.New(context.Background(), "fake", map[string]string{"addr": "localhost:19530"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.addr != "localhost:19530" {
		t.Errorf("addr = %q", b.addr)
	}
}

func TestRegistry_NewErrors(t *testing.T) {
	r := NewRegistry[*fakeBackend]("vector_store")
	r.Register("fake", newFake)
	r.Register("broken", func(context.Context, map[string]string) (*fakeBackend, error) {
		return nil, errors.New("dial refused")
	})

	tests := []struct {
		name    string
		backend string
		params  map[string]string
		want    string
	}{
		{"unknown", "pinecone", nil, `unknown vector_store provider: "pinecone" (available: [broken fake])`},
		{"missing param", "fake", nil, "vector_store fake: missing required param: addr"},
		{"factory failure", "broken", nil, "vector_store broken: dial refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.New(context.Background(), tt.backend, tt.params)
			if err == nil || err.Error() != tt.want {
				t.Fatalf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestRegistry_Available(t *testing.T) {
	r := NewRegistry[*fakeBackend]("storage")
	for _, name := range []string{"sqlite", "memory", "postgres"} {
		r.Register(name, newFake)
	}
	if got := r.Available(); !slices.Equal(got, []string{"memory", "postgres", "sqlite"}) {
		t.Errorf("Available() = %v", got)
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := NewRegistry[*fakeBackend]("usage")
	r.Register("redis", newFake)

	defer func() {
		v := recover()
		if v == nil || !strings.Contains(v.(string), "registered twice") {
			t.Fatalf("recover() = %v", v)
		}
	}()
	r.Register("redis", newFake)
}
