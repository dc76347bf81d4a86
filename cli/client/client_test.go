package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/importsize/importsize/internal/bundler"
	"github.com/importsize/importsize/internal/entry"
)

func TestClient_Bundle(t *testing.T) {
	var got struct {
		Imports []entry.Import `json:"imports"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/bundle", r.URL.Path)
		assert.Equal(t, "importsize-cli/1.0", r.Header.Get("User-Agent"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(bundler.Outcome{
			Entry:    `export { h } from "preact";`,
			Result:   &bundler.Result{BundledSize: 100, MinifiedSize: 40, GzipSize: 30},
			Warnings: []string{},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	outcome, err := c.Bundle(context.Background(), []entry.Import{
		{ID: "1", Specifier: "preact", Names: "{ h }"},
	})
	require.NoError(t, err)

	require.Len(t, got.Imports, 1)
	assert.Equal(t, "preact", got.Imports[0].Specifier)
	assert.Equal(t, "{ h }", got.Imports[0].Names)

	require.True(t, outcome.Succeeded())
	assert.Equal(t, 40, outcome.Result.MinifiedSize)
	assert.Equal(t, 30, outcome.Result.GzipSize)
}

func TestClient_Resolve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/resolve", r.URL.Path)
		assert.Equal(t, "./hooks", r.URL.Query().Get("specifier"))
		assert.Equal(t, "https://esm.sh/preact", r.URL.Query().Get("importer"))
		_, _ = w.Write([]byte(`{"specifier":"./hooks","url":"https://esm.sh/preact/hooks?raw"}`))
	}))
	defer server.Close()

	resolved, err := NewClient(server.URL+"/").Resolve(context.Background(), "./hooks", "https://esm.sh/preact")
	require.NoError(t, err)
	assert.Equal(t, "https://esm.sh/preact/hooks?raw", resolved)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
		code    string
	}{
		{
			name:    "structured error",
			status:  http.StatusUnprocessableEntity,
			body:    `{"error":"no package.json for nope","code":"UNRESOLVABLE","request_id":"abc"}`,
			wantMsg: "no package.json for nope (UNRESOLVABLE)",
			code:    "UNRESOLVABLE",
		},
		{
			name:    "plain text error",
			status:  http.StatusBadGateway,
			body:    "upstream down\n",
			wantMsg: "upstream down",
		},
		{
			name:    "empty body",
			status:  http.StatusInternalServerError,
			body:    `{}`,
			wantMsg: "API error with status 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL).Resolve(context.Background(), "nope", "")
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient("://bad").Resolve(context.Background(), "preact", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid base URL")
}
