package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/importsize/importsize/internal/bundler"
	"github.com/importsize/importsize/internal/entry"
	"github.com/importsize/importsize/internal/resolver"
)

type fakeBundler struct {
	received []entry.Import
	outcome  *bundler.Outcome
	err      error
}

func (f *fakeBundler) Bundle(_ context.Context, imports []entry.Import) (*bundler.Outcome, error) {
	f.received = imports
	return f.outcome, f.err
}

type fakeResolver map[string]string

func (f fakeResolver) Resolve(_ context.Context, specifier, importer string) (string, error) {
	if resolved, ok := f[specifier+"@"+importer]; ok {
		return resolved, nil
	}
	return "", errors.New(`unresolvable specifier "` + specifier + `"`)
}

func newHandlerApp(b Bundler, r Resolver) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: customErrorHandler})
	NewBundleHandler(b, r).RegisterRoutes(app.Group("/api/v1"))
	return app
}

func decode(t *testing.T, body io.Reader, v interface{}) {
	t.Helper()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v), string(data))
}

func TestHandleBundle(t *testing.T) {
	fb := &fakeBundler{outcome: &bundler.Outcome{
		Entry:    `export { render } from "preact";`,
		Result:   &bundler.Result{Code: "x", MinifiedSize: 1, GzipSize: 1},
		Warnings: []string{},
	}}
	app := newHandlerApp(fb, fakeResolver{})

	body := `{"imports":[{"id":"1","specifier":"preact","names":"{ render }"}]}`
	req := httptest.NewRequest("POST", "/api/v1/bundle", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var outcome bundler.Outcome
	decode(t, resp.Body, &outcome)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, "x", outcome.Result.Code)
	assert.Equal(t, []entry.Import{{ID: "1", Specifier: "preact", Names: "{ render }"}}, fb.received)
}

func TestHandleBundle_FailedBuildIsNotAnHTTPError(t *testing.T) {
	fb := &fakeBundler{outcome: &bundler.Outcome{Warnings: []string{"could not resolve"}}}
	app := newHandlerApp(fb, fakeResolver{})

	req := httptest.NewRequest("POST", "/api/v1/bundle", strings.NewReader(`{"imports":[{"specifier":"nope","names":"* as n"}]}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var outcome map[string]interface{}
	decode(t, resp.Body, &outcome)
	assert.Nil(t, outcome["result"])
	assert.Equal(t, []interface{}{"could not resolve"}, outcome["warnings"])
}

func TestHandleBundle_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		bundleErr  error
		wantStatus int
		wantCode   string
	}{
		{"invalid json", `{"imports":`, nil, fiber.StatusBadRequest, "INVALID_BODY"},
		{"no imports", `{"imports":[]}`, nil, fiber.StatusBadRequest, "NO_IMPORTS"},
		{"cancelled", `{"imports":[{"specifier":"a","names":"* as a"}]}`, context.Canceled, fiber.StatusServiceUnavailable, "CANCELLED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newHandlerApp(&fakeBundler{err: tt.bundleErr}, fakeResolver{})
			req := httptest.NewRequest("POST", "/api/v1/bundle", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var errResp ErrorResponse
			decode(t, resp.Body, &errResp)
			assert.Equal(t, tt.wantCode, errResp.Code)
		})
	}
}

func TestHandleBundle_InternalFault(t *testing.T) {
	app := newHandlerApp(&fakeBundler{err: errors.New("gzip failed")}, fakeResolver{})
	req := httptest.NewRequest("POST", "/api/v1/bundle", strings.NewReader(`{"imports":[{"specifier":"a","names":"* as a"}]}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	var body map[string]interface{}
	decode(t, resp.Body, &body)
	assert.Equal(t, "Bundling failed", body["error"])
	assert.Equal(t, "INTERNAL_SERVER_ERROR", body["code"], "codes are strings on every error path")
}

func TestCustomErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: customErrorHandler})
	app.Get("/large", func(c *fiber.Ctx) error { return fiber.ErrRequestEntityTooLarge })
	app.Get("/plain", func(c *fiber.Ctx) error { return errors.New("boom") })

	tests := []struct {
		path       string
		wantStatus int
		wantError  string
		wantCode   string
	}{
		{"/large", fiber.StatusRequestEntityTooLarge, "Request Entity Too Large", "REQUEST_ENTITY_TOO_LARGE"},
		{"/plain", fiber.StatusInternalServerError, "Internal Server Error", "INTERNAL_SERVER_ERROR"},
		{"/missing", fiber.StatusNotFound, "Cannot GET /missing", "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body ErrorResponse
			decode(t, resp.Body, &body)
			assert.Equal(t, tt.wantError, body.Error)
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}

	assert.Equal(t, "ERROR", statusCode(999))
}

func TestHandleBundleQuery(t *testing.T) {
	fb := &fakeBundler{outcome: &bundler.Outcome{Warnings: []string{}}}
	app := newHandlerApp(fb, fakeResolver{})

	query := url.Values{"i": {"preact|{ render }", "react|React, {useState}", "|ignored"}}
	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/bundle?"+query.Encode(), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Len(t, fb.received, 2)
	assert.Equal(t, "preact", fb.received[0].Specifier)
	assert.Equal(t, "{ render }", fb.received[0].Names)
	assert.Equal(t, "react", fb.received[1].Specifier)
	assert.Equal(t, "React, {useState}", fb.received[1].Names)
	assert.NotEmpty(t, fb.received[0].ID)
}

func TestHandleResolve(t *testing.T) {
	fr := fakeResolver{
		"npm:lodash@":                     "https://esm.sh/lodash/lodash.js",
		"./x@https://host/jsr/pkg/mod.js": "https://host/jsr/pkg/x?raw",
	}
	app := newHandlerApp(&fakeBundler{}, fr)

	t.Run("resolved", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/resolve?specifier=npm:lodash", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var body ResolveResponse
		decode(t, resp.Body, &body)
		assert.Equal(t, "https://esm.sh/lodash/lodash.js", body.URL)
		assert.Equal(t, "npm:lodash", body.Specifier)
	})

	t.Run("with importer", func(t *testing.T) {
		query := url.Values{"specifier": {"./x"}, "importer": {"https://host/jsr/pkg/mod.js"}}
		resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/resolve?"+query.Encode(), nil))
		require.NoError(t, err)

		var body ResolveResponse
		decode(t, resp.Body, &body)
		assert.Equal(t, "https://host/jsr/pkg/x?raw", body.URL)
	})

	t.Run("unresolvable", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/resolve?specifier=nope", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

		var body ErrorResponse
		decode(t, resp.Body, &body)
		assert.Equal(t, "UNRESOLVABLE", body.Code)
		assert.Contains(t, body.Error, "nope")
	})

	t.Run("missing specifier", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/resolve", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

// the real resolver satisfies the handler's interface
var _ Resolver = (*resolver.Resolver)(nil)
