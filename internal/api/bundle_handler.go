package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/importsize/importsize/internal/bundler"
	"github.com/importsize/importsize/internal/entry"
	"github.com/importsize/importsize/internal/middleware"
)

// Bundler builds bundles for import declarations
type Bundler interface {
	Bundle(ctx context.Context, imports []entry.Import) (*bundler.Outcome, error)
}

// Resolver maps specifiers to module URLs
type Resolver interface {
	Resolve(ctx context.Context, specifier, importer string) (string, error)
}

// BundleHandler serves bundle and resolve requests
type BundleHandler struct {
	bundler  Bundler
	resolver Resolver
}

// NewBundleHandler creates a new bundle handler
func NewBundleHandler(b Bundler, r Resolver) *BundleHandler {
	return &BundleHandler{bundler: b, resolver: r}
}

// RegisterRoutes registers bundle routes
func (h *BundleHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/bundle", h.HandleBundle)
	router.Get("/bundle", h.HandleBundleQuery)
	router.Get("/resolve", h.HandleResolve)
}

// BundleRequest is the body of POST /bundle
type BundleRequest struct {
	Imports []entry.Import `json:"imports"`
}

// ResolveResponse is returned by GET /resolve
type ResolveResponse struct {
	Specifier string `json:"specifier"`
	Importer  string `json:"importer,omitempty"`
	URL       string `json:"url"`
}

// HandleBundle bundles the imports in the request body
func (h *BundleHandler) HandleBundle(c *fiber.Ctx) error {
	var req BundleRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_BODY")
	}
	return h.bundle(c, req.Imports)
}

// HandleBundleQuery bundles the imports encoded as repeated i=<specifier>|<names> parameters
func (h *BundleHandler) HandleBundleQuery(c *fiber.Ctx) error {
	imports := entry.ParseQuery(string(c.Request().URI().QueryString()))
	return h.bundle(c, imports)
}

func (h *BundleHandler) bundle(c *fiber.Ctx, imports []entry.Import) error {
	if len(imports) == 0 {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "At least one import is required", "NO_IMPORTS")
	}

	outcome, err := h.bundler.Bundle(middleware.TraceContext(c), imports)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return SendErrorWithCode(c, fiber.StatusServiceUnavailable, "Bundling was cancelled", "CANCELLED")
		}
		log.Error().Err(err).Str("request_id", getRequestID(c)).Msg("Bundling failed")
		return fiber.NewError(fiber.StatusInternalServerError, "Bundling failed")
	}

	return c.JSON(outcome)
}

// HandleResolve resolves a single specifier
func (h *BundleHandler) HandleResolve(c *fiber.Ctx) error {
	specifier := c.Query("specifier")
	if specifier == "" {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "specifier is required", "MISSING_SPECIFIER")
	}
	importer := c.Query("importer")

	resolved, err := h.resolver.Resolve(middleware.TraceContext(c), specifier, importer)
	if err != nil {
		return SendErrorWithCode(c, fiber.StatusUnprocessableEntity, err.Error(), "UNRESOLVABLE")
	}

	return c.JSON(ResolveResponse{
		Specifier: specifier,
		Importer:  importer,
		URL:       resolved,
	})
}
