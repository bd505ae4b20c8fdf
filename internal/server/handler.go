package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/maxvaer/apiprobe/internal/config"
	"github.com/maxvaer/apiprobe/internal/report"
	"github.com/maxvaer/apiprobe/internal/scanner"
	"github.com/maxvaer/apiprobe/internal/store"
	"github.com/maxvaer/apiprobe/internal/triage"
	"github.com/maxvaer/apiprobe/internal/wordlist"
)

// ScanRequest is the body of POST /scan.
type ScanRequest struct {
	Target         string            `json:"target"`
	Paths          []string          `json:"paths"`
	Concurrency    int               `json:"concurrency"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Proxy          string            `json:"proxy"`
	AuthToken      string            `json:"auth_token"`
	UserAgents     []string          `json:"user_agents"`
	Headers        map[string]string `json:"headers"`
	Fallback       string            `json:"fallback"`
}

// config turns the request into a scanner configuration.
func (r ScanRequest) config() (scanner.Config, error) {
	fallback, err := triage.ParseFallback(r.Fallback)
	if err != nil {
		return scanner.Config{}, &scanner.ConfigError{Field: "fallback", Reason: err.Error()}
	}
	cfg := scanner.Config{
		BaseURL:     r.Target,
		Concurrency: r.Concurrency,
		Timeout:     time.Duration(r.TimeoutSeconds) * time.Second,
		Proxy:       r.Proxy,
		BearerToken: r.AuthToken,
		UserAgents:  r.UserAgents,
		Headers:     r.Headers,
		Fallback:    fallback,
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 20
	}
	if cfg.Concurrency < config.MinConcurrency || cfg.Concurrency > config.MaxConcurrency {
		return cfg, &scanner.ConfigError{
			Field:  "concurrency",
			Reason: fmt.Sprintf("must be between %d and %d", config.MinConcurrency, config.MaxConcurrency),
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return cfg, cfg.Validate()
}

// ScanResponse is returned by POST /scan and GET /scans/:id.
type ScanResponse struct {
	ID     uint            `json:"id,omitempty"`
	Report report.Document `json:"report"`
}

type response struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// Handler serves the API routes.
type Handler struct {
	db          *store.DB
	log         logrus.FieldLogger
	maxScanTime time.Duration
}

// ScanHandler runs a scan synchronously and returns its report.
func (h *Handler) ScanHandler(ctx fiber.Ctx) error {
	var data ScanRequest
	if err := ctx.Bind().Body(&data); err != nil {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(response{Error: true, Message: "Invalid data provided."})
	}

	cfg, err := data.config()
	if err != nil {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(response{Error: true, Message: err.Error()})
	}
	cfg.Logger = h.log

	paths := data.Paths
	if len(paths) == 0 {
		if paths, err = wordlist.Load("", "", ""); err != nil {
			return ctx.Status(fiber.StatusInternalServerError).JSON(response{Error: true, Message: err.Error()})
		}
	}

	scanCtx, cancel := context.WithTimeout(ctx.Context(), h.maxScanTime)
	defer cancel()
	h.log.WithField("target", cfg.BaseURL).Infof("API scan of %d paths", len(paths))
	rep, err := scanner.Run(scanCtx, cfg, paths)
	if err != nil {
		status := fiber.StatusBadGateway
		var cerr *scanner.ConfigError
		if errors.As(err, &cerr) {
			status = fiber.StatusUnprocessableEntity
		}
		return ctx.Status(status).JSON(response{Error: true, Message: err.Error()})
	}

	resp := ScanResponse{Report: rep.Snapshot()}
	if h.db != nil {
		rec, err := h.db.SaveReport(rep)
		if err != nil {
			h.log.Errorf("saving scan: %v", err)
			return ctx.Status(fiber.StatusInternalServerError).JSON(response{Error: true, Message: "Unexpected internal error occurred."})
		}
		resp.ID = rec.ID
	}
	return ctx.Status(fiber.StatusOK).JSON(resp)
}

// ListHandler returns recent scan summaries.
func (h *Handler) ListHandler(ctx fiber.Ctx) error {
	if h.db == nil {
		return ctx.Status(fiber.StatusNotFound).JSON(response{Error: true, Message: "History is disabled."})
	}
	limit, err := strconv.Atoi(ctx.Query("limit", "20"))
	if err != nil || limit < 0 {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(response{Error: true, Message: "Invalid limit."})
	}
	recs, err := h.db.Recent(limit)
	if err != nil {
		h.log.Errorf("listing scans: %v", err)
		return ctx.Status(fiber.StatusInternalServerError).JSON(response{Error: true, Message: "Unexpected internal error occurred."})
	}
	return ctx.Status(fiber.StatusOK).JSON(recs)
}

// GetHandler returns one stored scan.
func (h *Handler) GetHandler(ctx fiber.Ctx) error {
	if h.db == nil {
		return ctx.Status(fiber.StatusNotFound).JSON(response{Error: true, Message: "History is disabled."})
	}
	id, err := strconv.ParseUint(ctx.Params("id"), 10, 64)
	if err != nil {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(response{Error: true, Message: "Invalid scan id."})
	}
	rec, err := h.db.Get(uint(id))
	if errors.Is(err, store.ErrNotFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(response{Error: true, Message: "Scan not found."})
	}
	if err != nil {
		h.log.Errorf("loading scan: %v", err)
		return ctx.Status(fiber.StatusInternalServerError).JSON(response{Error: true, Message: "Unexpected internal error occurred."})
	}
	doc, err := rec.Document()
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(response{Error: true, Message: "Stored report is corrupt."})
	}
	return ctx.Status(fiber.StatusOK).JSON(ScanResponse{ID: rec.ID, Report: doc})
}
