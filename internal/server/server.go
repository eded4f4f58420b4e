// Package server exposes searches and saved jobs over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/kenjobs/jobsync/internal/model"
	"github.com/kenjobs/jobsync/internal/ratelimit"
	"github.com/kenjobs/jobsync/internal/store"
)

const (
	requestIDHeader = "X-Request-ID"
	sourceHeader    = "X-Result-Source"
	shutdownTimeout = 10 * time.Second
)

// Searcher is the part of the aggregator the API needs.
type Searcher interface {
	Search(ctx context.Context, query, location string, f model.Filters) (model.Result, error)
	Invalidate(ctx context.Context, query, location string, f model.Filters) error
}

// Server is the jobsync HTTP API.
type Server struct {
	echo     *echo.Echo
	searcher Searcher
	saved    store.SavedJobStore
	validate *validator.Validate
	logger   *slog.Logger
}

// New wires the routes. saved may be a store.NopStore, in which case the
// saved-job routes answer 503.
func New(searcher Searcher, saved store.SavedJobStore, logger *slog.Logger) *Server {
	s := &Server{
		echo:     echo.New(),
		searcher: searcher,
		saved:    saved,
		validate: validator.New(),
		logger:   logger,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Validator = &requestValidator{v: s.validate}

	s.echo.Use(echomiddleware.Recover())
	s.echo.Use(s.requestID)
	s.echo.Use(s.logRequests)

	s.echo.GET("/health", s.health)

	jobs := s.echo.Group("/api/jobs")
	jobs.GET("/search", s.search)
	jobs.DELETE("/cache", s.invalidate)

	users := s.echo.Group("/api/users/:user_id")
	users.GET("/saved-jobs", s.listSaved)
	users.POST("/saved-jobs", s.toggleSaved)
	users.DELETE("/saved-jobs/:job_id", s.deleteSaved)

	return s
}

// ExposeSources adds GET /api/sources, reporting each source's rate limit
// policy and current window usage.
func (s *Server) ExposeSources(names []string, limiter *ratelimit.Limiter) {
	s.echo.GET("/api/sources", func(c echo.Context) error {
		out := make([]sourceStatus, 0, len(names))
		for _, name := range names {
			out = append(out, newSourceStatus(name, limiter.PolicyFor(name), limiter.Stats(name)))
		}
		return c.JSON(http.StatusOK, map[string][]sourceStatus{"sources": out})
	})
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.echo.Start(addr)
	}()
	s.logger.Info("http server listening", "addr", addr)

	select {
	case err := <-errc:
		return fmt.Errorf("serving on %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving on %s: %w", addr, err)
	}
	return nil
}

type requestValidator struct {
	v *validator.Validate
}

func (r *requestValidator) Validate(i any) error {
	return r.v.Struct(i)
}

// searchRequest carries the query parameters shared by search and invalidate.
type searchRequest struct {
	Query      string `query:"q" validate:"required"`
	Location   string `query:"location"`
	RemoteOnly bool   `query:"remote_only"`
	DatePosted string `query:"date_posted" validate:"omitempty,oneof=all today 3days week month"`
	Page       int    `query:"page" validate:"omitempty,min=1"`
	Limit      int    `query:"limit" validate:"omitempty,min=1,max=100"`
}

func (r searchRequest) filters() model.Filters {
	return model.Filters{
		RemoteOnly: r.RemoteOnly,
		DatePosted: r.DatePosted,
		Page:       r.Page,
		Limit:      r.Limit,
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

type sourceStatus struct {
	Name          string     `json:"name"`
	MaxRequests   int        `json:"max_requests"`
	Window        string     `json:"window"`
	MinInterval   string     `json:"min_interval"`
	Block         bool       `json:"block"`
	CountInWindow int        `json:"count_in_window"`
	WindowStart   *time.Time `json:"window_start,omitempty"`
	LastRequestAt *time.Time `json:"last_request_at,omitempty"`
}

func newSourceStatus(name string, p ratelimit.Policy, st ratelimit.Stats) sourceStatus {
	out := sourceStatus{
		Name:          name,
		MaxRequests:   p.MaxRequests,
		Window:        p.Window.String(),
		MinInterval:   p.MinInterval.String(),
		Block:         p.Block,
		CountInWindow: st.CountInWindow,
	}
	if !st.WindowStart.IsZero() {
		out.WindowStart = &st.WindowStart
	}
	if !st.LastRequestAt.IsZero() {
		out.LastRequestAt = &st.LastRequestAt
	}
	return out
}

type toggleResponse struct {
	JobID string `json:"job_id"`
	Saved bool   `json:"saved"`
}

type savedListResponse struct {
	SavedJobs []store.SavedJob `json:"saved_jobs"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) search(c echo.Context) error {
	req, err := s.bindSearch(c)
	if err != nil {
		return s.fail(c, http.StatusBadRequest, "invalid_request", err)
	}

	result, err := s.searcher.Search(c.Request().Context(), req.Query, req.Location, req.filters())
	if err != nil {
		return s.failFor(c, err)
	}
	c.Response().Header().Set(sourceHeader, string(result.Source))
	return c.JSON(http.StatusOK, result)
}

func (s *Server) invalidate(c echo.Context) error {
	req, err := s.bindSearch(c)
	if err != nil {
		return s.fail(c, http.StatusBadRequest, "invalid_request", err)
	}
	if err := s.searcher.Invalidate(c.Request().Context(), req.Query, req.Location, req.filters()); err != nil {
		return s.failFor(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) bindSearch(c echo.Context) (searchRequest, error) {
	var req searchRequest
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &req); err != nil {
		return req, err
	}
	if err := c.Validate(&req); err != nil {
		return req, err
	}
	return req, nil
}

func (s *Server) listSaved(c echo.Context) error {
	saved, err := s.saved.ListSaved(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return s.failFor(c, err)
	}
	return c.JSON(http.StatusOK, savedListResponse{SavedJobs: saved})
}

func (s *Server) toggleSaved(c echo.Context) error {
	var job model.Job
	if err := c.Bind(&job); err != nil {
		return s.fail(c, http.StatusBadRequest, "invalid_request", err)
	}
	if err := s.validate.Var(job.ID, "required"); err != nil {
		return s.fail(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("job id: %w", err))
	}

	saved, err := s.saved.ToggleSaved(c.Request().Context(), c.Param("user_id"), job)
	if err != nil {
		return s.failFor(c, err)
	}
	return c.JSON(http.StatusOK, toggleResponse{JobID: job.ID, Saved: saved})
}

func (s *Server) deleteSaved(c echo.Context) error {
	if err := s.saved.DeleteSaved(c.Request().Context(), c.Param("user_id"), c.Param("job_id")); err != nil {
		return s.failFor(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) failFor(c echo.Context, err error) error {
	switch {
	case errors.Is(err, model.ErrInvalidQuery):
		return s.fail(c, http.StatusBadRequest, "invalid_query", err)
	case errors.Is(err, store.ErrStoreDisabled):
		return s.fail(c, http.StatusServiceUnavailable, "store_disabled", err)
	}
	s.logger.Error("request failed",
		"method", c.Request().Method,
		"path", c.Path(),
		"request_id", requestID(c),
		"error", err,
	)
	return s.fail(c, http.StatusInternalServerError, "internal_error", errors.New("internal error"))
}

func (s *Server) fail(c echo.Context, status int, code string, err error) error {
	return c.JSON(status, errorResponse{
		Error:     code,
		Message:   err.Error(),
		RequestID: requestID(c),
	})
}

func (s *Server) requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Response().Header().Set(requestIDHeader, id)
		return next(c)
	}
}

func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.Info("http request",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", c.Response().Status,
			"duration", time.Since(start).Round(time.Millisecond),
			"request_id", requestID(c),
		)
		return nil
	}
}

func requestID(c echo.Context) string {
	id, _ := c.Get("request_id").(string)
	return id
}
