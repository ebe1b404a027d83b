// Package api exposes rollouts over HTTP so a training driver in another
// process can hand samples to the scheduler and get finished traces back.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/rollout/internal/accuracy"
	"github.com/samcharles93/rollout/internal/chat"
	"github.com/samcharles93/rollout/internal/logger"
	"github.com/samcharles93/rollout/internal/multiturn"
	"github.com/samcharles93/rollout/internal/rollout"
	"github.com/samcharles93/rollout/internal/tracestore"
)

// TraceStore is the persistence the server needs. *tracestore.Store
// satisfies it.
type TraceStore interface {
	Save(ctx context.Context, t *rollout.Trace) error
	Get(ctx context.Context, id string) (*rollout.Trace, error)
}

type Config struct {
	Registry  *multiturn.Registry
	Generator rollout.Generator
	Scorer    accuracy.Scorer
	// Scheduler is used when a request names none.
	Scheduler string
	// MaxTurns is the scheduler turn bound when a request sets none.
	MaxTurns int
	// HardMaxTurns caps every rollout regardless of the request.
	HardMaxTurns int
	Store        TraceStore
	Logger       logger.Logger
}

type Server struct {
	cfg Config
	log logger.Logger
}

func NewServer(cfg Config) *Server {
	if cfg.Registry == nil {
		cfg.Registry = multiturn.DefaultRegistry()
	}
	if cfg.Scheduler == "" {
		cfg.Scheduler = multiturn.NameMathTips
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Server{cfg: cfg, log: log.With("component", "api")}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/schedulers", s.handleListSchedulers)
	e.POST("/v1/rollouts", s.handleCreateRollout)
	e.GET("/v1/rollouts/:id", s.handleGetRollout)
}

// RolloutRequest is the body of POST /v1/rollouts. Solution is a shortcut
// for data.solution.
type RolloutRequest struct {
	Messages  []chat.Message `json:"messages"`
	Data      map[string]any `json:"data,omitempty"`
	Solution  *string        `json:"solution,omitempty"`
	Scheduler string         `json:"scheduler,omitempty"`
	MaxTurns  *int           `json:"max_turns,omitempty"`
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSchedulers(c *echo.Context) error {
	names := s.cfg.Registry.Names()
	data := make([]map[string]string, 0, len(names))
	for _, n := range names {
		data = append(data, map[string]string{"id": n, "object": "scheduler"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"data":   data,
	})
}

func (s *Server) handleCreateRollout(c *echo.Context) error {
	if s.cfg.Generator == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "generator not configured")
	}
	body, err := decodeJSON[RolloutRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	req, name, opts, err := s.prepare(body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	sched, err := s.cfg.Registry.New(name, opts)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	runner := &rollout.Runner{
		Scheduler:     sched,
		SchedulerName: name,
		Generator:     s.cfg.Generator,
		MaxTurns:      s.cfg.HardMaxTurns,
		Logger:        s.log,
	}

	ctx := c.Request().Context()
	trace, err := runner.Run(ctx, req)
	if err != nil {
		if errors.Is(err, chat.ErrMissingSolution) || errors.Is(err, chat.ErrMalformedTranscript) {
			return writeBadRequest(c, err.Error())
		}
		s.log.Error("rollout failed", "scheduler", name, "error", err)
		return writeError(c, http.StatusBadGateway, "upstream_error", err.Error())
	}

	if s.cfg.Store != nil {
		if err := s.cfg.Store.Save(ctx, trace); err != nil {
			s.log.Error("save trace failed", "trace", trace.ID, "error", err)
			return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
		}
	}
	return c.JSON(http.StatusOK, trace)
}

func (s *Server) prepare(body RolloutRequest) (*chat.InferRequest, string, multiturn.Options, error) {
	if len(body.Messages) == 0 {
		return nil, "", multiturn.Options{}, newInvalidRequest("messages is required and must not be empty")
	}
	for i, m := range body.Messages {
		switch m.Role {
		case chat.RoleSystem, chat.RoleUser, chat.RoleAssistant:
		default:
			return nil, "", multiturn.Options{}, newInvalidRequest(fmt.Sprintf("messages[%d]: unsupported role %q", i, m.Role))
		}
	}

	req := &chat.InferRequest{Messages: body.Messages, Data: body.Data}
	if req.Data == nil {
		req.Data = make(map[string]any)
	}
	if body.Solution != nil {
		req.Data[chat.SolutionKey] = *body.Solution
	}

	name := body.Scheduler
	if name == "" {
		name = s.cfg.Scheduler
	}
	// The built-in policies score against data.solution on every turn.
	if name == multiturn.NameMathTips || name == multiturn.NameMathTipsMultiTurn {
		if _, err := req.Solution(); err != nil {
			return nil, "", multiturn.Options{}, newInvalidRequest(err.Error())
		}
	}
	opts := multiturn.Options{MaxTurns: s.cfg.MaxTurns, Scorer: s.cfg.Scorer}
	if body.MaxTurns != nil {
		if *body.MaxTurns < 0 {
			return nil, "", opts, newInvalidRequest("max_turns must not be negative")
		}
		opts.MaxTurns = *body.MaxTurns
	}
	return req, name, opts, nil
}

func (s *Server) handleGetRollout(c *echo.Context) error {
	if s.cfg.Store == nil {
		return writeNotFound(c, "trace storage is not enabled")
	}
	trace, err := s.cfg.Store.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, tracestore.ErrNotFound) {
		return writeNotFound(c, "rollout not found")
	}
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	return c.JSON(http.StatusOK, trace)
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// RequestID tags each request with an X-Request-Id, reusing the caller's
// when present.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}
