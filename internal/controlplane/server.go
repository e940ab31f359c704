package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/fentz26/rackplan/internal/models"
	"github.com/fentz26/rackplan/internal/schedule"
	"github.com/fentz26/rackplan/internal/warehouse"
)

// Version is reported by the health endpoint.
var Version = "dev"

// Server provides the HTTP API for schedule lookups.
type Server struct {
	service *Service
	addr    string
	h       *server.Hertz
}

// NewServer creates a new HTTP server with every route registered.
func NewServer(service *Service, addr string) *Server {
	s := &Server{
		service: service,
		addr:    addr,
		h: server.Default(
			server.WithHostPorts(addr),
			server.WithReadTimeout(10*time.Second),
			server.WithWriteTimeout(30*time.Second),
		),
	}
	s.RegisterRoutes(s.h)
	return s
}

// RegisterRoutes installs every endpoint on h.
func (s *Server) RegisterRoutes(h *server.Hertz) {
	h.GET("/health", s.handleHealth)

	h.GET("/runs/:id", s.handleRun)
	h.GET("/runs/:id/allocations", s.handleAllocations)
	h.GET("/runs/:id/schedules/:agent/:task/action", s.handleTaskAction)
	h.GET("/runs/:id/regen/:agent/action", s.handleRegenAction)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	log.Printf("Starting rackplan control plane on %s", s.addr)
	return s.h.Run()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.h.Shutdown(ctx)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(c context.Context, ctx *app.RequestContext) {
	resp := HealthResponse{OK: true, DB: "ok", Version: Version, Time: time.Now().UTC().Format(time.RFC3339)}
	if err := s.service.Health(c); err != nil {
		resp.OK = false
		resp.DB = err.Error()
		ctx.JSON(consts.StatusServiceUnavailable, resp)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (s *Server) handleRun(c context.Context, ctx *app.RequestContext) {
	run, err := s.service.Run(ctx.Param("id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, run)
}

// AllocationsResponse is the body of GET /runs/:id/allocations.
type AllocationsResponse struct {
	Run         *models.Run         `json:"run"`
	Allocations []models.Allocation `json:"allocations"`
}

func (s *Server) handleAllocations(c context.Context, ctx *app.RequestContext) {
	run, allocs, err := s.service.Allocations(ctx.Param("id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, AllocationsResponse{Run: run, Allocations: allocs})
}

// ActionResponse is the body of the action lookup endpoints.
type ActionResponse struct {
	RunID      string          `json:"run_id"`
	Schedule   string          `json:"schedule"`
	Action     int             `json:"action"`
	ActionName string          `json:"action_name"`
	Record     schedule.Record `json:"record"`
}

func (s *Server) handleTaskAction(c context.Context, ctx *app.RequestContext) {
	agent, err := intParam(ctx.Param("agent"), "agent")
	if err != nil {
		writeError(ctx, err)
		return
	}
	task, err := intParam(ctx.Param("task"), "task")
	if err != nil {
		writeError(ctx, err)
		return
	}
	s.lookup(ctx, models.ScheduleKindTask, agent, task)
}

func (s *Server) handleRegenAction(c context.Context, ctx *app.RequestContext) {
	agent, err := intParam(ctx.Param("agent"), "agent")
	if err != nil {
		writeError(ctx, err)
		return
	}
	s.lookup(ctx, models.ScheduleKindRegen, agent, 0)
}

func (s *Server) lookup(ctx *app.RequestContext, kind models.ScheduleKind, agent, task int) {
	state, q, err := parseState(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	f, rec, err := s.service.Lookup(ctx.Param("id"), kind, agent, task, state, q)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, ActionResponse{
		RunID:      f.RunID,
		Schedule:   f.Path,
		Action:     rec.Action,
		ActionName: warehouse.FineActionName(rec.Action),
		Record:     rec,
	})
}

func intParam(v, name string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrBadRequest, name, v)
	}
	return n, nil
}

func boolQuery(v, name string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", ErrBadRequest, name, v)
	}
	return b, nil
}

// parseState reads the robot state from the query: x, y, dir, carrying,
// pack_available, pack_x, pack_y and the automaton state q.
func parseState(ctx *app.RequestContext) (warehouse.FineState, int, error) {
	var st warehouse.FineState
	x, err := intParam(ctx.Query("x"), "x")
	if err != nil {
		return st, 0, err
	}
	y, err := intParam(ctx.Query("y"), "y")
	if err != nil {
		return st, 0, err
	}
	dir, err := intParam(ctx.DefaultQuery("dir", "0"), "dir")
	if err != nil {
		return st, 0, err
	}
	if !warehouse.Direction(dir).Valid() {
		return st, 0, fmt.Errorf("%w: dir must be within 0..3, got %d", ErrBadRequest, dir)
	}
	carrying, err := boolQuery(ctx.Query("carrying"), "carrying")
	if err != nil {
		return st, 0, err
	}
	avail, err := boolQuery(ctx.Query("pack_available"), "pack_available")
	if err != nil {
		return st, 0, err
	}
	q, err := intParam(ctx.DefaultQuery("q", "0"), "q")
	if err != nil {
		return st, 0, err
	}

	st = warehouse.FineState{
		Dir:           warehouse.Direction(dir),
		Pos:           warehouse.Point{X: x, Y: y},
		Carrying:      carrying,
		PackAvailable: avail,
		PackPos:       warehouse.NoPack,
	}
	if avail {
		px, err := intParam(ctx.Query("pack_x"), "pack_x")
		if err != nil {
			return st, 0, err
		}
		py, err := intParam(ctx.Query("pack_y"), "pack_y")
		if err != nil {
			return st, 0, err
		}
		st.PackPos = warehouse.Point{X: px, Y: py}
	}
	return st, q, nil
}

func writeError(ctx *app.RequestContext, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		writeErrorBody(ctx, consts.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, ErrNotFound):
		writeErrorBody(ctx, consts.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrNoRecord):
		writeErrorBody(ctx, consts.StatusNotFound, "no_record", err.Error())
	default:
		writeErrorBody(ctx, consts.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeErrorBody(ctx *app.RequestContext, status int, code, message string) {
	ctx.JSON(status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
