package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/devstack/internal/events"
	"github.com/loykin/devstack/internal/framework"
	"github.com/loykin/devstack/internal/health"
	"github.com/loykin/devstack/internal/history"
	"github.com/loykin/devstack/internal/logger"
	"github.com/loykin/devstack/internal/metrics"
	"github.com/loykin/devstack/internal/project"
	"github.com/loykin/devstack/internal/projectstore"
	"github.com/loykin/devstack/internal/service"
)

// Services is the part of service.Supervisor the router drives.
type Services interface {
	List() []service.Info
	Status(id string) (service.Info, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
	CheckHealth(ctx context.Context, id string) (health.Result, error)
}

// Projects is the part of project.Manager the router drives.
type Projects interface {
	Start(ctx context.Context, d project.Descriptor) (project.ProcessInfo, error)
	Stop(ctx context.Context, id string) error
	Restart(ctx context.Context, d project.Descriptor) (project.ProcessInfo, error)
	Get(id string) (project.ProcessInfo, bool)
	List() []project.ProcessInfo
}

// Deps are the collaborators of the router. Events, History, Cleanup and
// Resources are optional; their endpoints answer 404 or empty when unset.
type Deps struct {
	Services  Services
	Projects  Projects
	Store     projectstore.Store
	Logs      *logger.Ring
	Events    *events.Bus
	History   history.Querier
	Cleanup   func() []string
	Resources func() []metrics.Usage
	Log       *slog.Logger
}

// Router serves the command API.
// Endpoints, relative to basePath:
//
//	GET    /services                 list services in dependency order
//	GET    /services/:id             one service
//	POST   /services/:id/start       start with dependencies
//	POST   /services/:id/stop
//	POST   /services/:id/restart
//	GET    /services/:id/health      run a health check now
//	GET    /projects                 stored projects with their process info
//	POST   /projects                 add a project
//	GET    /projects/:id
//	PUT    /projects/:id             replace a project descriptor
//	DELETE /projects/:id             stop and remove a project
//	POST   /projects/:id/start
//	POST   /projects/:id/stop
//	POST   /projects/:id/restart
//	GET    /projects/:id/logs        query: n=100
//	GET    /detect                   query: path=/abs/dir
//	GET    /cleanup                  lines of the startup cleanup
//	GET    /resources                cpu and memory of running processes
//	GET    /history                  query: id=...&limit=50
//	GET    /events                   websocket stream of UI events
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	deps     Deps
	basePath string
	log      *slog.Logger
}

func NewRouter(deps Deps, basePath string) *Router {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Router{deps: deps, basePath: sanitizeBase(basePath), log: log.With("component", "api")}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)

	group.GET("/services", r.handleServiceList)
	group.GET("/services/:id", r.handleServiceGet)
	group.POST("/services/:id/start", r.handleServiceAction)
	group.POST("/services/:id/stop", r.handleServiceAction)
	group.POST("/services/:id/restart", r.handleServiceAction)
	group.GET("/services/:id/health", r.handleServiceHealth)

	group.GET("/projects", r.handleProjectList)
	group.POST("/projects", r.handleProjectCreate)
	group.GET("/projects/:id", r.handleProjectGet)
	group.PUT("/projects/:id", r.handleProjectUpdate)
	group.DELETE("/projects/:id", r.handleProjectDelete)
	group.POST("/projects/:id/start", r.handleProjectStart)
	group.POST("/projects/:id/stop", r.handleProjectStop)
	group.POST("/projects/:id/restart", r.handleProjectRestart)
	group.GET("/projects/:id/logs", r.handleProjectLogs)

	group.GET("/detect", r.handleDetect)
	group.GET("/cleanup", r.handleCleanup)
	group.GET("/resources", r.handleResources)
	group.GET("/history", r.handleHistory)
	group.GET("/events", r.handleEvents)
	return g
}

// NewServer returns an http.Server for the router; the caller starts and
// shuts it down.
func NewServer(addr, basePath string, deps Deps) *http.Server {
	r := NewRouter(deps, basePath)
	// no WriteTimeout: restarts wait for dependencies and the event stream
	// is long lived
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Responses ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// ProjectView is a stored project joined with its process, if tracked.
type ProjectView struct {
	project.Descriptor
	Process *project.ProcessInfo `json:"process,omitempty"`
}

type detectResp struct {
	Path           string         `json:"path"`
	Type           framework.Type `json:"type"`
	DefaultCommand string         `json:"default_command"`
}

func statusOf(err error) int {
	var dep *service.DependencyError
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, project.ErrNotFound), errors.Is(err, projectstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, project.ErrInvalid), errors.Is(err, service.ErrExecutableMissing):
		return http.StatusBadRequest
	case errors.As(err, &dep), errors.Is(err, service.ErrSpawnFailed), errors.Is(err, project.ErrSpawnFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (r *Router) fail(c *gin.Context, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		r.log.Warn("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	writeJSON(c, code, errorResp{Error: err.Error()})
}

// --- Services ---

func (r *Router) handleServiceList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.deps.Services.List())
}

func (r *Router) serviceID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !isSafeName(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid service id: allowed [A-Za-z0-9._-]"})
		return "", false
	}
	return id, true
}

func (r *Router) handleServiceGet(c *gin.Context) {
	id, ok := r.serviceID(c)
	if !ok {
		return
	}
	in, err := r.deps.Services.Status(id)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, in)
}

func (r *Router) handleServiceAction(c *gin.Context) {
	id, ok := r.serviceID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var err error
	switch action := lastSegment(c.FullPath()); action {
	case "start":
		err = r.deps.Services.Start(ctx, id)
	case "stop":
		err = r.deps.Services.Stop(ctx, id)
	case "restart":
		err = r.deps.Services.Restart(ctx, id)
	}
	if err != nil {
		r.fail(c, err)
		return
	}
	in, err := r.deps.Services.Status(id)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, in)
}

func (r *Router) handleServiceHealth(c *gin.Context) {
	id, ok := r.serviceID(c)
	if !ok {
		return
	}
	res, err := r.deps.Services.CheckHealth(c.Request.Context(), id)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"healthy": res.Healthy, "message": res.Message(), "latency_ms": res.Latency.Milliseconds()})
}

// --- Projects ---

func (r *Router) view(d project.Descriptor) ProjectView {
	v := ProjectView{Descriptor: d}
	if in, ok := r.deps.Projects.Get(d.ID); ok {
		v.Process = &in
	}
	return v
}

func (r *Router) handleProjectList(c *gin.Context) {
	all, err := r.deps.Store.Load()
	if err != nil {
		r.fail(c, err)
		return
	}
	out := make([]ProjectView, 0, len(all))
	for _, d := range all {
		out = append(out, r.view(d))
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) bindProject(c *gin.Context) (project.Descriptor, bool) {
	var d project.Descriptor
	if err := c.ShouldBindJSON(&d); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return d, false
	}
	if d.Path == "" || !isSafeAbsPath(d.Path) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid path: must be absolute path without traversal"})
		return d, false
	}
	if d.Type == "" {
		d.Type = framework.Detect(d.Path)
	} else {
		d.Type = framework.ParseType(string(d.Type))
	}
	return d, true
}

func (r *Router) handleProjectCreate(c *gin.Context) {
	d, ok := r.bindProject(c)
	if !ok {
		return
	}
	if d.ID == "" {
		d.ID = project.NewID()
	}
	if err := r.deps.Store.Save(d); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r.view(d))
}

func (r *Router) handleProjectGet(c *gin.Context) {
	d, err := r.deps.Store.Get(c.Param("id"))
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r.view(d))
}

func (r *Router) handleProjectUpdate(c *gin.Context) {
	id := c.Param("id")
	if _, err := r.deps.Store.Get(id); err != nil {
		r.fail(c, err)
		return
	}
	d, ok := r.bindProject(c)
	if !ok {
		return
	}
	d.ID = id
	if err := r.deps.Store.Save(d); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r.view(d))
}

func (r *Router) handleProjectDelete(c *gin.Context) {
	id := c.Param("id")
	if err := r.deps.Projects.Stop(c.Request.Context(), id); err != nil && !errors.Is(err, project.ErrNotFound) {
		r.fail(c, err)
		return
	}
	if err := r.deps.Store.Delete(id); err != nil {
		r.fail(c, err)
		return
	}
	if r.deps.Logs != nil {
		r.deps.Logs.Drop(id)
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleProjectStart(c *gin.Context) {
	d, err := r.deps.Store.Get(c.Param("id"))
	if err != nil {
		r.fail(c, err)
		return
	}
	in, err := r.deps.Projects.Start(c.Request.Context(), d)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, in)
}

func (r *Router) handleProjectStop(c *gin.Context) {
	if err := r.deps.Projects.Stop(c.Request.Context(), c.Param("id")); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// handleProjectRestart restarts with the stored descriptor so edits made
// through PUT apply. An untracked project is started.
func (r *Router) handleProjectRestart(c *gin.Context) {
	d, err := r.deps.Store.Get(c.Param("id"))
	if err != nil {
		r.fail(c, err)
		return
	}
	in, err := r.deps.Projects.Restart(c.Request.Context(), d)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, in)
}

func (r *Router) handleProjectLogs(c *gin.Context) {
	if r.deps.Logs == nil {
		writeJSON(c, http.StatusOK, []logger.Entry{})
		return
	}
	n, _ := strconv.Atoi(c.DefaultQuery("n", "100"))
	writeJSON(c, http.StatusOK, r.deps.Logs.Tail(c.Param("id"), n))
}

// --- Misc ---

func (r *Router) handleDetect(c *gin.Context) {
	p := c.Query("path")
	if p == "" || !isSafeAbsPath(p) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "path query param must be an absolute path without traversal"})
		return
	}
	t := framework.Detect(p)
	writeJSON(c, http.StatusOK, detectResp{Path: p, Type: t, DefaultCommand: framework.DefaultCommand(t)})
}

func (r *Router) handleCleanup(c *gin.Context) {
	lines := []string{}
	if r.deps.Cleanup != nil {
		lines = append(lines, r.deps.Cleanup()...)
	}
	writeJSON(c, http.StatusOK, gin.H{"lines": lines})
}

func (r *Router) handleResources(c *gin.Context) {
	out := []metrics.Usage{}
	if r.deps.Resources != nil {
		out = append(out, r.deps.Resources()...)
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.deps.History == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no queryable history sink configured"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a positive integer"})
		return
	}
	evs, err := r.deps.History.Recent(c.Request.Context(), c.Query("id"), limit)
	if err != nil {
		r.fail(c, err)
		return
	}
	if evs == nil {
		evs = []history.Event{}
	}
	writeJSON(c, http.StatusOK, evs)
}
