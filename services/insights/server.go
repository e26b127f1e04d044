// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package insights

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/gridsage/pkg/logging"
	"github.com/AleutianAI/gridsage/pkg/validation"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
	"github.com/AleutianAI/gridsage/services/insights/runner"
)

func init() {
	// Reject malformed system ids at the binding layer, before they
	// reach any Flux query.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("systemid", func(fl validator.FieldLevel) bool {
			return validation.ValidateSystemID(fl.Field().String()) == nil
		})
	}
}

// ServiceVersion is the insights service version.
const ServiceVersion = "0.1.0"

// backgroundJobTimeout bounds one background generation end to end.
const backgroundJobTimeout = 5 * time.Minute

// InsightsRequest is the HTTP request body for both trigger endpoints.
type InsightsRequest struct {
	Snapshot   *datatypes.Snapshot `json:"snapshot" binding:"required"`
	SystemID   string              `json:"system_id" binding:"omitempty,systemid"`
	UserPrompt string              `json:"user_prompt" binding:"omitempty,max=2000"`
}

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is one background insight generation.
type Job struct {
	ID          string            `json:"id"`
	Status      JobStatus         `json:"status"`
	SubmittedAt time.Time         `json:"submitted_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Result      *datatypes.Result `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// jobStore is the in-memory background job registry.
//
// Thread Safety: all access goes through the mutex.
type jobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func newJobStore() *jobStore {
	return &jobStore{jobs: map[string]*Job{}}
}

func (s *jobStore) create() *Job {
	job := &Job{
		ID:          uuid.NewString(),
		Status:      JobQueued,
		SubmittedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job
}

// get returns a copy of the job so callers can serialize it without
// racing the updates runJob makes under the write lock.
func (s *jobStore) get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (s *jobStore) update(id string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		fn(job)
	}
}

// Handlers holds the HTTP handlers for the insights service.
type Handlers struct {
	engine   *Engine
	log      *logging.Logger
	jobs     *jobStore
	registry *prometheus.Registry
}

// NewHandlers creates handlers over an engine. The prometheus registry
// backs /metrics; nil disables the endpoint.
func NewHandlers(engine *Engine, registry *prometheus.Registry, log *logging.Logger) *Handlers {
	if log == nil {
		log = logging.Default()
	}
	return &Handlers{
		engine:   engine,
		log:      log,
		jobs:     newJobStore(),
		registry: registry,
	}
}

// RegisterRoutes registers the insights endpoints with the router.
//
// Endpoints:
//
//	POST /api/v1/insights - Synchronous generation
//	POST /api/v1/insights/background - Enqueue a background job
//	GET  /api/v1/insights/jobs/:id - Background job status and result
//	GET  /healthz - Liveness
//	GET  /metrics - Prometheus metrics
func RegisterRoutes(r *gin.Engine, h *Handlers) {
	v1 := r.Group("/api/v1")
	v1.POST("/insights", h.GenerateSync)
	v1.POST("/insights/background", h.EnqueueBackground)
	v1.GET("/insights/jobs/:id", h.GetJob)

	r.GET("/healthz", h.Health)
	if h.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})))
	}
}

// GenerateSync handles POST /api/v1/insights.
func (h *Handlers) GenerateSync(c *gin.Context) {
	var body InsightsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.GenerateInsights(c.Request.Context(), Request{
		Snapshot:   body.Snapshot,
		SystemID:   body.SystemID,
		UserPrompt: body.UserPrompt,
		Mode:       datatypes.ModeSync,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// EnqueueBackground handles POST /api/v1/insights/background. The job
// runs detached from the request context.
func (h *Handlers) EnqueueBackground(c *gin.Context) {
	var body InsightsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := h.jobs.create()
	go h.runJob(job.ID, body)

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": job.Status})
}

func (h *Handlers) runJob(jobID string, body InsightsRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundJobTimeout)
	defer cancel()

	h.jobs.update(jobID, func(j *Job) { j.Status = JobRunning })
	h.log.Info("background insight job started", "job_id", jobID, "system_id", body.SystemID)

	result, err := h.engine.GenerateInsights(ctx, Request{
		Snapshot:   body.Snapshot,
		SystemID:   body.SystemID,
		UserPrompt: body.UserPrompt,
		Mode:       datatypes.ModeBackground,
	})

	now := time.Now().UTC()
	h.jobs.update(jobID, func(j *Job) {
		j.CompletedAt = &now
		if err != nil {
			j.Status = JobFailed
			j.Error = err.Error()
			return
		}
		j.Status = JobDone
		j.Result = result
	})
	if err != nil {
		h.log.Error("background insight job failed", "job_id", jobID, "error", err)
		return
	}
	h.log.Info("background insight job finished", "job_id", jobID, "iterations", result.Iterations)
}

// GetJob handles GET /api/v1/insights/jobs/:id.
func (h *Handlers) GetJob(c *gin.Context) {
	job, ok := h.jobs.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// Health handles GET /healthz.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": ServiceVersion})
}

// writeError maps the typed engine errors onto HTTP statuses.
func (h *Handlers) writeError(c *gin.Context, err error) {
	var deadline *runner.DeadlineError
	var unresponsive *runner.ModelUnresponsiveError
	switch {
	case errors.As(err, &deadline):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.As(err, &unresponsive):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, runner.ErrCancelled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
