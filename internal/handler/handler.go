package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/audioscribe/internal/broadcast"
	"github.com/audioscribe/internal/config"
	"github.com/audioscribe/internal/engine"
	"github.com/audioscribe/internal/fileops"
	"github.com/audioscribe/internal/jobs"
	"github.com/audioscribe/internal/transcript"
	"github.com/audioscribe/internal/version"
	"github.com/audioscribe/internal/watcher"
	"github.com/audioscribe/pkg/logger"
)

// Handler handles HTTP requests.
type Handler struct {
	store      *jobs.Store
	dispatcher *jobs.Dispatcher
	watcher    *watcher.Service
	hub        *broadcast.Hub
	cfg        *config.Config
}

// New creates a new Handler.
func New(store *jobs.Store, dispatcher *jobs.Dispatcher, watchSvc *watcher.Service, hub *broadcast.Hub, cfg *config.Config) *Handler {
	return &Handler{
		store:      store,
		dispatcher: dispatcher,
		watcher:    watchSvc,
		hub:        hub,
		cfg:        cfg,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/version", h.Version)
		api.GET("/models", h.ListModels)
		api.GET("/formats", h.ListFormats)

		api.POST("/transcribe", h.Transcribe)
		api.POST("/transcribe/batch", h.TranscribeBatch)

		api.GET("/jobs", h.ListJobs)
		api.GET("/jobs/:id", h.GetJob)
		api.DELETE("/jobs/:id", h.DeleteJob)
		api.GET("/jobs/:id/download/:format", h.DownloadResult)

		api.POST("/watch/start", h.StartWatcher)
		api.POST("/watch/stop", h.StopWatcher)
		api.GET("/watch/status", h.WatcherStatus)
	}

	r.GET("/ws", h.WebSocket)
}

// Health returns service health status.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Version returns service version.
func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": version.Version})
}

// ListModels returns available model identifiers.
func (h *Handler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models":  engine.AvailableModels,
		"default": engine.DefaultModel,
	})
}

// ListFormats returns supported input and output formats.
func (h *Handler) ListFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"audio_formats":  fileops.SupportedExtensions(),
		"output_formats": transcript.OutputFormats,
	})
}

// Transcribe accepts a multipart upload and dispatches a job for it.
func (h *Handler) Transcribe(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}

	jobID, err := h.acceptUpload(c, file)
	if err != nil {
		var verr *jobs.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": jobs.StatusPending})
}

// TranscribeBatch accepts multiple uploads; unsupported files are skipped.
func (h *Handler) TranscribeBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	files := form.File["files"]
	jobIDs := make([]string, 0, len(files))

	for _, file := range files {
		jobID, err := h.acceptUpload(c, file)
		if err != nil {
			logger.Warnf("batch: skipping %s: %v", file.Filename, err)
			continue
		}
		jobIDs = append(jobIDs, jobID)
	}

	c.JSON(http.StatusAccepted, gin.H{"job_ids": jobIDs, "count": len(jobIDs)})
}

// acceptUpload saves one uploaded file and dispatches a job for it.
func (h *Handler) acceptUpload(c *gin.Context, file *multipart.FileHeader) (string, error) {
	if !fileops.IsAudioFile(file.Filename) {
		return "", jobs.NewValidationError("unsupported format: %s", filepath.Ext(file.Filename))
	}

	if err := fileops.EnsureDir(h.cfg.Paths.Uploads); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	dst := filepath.Join(h.cfg.Paths.Uploads, uuid.New().String()+ext)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		return "", err
	}

	return h.dispatcher.Dispatch(jobs.Request{
		Path:        dst,
		SourceName:  file.Filename,
		Model:       c.PostForm("model"),
		Language:    c.PostForm("language"),
		Formats:     splitFormats(c.PostForm("output_formats")),
		RemoveInput: true,
	})
}

func splitFormats(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	formats := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			formats = append(formats, trimmed)
		}
	}
	return formats
}

// ListJobs returns snapshots of all jobs.
func (h *Handler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.store.List()})
}

// GetJob returns one job snapshot.
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// DeleteJob cancels (if needed) and removes a job.
func (h *Handler) DeleteJob(c *gin.Context) {
	if _, err := h.store.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// DownloadResult serves one rendered output of a completed job.
func (h *Handler) DownloadResult(c *gin.Context) {
	job, err := h.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	if job.Status != jobs.StatusCompleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job not completed"})
		return
	}

	format := c.Param("format")
	requested := false
	for _, f := range job.Formats {
		if f == format {
			requested = true
			break
		}
	}

	stem := fileops.Stem(job.SourceName)
	path := filepath.Join(h.cfg.Paths.Output, stem+"."+format)
	if !requested || !fileops.Exists(path) {
		c.JSON(http.StatusNotFound, gin.H{"error": "output not found: " + format})
		return
	}

	c.FileAttachment(path, stem+"."+format)
}

// WatchStartRequest configures a watch session.
type WatchStartRequest struct {
	Dir           string   `json:"dir"`
	Model         string   `json:"model"`
	Language      string   `json:"language"`
	OutputFormats []string `json:"output_formats"`
	MoveCompleted *bool    `json:"move_completed"`
}

// StartWatcher begins folder watching, replacing any active session.
func (h *Handler) StartWatcher(c *gin.Context) {
	var req WatchStartRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	opts := watcher.Options{
		Dir:           req.Dir,
		Model:         req.Model,
		Language:      req.Language,
		Formats:       req.OutputFormats,
		MoveCompleted: h.cfg.Watcher.MoveCompleted,
		Settle:        h.cfg.Watcher.SettleInterval(),
	}
	if opts.Dir == "" {
		opts.Dir = h.cfg.Paths.Watch
	}
	if opts.Model == "" {
		opts.Model = h.cfg.Whisper.Model
	}
	if len(opts.Formats) == 0 {
		opts.Formats = h.cfg.Whisper.Formats
	}
	if req.MoveCompleted != nil {
		opts.MoveCompleted = *req.MoveCompleted
	}

	if err := h.watcher.Start(opts); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "started", "path": opts.Dir})
}

// StopWatcher terminates the active watch session.
func (h *Handler) StopWatcher(c *gin.Context) {
	if err := h.watcher.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// WatcherStatus reports the active watch session.
func (h *Handler) WatcherStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.watcher.Status())
}
