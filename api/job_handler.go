package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/optimize"
)

// SubmitImagesRequest holds the query parameters of POST /v1/images.
type SubmitImagesRequest struct {
	Priority   int `form:"priority"`
	MaxRetries int `form:"max_retries" binding:"min=0,max=10"`
	Width      int `form:"width" binding:"omitempty,min=1,max=10000"`
	Quality    int `form:"quality" binding:"omitempty,min=1,max=100"`
}

// SubmitImagesResponse lists the accepted job IDs in upload order.
type SubmitImagesResponse struct {
	IDs   []string `json:"ids"`
	Error string   `json:"error,omitempty"`
}

// blob is implemented by job results that can be served as raw bytes.
type blob interface {
	Bytes() []byte
	ContentType() string
}

// submitImages handles POST /v1/images. Each "file" part becomes one job.
// When the scheduler refuses part of a batch, the IDs accepted so far are
// returned alongside the error.
func (a *API) submitImages(c *gin.Context) {
	var req SubmitImagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, a.maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid multipart body: %v", err)})
		return
	}
	files := form.File["file"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": `no "file" parts in upload`})
		return
	}

	opts := []job.Option{job.WithPriority(req.Priority), job.WithMaxRetries(req.MaxRetries)}
	resp := SubmitImagesResponse{IDs: make([]string, 0, len(files))}

	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			resp.Error = err.Error()
			c.JSON(http.StatusBadRequest, resp)
			return
		}

		jobID, err := a.sched.Submit(a.processor, optimize.Input{
			Filename: fh.Filename,
			Data:     data,
			Width:    req.Width,
			Quality:  req.Quality,
		}, opts...)
		if err != nil {
			resp.Error = err.Error()
			c.JSON(statusForSubmitError(err), resp)
			return
		}
		resp.IDs = append(resp.IDs, jobID.String())
	}

	c.JSON(http.StatusAccepted, resp)
}

// getJob handles GET /v1/jobs/:jobId.
func (a *API) getJob(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}

	view := a.sched.Status(jobID)
	if !view.Found() {
		c.JSON(http.StatusNotFound, view)
		return
	}
	c.JSON(http.StatusOK, view)
}

// getResult handles GET /v1/jobs/:jobId/result and serves the optimized
// image of a completed job.
func (a *API) getResult(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}

	view := a.sched.Status(jobID)
	switch view.State {
	case job.StateNotFound:
		c.JSON(http.StatusNotFound, view)
		return
	case job.StateCompleted:
	default:
		c.JSON(http.StatusConflict, view)
		return
	}

	j, err := a.sched.Result(c.Request.Context(), jobID)
	if errors.Is(err, backlog.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, job.NotFound())
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	b, ok := j.Result.(blob)
	if !ok {
		c.JSON(http.StatusOK, view)
		return
	}
	c.Data(http.StatusOK, b.ContentType(), b.Bytes())
}

func parseJobID(c *gin.Context) (id.JobID, bool) {
	jobID, err := id.ParseJobID(c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid job ID: %v", err)})
		return id.Nil, false
	}
	return jobID, true
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", fh.Filename, err)
	}
	return data, nil
}

// statusForSubmitError maps scheduler admission errors to HTTP statuses.
func statusForSubmitError(err error) int {
	switch {
	case errors.Is(err, backlog.ErrCapacityExceeded), errors.Is(err, backlog.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, backlog.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, backlog.ErrInvalidOptions):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
