package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/backlog/scheduler"
	"github.com/xraph/backlog/stream"
)

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	Scheduler scheduler.Stats     `json:"scheduler"`
	Stream    *stream.BrokerStats `json:"stream,omitempty"`
}

func (a *API) stats(c *gin.Context) {
	resp := StatsResponse{Scheduler: a.sched.Stats()}
	if a.broker != nil {
		bs := a.broker.Stats()
		resp.Stream = &bs
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
