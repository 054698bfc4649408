package api

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/xraph/backlog/stream"
)

// keepAliveInterval is how often an idle event stream sends a comment.
const keepAliveInterval = 15 * time.Second

// events handles GET /v1/events. Clients choose topics with repeated
// ?topic= parameters (default "jobs"); see stream.ValidateTopic.
func (a *API) events(c *gin.Context) {
	topics := c.QueryArray("topic")
	if len(topics) == 0 {
		topics = []string{stream.TopicJobs}
	}
	for _, t := range topics {
		if err := stream.ValidateTopic(t); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	subID := uuid.NewString()
	sub := a.broker.Subscribe(subID, topics...)
	defer a.broker.RemoveSubscriber(subID)

	a.logger.Debug("event stream opened",
		slog.String("subscriber_id", subID),
		slog.Int("topics", len(topics)),
	)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case evt, ok := <-sub.C():
			if !ok {
				return false
			}
			c.SSEvent(string(evt.Type), evt)
			sub.AddCredits(1)
			return true
		case <-ticker.C:
			_, err := io.WriteString(w, ": keep-alive\n\n")
			return err == nil
		}
	})

	a.logger.Debug("event stream closed",
		slog.String("subscriber_id", subID),
		slog.Int64("dropped", sub.Dropped()),
	)
}
