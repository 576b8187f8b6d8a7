package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailservice/internal/email"
	"mailservice/queue"
)

// SendRequest is the body of /send and /send_async.
type SendRequest struct {
	Recipients  []string `json:"recipients"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	MessageType *string  `json:"message_type"`
}

// SendResponse is returned by /send and /send_async.
type SendResponse struct {
	OK      bool    `json:"ok"`
	Queued  bool    `json:"queued"`
	Message string  `json:"message"`
	ID      *string `json:"id"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type handlers struct {
	processor *queue.Processor
	queue     *queue.Bounded
	log       *zap.Logger
}

func (h *handlers) sendSync(c *gin.Context) {
	task, ok := bindTask(c)
	if !ok {
		return
	}
	// The outcome is recorded even if the caller goes away mid-delivery.
	ctx := context.WithoutCancel(c.Request.Context())
	if err, _ := h.processor.Process(ctx, queue.PathSync, task); err != nil {
		c.JSON(http.StatusInternalServerError, SendResponse{
			OK:      false,
			Queued:  false,
			Message: fmt.Sprintf("SMTP failure: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, SendResponse{OK: true, Queued: false, Message: "Email sent"})
}

func (h *handlers) sendAsync(c *gin.Context) {
	task, ok := bindTask(c)
	if !ok {
		return
	}
	if err := h.queue.Enqueue(task); err != nil {
		if errors.Is(err, queue.ErrFull) {
			h.log.Warn("queue full, rejecting task", zap.Int("capacity", h.queue.Cap()))
			c.JSON(http.StatusServiceUnavailable, errorResponse{Detail: "Queue full, try again later"})
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}
	h.log.Info("task queued", zap.String("task_id", task.ID), zap.Int("depth", h.queue.Len()))
	c.JSON(http.StatusAccepted, SendResponse{OK: true, Queued: true, Message: "Queued for delivery", ID: &task.ID})
}

// bindTask decodes and validates the request body, answering 422 on failure.
func bindTask(c *gin.Context) (email.Task, bool) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Detail: fmt.Sprintf("invalid JSON body: %v", err)})
		return email.Task{}, false
	}
	var messageType string
	if req.MessageType != nil {
		messageType = *req.MessageType
	}
	task, err := email.NewTask(req.Recipients, req.Subject, req.Body, messageType)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
		return email.Task{}, false
	}
	return task, true
}
