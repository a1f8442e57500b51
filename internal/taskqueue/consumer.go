package taskqueue

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/SuessVilliano/LIV8-OS-sub003/internal/dispatch"
)

// route binds a task type to the agent and action that handle it.
type route struct {
	AgentType string
	Action    string
}

// taskRoutes is the closed set of queueable task types.
var taskRoutes = map[string]route{
	"schedule_post": {AgentType: "social-media", Action: "schedule_content"},
	"send_email":    {AgentType: "email-marketing", Action: "send_email"},
	"follow_up":     {AgentType: "sales", Action: "follow_up"},
	"sync_crm":      {AgentType: "operations", Action: "sync_crm"},
}

// Consumer maps queue messages onto dispatcher calls.
type Consumer struct {
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
}

// NewConsumer creates a Consumer.
func NewConsumer(d *dispatch.Dispatcher, logger *zap.Logger) *Consumer {
	return &Consumer{dispatcher: d, logger: logger}
}

// Handle processes one message. Unknown task types and configuration
// rejections ack immediately (retrying cannot fix them); transient
// execution failures return an error so the queue retries.
func (c *Consumer) Handle(ctx context.Context, msg *Message) error {
	r, ok := taskRoutes[msg.TaskType]
	if !ok {
		c.logger.Warn("unknown task type, dropping",
			zap.String("tenant", msg.TenantID),
			zap.String("task", msg.TaskType))
		return nil
	}

	res := c.dispatcher.ExecuteAction(ctx, msg.TenantID, r.AgentType, r.Action, msg.Params)
	if res.Success {
		return nil
	}
	if res.Rejected() {
		c.logger.Warn("task rejected by capability gate, dropping",
			zap.String("tenant", msg.TenantID),
			zap.String("task", msg.TaskType),
			zap.String("error", res.Error))
		return nil
	}
	return fmt.Errorf("task %s for %s: %s", msg.TaskType, msg.TenantID, res.Error)
}
