package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BatchStatusCompleted is the terminal batch status. It means every member
// was attempted, not that every member succeeded.
const BatchStatusCompleted = "completed"

// BatchItem is the outcome of one batch member.
type BatchItem struct {
	Index          int    `json:"index"`
	NotificationID string `json:"notificationId,omitempty"`
	Status         Status `json:"status,omitempty"`
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
}

// BatchResult summarises a processed batch.
type BatchResult struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	Total       int         `json:"total"`
	Succeeded   int         `json:"succeeded"`
	Failed      int         `json:"failed"`
	Items       []BatchItem `json:"items"`
	StartedAt   time.Time   `json:"startedAt"`
	CompletedAt time.Time   `json:"completedAt"`
}

// ProcessBatch sends each request in order. A member fails when it is
// rejected before dispatch or when every channel failed; either way the
// rest of the batch still runs.
func (o *Orchestrator) ProcessBatch(ctx context.Context, reqs []Request) *BatchResult {
	res := &BatchResult{
		ID:        uuid.NewString(),
		Total:     len(reqs),
		Items:     make([]BatchItem, 0, len(reqs)),
		StartedAt: o.now(),
	}

	for i, req := range reqs {
		if req.Source == "" {
			req.Source = SourceBatch
		}
		item := BatchItem{Index: i}

		ev, err := o.send(ctx, req, true)
		switch {
		case err != nil:
			item.Error = err.Error()
		case ev.Status == StatusFailed:
			item.NotificationID = ev.ID
			item.Status = ev.Status
			item.Error = ErrDelivery.Error()
		default:
			item.NotificationID = ev.ID
			item.Status = ev.Status
			item.Success = true
		}

		if item.Success {
			res.Succeeded++
		} else {
			res.Failed++
		}
		res.Items = append(res.Items, item)
	}

	res.Status = BatchStatusCompleted
	res.CompletedAt = o.now()
	o.logger.Info("notification batch completed",
		"batch", res.ID, "total", res.Total, "succeeded", res.Succeeded, "failed", res.Failed)
	return res
}
