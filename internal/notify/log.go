package notify

import (
	"context"
	"log/slog"
)

// Log writes every post to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Post(ctx context.Context, to Audience, msg Message) {
	l.Logger.InfoContext(ctx, "notify",
		"audience", to.Key(),
		"kind", msg.Kind,
		"title", msg.Title,
		"stage_id", msg.StageID,
	)
}
