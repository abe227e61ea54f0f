package mailer

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/authcore"
)

// LogSender logs every message instead of delivering it.
type LogSender struct {
	logger *slog.Logger
}

var _ authcore.EmailSender = (*LogSender)(nil)

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg authcore.Email) error {
	attrs := make([]any, 0, len(msg.Data))
	for k, v := range msg.Data {
		attrs = append(attrs, slog.String(k, v))
	}
	s.logger.InfoContext(ctx, "email queued",
		slog.String("kind", string(msg.Kind)),
		slog.String("to", msg.To),
		slog.Group("data", attrs...),
	)
	return nil
}
