package fifo

import (
	"context"
	"log/slog"

	"shmath/internal/logging"
)

// Handler receives each command read from the pipe. The slice aliases the
// server's read buffer and is only valid for the duration of the call.
type Handler interface {
	Handle(ctx context.Context, command []byte)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, command []byte)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, command []byte) {
	f(ctx, command)
}

// Chain runs handlers in order for every command.
func Chain(handlers ...Handler) Handler {
	var filtered []Handler
	for _, h := range handlers {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return HandlerFunc(func(ctx context.Context, command []byte) {
		for _, h := range filtered {
			h.Handle(ctx, command)
		}
	})
}

// LogHandler logs every command at NOTICE.
func LogHandler(logger *slog.Logger) Handler {
	logger = logging.NewComponentLogger(logger, "fifo")
	return HandlerFunc(func(_ context.Context, command []byte) {
		logging.Notice(logger, "command received",
			logging.Command(command),
			logging.Int(logging.FieldBytes, len(command)),
			logging.String(logging.FieldEventType, "command_received"),
		)
	})
}
