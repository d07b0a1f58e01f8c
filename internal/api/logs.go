package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/watchnode/internal/events"
	"github.com/smazurov/watchnode/internal/logging"
)

// LogStreamInput filters the log stream.
type LogStreamInput struct {
	Module      string `query:"module" example:"scheduler" doc:"Only entries from this module"`
	Level       string `query:"level" enum:"debug,info,warn,error" doc:"Minimum level"`
	LastEventID uint64 `header:"Last-Event-ID" doc:"Resume after this sequence number; set by browsers on reconnect"`
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

func (in *LogStreamInput) match(module, level string) bool {
	if in.Module != "" && in.Module != module {
		return false
	}
	if in.Level != "" && levelRank[level] < levelRank[in.Level] {
		return false
	}
	return true
}

func logEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}

// registerLogRoutes registers the log streaming SSE endpoint.
func (s *Server) registerLogRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Buffered log history followed by new entries as they are written. Event ids are sequence numbers.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, input *LogStreamInput, send sse.Sender) {
		// Subscribe before replaying so nothing written in between is lost;
		// sequence numbers drop what the replay already covered
		eventCh := make(chan any, 256)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		last := input.LastEventID
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.Since(last) {
				last = entry.Seq
				if !input.match(entry.Module, entry.Level) {
					continue
				}
				if err := send(sse.Message{ID: int(entry.Seq), Data: logEvent(entry)}); err != nil {
					return
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				entry, ok := event.(events.LogEntryEvent)
				if !ok || entry.Seq <= last {
					continue
				}
				last = entry.Seq
				if !input.match(entry.Module, entry.Level) {
					continue
				}
				if err := send(sse.Message{ID: int(entry.Seq), Data: entry}); err != nil {
					return
				}
			}
		}
	})
}
