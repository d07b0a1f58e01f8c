package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/watchnode/internal/api/models"
	"github.com/smazurov/watchnode/internal/notify"
	"github.com/smazurov/watchnode/internal/scheduler"
)

// Chat webhook statuses.
const (
	chatTriggered    = "triggered"
	chatIgnored      = "ignored"
	chatUnauthorized = "unauthorized"
)

// registerWebhookRoutes registers the inbound chat webhook. The gateway
// cannot send API credentials, so the sender is checked against the
// configured chat recipients instead.
func (s *Server) registerWebhookRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "chat-webhook",
		Method:      http.MethodPost,
		Path:        "/api/webhook/chat",
		Summary:     "Chat Webhook",
		Description: "Inbound chat message. Recognized keywords: patrol, find <names>, check <camera> (or cek), meter <id>.",
		Tags:        []string{"webhook"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *models.ChatWebhookRequest) (*models.ChatWebhookResponse, error) {
		settings := s.app.Settings().Get()
		if !notify.Authorized(input.Body.From, notify.RecipientList(settings.WhatsApp.Recipients)) {
			s.logger.Warn("Chat command from unauthorized sender", "from", input.Body.From)
			return &models.ChatWebhookResponse{Body: models.ChatWebhookData{Status: chatUnauthorized}}, nil
		}

		subject, ok := parseChatCommand(input.Body.Message, input.Body.From)
		if !ok {
			return &models.ChatWebhookResponse{Body: models.ChatWebhookData{
				Status:  chatIgnored,
				Message: "no command recognized",
			}}, nil
		}
		if subject.Kind == scheduler.KindCameraAnalysis {
			if _, exists := settings.Cameras[subject.ID]; !exists {
				return &models.ChatWebhookResponse{Body: models.ChatWebhookData{
					Status:  chatIgnored,
					Action:  string(subject.Kind),
					Subject: subject.ID,
					Message: "unknown camera",
				}}, nil
			}
		}
		if subject.Kind == scheduler.KindMeter {
			if _, exists := settings.Meters[subject.ID]; !exists {
				return &models.ChatWebhookResponse{Body: models.ChatWebhookData{
					Status:  chatIgnored,
					Action:  string(subject.Kind),
					Subject: subject.ID,
					Message: "unknown meter",
				}}, nil
			}
		}

		if err := s.app.TriggerAsync(subject); err != nil {
			return nil, s.mapError(err)
		}
		s.logger.Info("Chat command triggered", "from", input.Body.From, "kind", subject.Kind, "subject", subject.ID)
		return &models.ChatWebhookResponse{Body: models.ChatWebhookData{
			Status:  chatTriggered,
			Action:  string(subject.Kind),
			Subject: subject.ID,
		}}, nil
	})
}

// parseChatCommand maps a chat message to a subject. Person finder results
// go back to the sender.
func parseChatCommand(message, from string) (scheduler.Subject, bool) {
	fields := strings.Fields(message)
	if len(fields) == 0 {
		return scheduler.Subject{}, false
	}
	verb, rest := strings.ToLower(fields[0]), fields[1:]

	switch verb {
	case "patrol":
		return scheduler.Subject{Kind: scheduler.KindPatrol}, true
	case "find":
		var names []string
		for _, f := range rest {
			for _, n := range strings.Split(f, ",") {
				if n = strings.TrimSpace(n); n != "" && !strings.EqualFold(n, "and") {
					names = append(names, n)
				}
			}
		}
		if len(names) == 0 {
			return scheduler.Subject{}, false
		}
		return scheduler.Subject{
			Kind: scheduler.KindPersonFinder,
			Args: scheduler.Args{Names: names, Recipients: []string{from}},
		}, true
	case "cek", "check":
		if len(rest) != 1 {
			return scheduler.Subject{}, false
		}
		return scheduler.CameraSubject(rest[0], false, scheduler.Schedule{}), true
	case "meter":
		if len(rest) != 1 {
			return scheduler.Subject{}, false
		}
		return scheduler.Subject{
			Kind: scheduler.KindMeter,
			ID:   rest[0],
			Args: scheduler.Args{MeterID: rest[0]},
		}, true
	}
	return scheduler.Subject{}, false
}
