package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/gorilla/websocket"

	"github.com/smazurov/watchnode/internal/api/models"
	"github.com/smazurov/watchnode/internal/camera"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	// Live view is served to the same LAN clients as the rest of the API
	CheckOrigin: func(*http.Request) bool { return true },
}

// registerStreamRoutes registers the MJPEG and websocket live views.
func (s *Server) registerStreamRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "stream-camera-mjpeg",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}/stream",
		Summary:     "MJPEG Stream",
		Description: "multipart/x-mixed-replace stream of the camera's frames. Ends after about 30s without a new frame.",
		Tags:        []string{"streams"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraIDInput) (*huma.StreamResponse, error) {
		if _, ok := s.app.Registry().Get(input.ID); !ok {
			return nil, huma.Error404NotFound("camera " + input.ID + " is not running")
		}
		id := input.ID
		return &huma.StreamResponse{
			Body: func(hctx huma.Context) {
				hctx.SetHeader("Content-Type", camera.MJPEGContentType())
				hctx.SetHeader("Cache-Control", "no-cache, no-store")
				hctx.SetHeader("Connection", "close")
				w := hctx.BodyWriter()
				flush := func() {
					if f, ok := w.(http.Flusher); ok {
						f.Flush()
					}
				}
				err := camera.StreamMJPEG(hctx.Context(), w, flush, s.app.Registry(), id, camera.DefaultStreamOptions())
				s.logStreamEnd("mjpeg", id, err)
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stream-camera-ws",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}/ws",
		Summary:     "Websocket Stream",
		Description: "Websocket that sends every new JPEG frame as a binary message",
		Tags:        []string{"streams"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraIDInput) (*huma.StreamResponse, error) {
		if _, ok := s.app.Registry().Get(input.ID); !ok {
			return nil, huma.Error404NotFound("camera " + input.ID + " is not running")
		}
		id := input.ID
		return &huma.StreamResponse{
			Body: func(hctx huma.Context) {
				r, w := humago.Unwrap(hctx)
				conn, err := upgrader.Upgrade(w, r, nil)
				if err != nil {
					s.logger.Warn("Websocket upgrade failed", "camera_id", id, "error", err)
					return
				}
				defer conn.Close()
				s.serveWebsocket(r.Context(), conn, id)
			},
		}, nil
	})
}

// serveWebsocket forwards frames until the client goes away or the camera idles.
func (s *Server) serveWebsocket(ctx context.Context, conn *websocket.Conn, id string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Drain client messages so close frames and pings are handled
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	err := camera.StreamFrames(ctx, s.app.Registry(), id, camera.DefaultStreamOptions(), func(data []byte) error {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return err
		}
		return conn.WriteMessage(websocket.BinaryMessage, data)
	})
	s.logStreamEnd("websocket", id, err)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (s *Server) logStreamEnd(kind, id string, err error) {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		s.logger.Debug("Stream client disconnected", "kind", kind, "camera_id", id)
	case errors.Is(err, camera.ErrStreamIdle):
		s.logger.Info("Stream ended, no new frames", "kind", kind, "camera_id", id)
	default:
		s.logger.Debug("Stream ended", "kind", kind, "camera_id", id, "error", err)
	}
}
