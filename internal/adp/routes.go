package adp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/fbromtl/gouvernance-sub001/internal/errkind"
	"github.com/fbromtl/gouvernance-sub001/internal/trace"
)

const maxBodyBytes = 1 << 20

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RegisterRoutes mounts the request/response endpoints under /api/adp.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Get("/api/adp/tools", handleListTools())
	r.Post("/api/adp/tools/{tool}", handleCallTool(svc))
	r.Get("/api/adp/resources/{name}", handleReadResource(svc))
}

// RegisterStream mounts the live trace feed. It is long-lived, so callers
// should keep it out of request timeout middleware.
func RegisterStream(r chi.Router, svc *Service, feed *trace.Feed) {
	r.Get("/api/adp/traces/stream", handleStream(svc, feed))
}

// credentialsFrom reads the bearer token. For register_agent it is the user
// session token, everywhere else the agent key.
func credentialsFrom(r *http.Request, tool string) Credentials {
	token := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if tool == ToolRegisterAgent {
		return Credentials{SessionToken: token}
	}
	return Credentials{APIKey: token}
}

func handleListTools() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"tools":     ToolNames,
			"resources": ResourceNames,
		})
	}
}

func handleCallTool(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tool := chi.URLParam(r, "tool")
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, errkind.E(errkind.ErrValidation, "reading request body: %v", err))
			return
		}
		out, err := svc.CallTool(r.Context(), tool, credentialsFrom(r, tool), body)
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if tool == ToolRegisterAgent || tool == ToolAddPolicy || tool == ToolLogTrace {
			status = http.StatusCreated
		}
		writeJSON(w, status, out)
	}
}

func handleReadResource(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := map[string]string{}
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		out, err := svc.ReadResource(r.Context(), chi.URLParam(r, "name"), credentialsFrom(r, ""), params)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleStream upgrades to a WebSocket and pushes every trace appended in
// the caller's organization until either side goes away.
func handleStream(svc *Service, feed *trace.Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, err := svc.Authenticate(r.Context(), credentialsFrom(r, ""))
		if err != nil {
			writeError(w, err)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			svc.logger.Warn("trace stream upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		sub, cancel := feed.Subscribe(ac.OrganizationID, 64)
		defer cancel()
		svc.logger.Info("trace stream opened", "organization", ac.OrganizationID, "agent", ac.AgentID, "subscribers", feed.Subscribers())

		// The read loop only exists to notice the client closing.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						svc.logger.Debug("trace stream read", "error", err)
					}
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case t, ok := <-sub.C:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(t); err != nil {
					svc.logger.Debug("trace stream write", "error", err)
					return
				}
			}
		}
	}
}

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, errkind.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errkind.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errkind.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errkind.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), errorBody{Error: errkind.Kind(err), Message: errkind.Message(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
