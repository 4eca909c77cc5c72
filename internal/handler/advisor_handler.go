package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/service"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// draftRequest is a snapshot of the opportunity form.
type draftRequest struct {
	Description string `json:"description"`
	Value       int64  `json:"value"`
}

// advisorMessage is the outgoing websocket frame.
type advisorMessage struct {
	Type       string                  `json:"type"` // "suggestion" or "error"
	Suggestion *domain.StageSuggestion `json:"suggestion,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

func suggestStageHandler(svc *service.StageAdvisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/advisor/stage")
		defer span.End()

		var req draftRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, svc.Suggest(ctx, SessionFromContext(ctx).TenantName, req.Description, req.Value))
	}
}

// liveAdvisorHandler streams stage suggestions while the operator types.
// Every frame the client sends replaces the draft; the server answers
// once typing pauses for the debounce delay.
func liveAdvisorHandler(svc *service.StageAdvisor, debounce time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("advisor: websocket upgrade", zap.Error(err))
			return
		}
		defer conn.Close()

		var writeMu sync.Mutex
		send := func(msg advisorMessage) {
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug("advisor: websocket write", zap.Error(err))
			}
		}

		draft := svc.NewDraftSession(r.Context(), sess.TenantName, debounce, func(s domain.StageSuggestion) {
			send(advisorMessage{Type: "suggestion", Suggestion: &s})
		})
		defer draft.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("advisor: websocket read", zap.Error(err))
				}
				return
			}

			var req draftRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				send(advisorMessage{Type: "error", Error: "invalid message format"})
				continue
			}
			draft.Update(req.Description, req.Value)
		}
	}
}
