package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"dealdesk/internal/domain"
)

const maxChatBodyBytes = 64 * 1024

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	session := s.sessions.GetOrCreate(req.SessionID)
	reply, err := s.agent.Chat(r.Context(), session, req.Message)
	if err != nil {
		s.logger.Error("chat failed", "session_id", session.ID, "error", err)
		s.writeError(w, http.StatusBadGateway, "chat failed: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, chatResponse{SessionID: session.ID, Reply: reply})
}

// handleChatStream streams the agent's response as server-sent events. Each
// event's data line is one JSON-encoded chunk; the stream ends after the
// done or error chunk.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	session := s.sessions.GetOrCreate(req.SessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-Id", session.ID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk := range s.agent.ChatStream(r.Context(), session, req.Message) {
		data, err := json.Marshal(chunk)
		if err != nil {
			s.logger.Warn("gateway: marshal chunk failed", "error", err)
			continue
		}
		if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	body := http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return req, false
	}
	return req, true
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.Summary(r.Context())
	if err != nil {
		s.logger.Error("summary failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "summary unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.DealFilter{
		Status: q.Get("status"),
		Stage:  q.Get("stage"),
		Limit:  50,
	}
	if v := q.Get("min_value"); v != "" {
		mv, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid min_value")
			return
		}
		filter.MinValue = mv
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	deals, err := s.store.QueryDeals(r.Context(), filter)
	if err != nil {
		s.logger.Error("deal query failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"count": len(deals), "deals": deals})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
