package api

import (
	"encoding/json"
	"io"
	"net/http"

	"bookline/agent/internal/dialog"
	"bookline/agent/internal/events"
	"bookline/agent/internal/routing"
)

type Handlers struct {
	engine   *dialog.Engine
	resolver routing.Resolver
	events   *events.Store
}

func NewHandlers(e *dialog.Engine, r routing.Resolver, ev *events.Store) *Handlers {
	return &Handlers{engine: e, resolver: r, events: ev}
}

// turnRequest is the webhook payload for one transcript event.
type turnRequest struct {
	TenantID   string   `json:"tenant_id,omitempty"`
	RoutingKey string   `json:"routing_key,omitempty"`
	CallID     string   `json:"call_id"`
	Channel    string   `json:"channel"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Final      *bool    `json:"final,omitempty"`
}

type turnResponse struct {
	CallID  string `json:"call_id"`
	Reply   string `json:"reply"`
	State   string `json:"state"`
	NoReply bool   `json:"no_reply,omitempty"`
}

func (h *Handlers) HandleTurn(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	var req turnRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.CallID == "" {
		http.Error(w, "missing call_id", http.StatusBadRequest)
		return
	}
	channel := req.Channel
	if channel == "" {
		channel = "voice"
	}

	tenant := req.TenantID
	if tenant == "" {
		var ok bool
		tenant, ok = h.resolver.Resolve(channel, req.RoutingKey)
		if !ok {
			http.Error(w, "unknown routing key", http.StatusNotFound)
			return
		}
	}

	// Absent means final: webhook platforms that never send partials don't
	// have to say so on every event.
	final := true
	if req.Final != nil {
		final = *req.Final
	}

	reply := h.engine.Turn(r.Context(), dialog.TurnRequest{
		TenantID:   tenant,
		CallID:     req.CallID,
		Channel:    channel,
		Text:       req.Text,
		Confidence: req.Confidence,
		Final:      final,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(turnResponse{
		CallID:  req.CallID,
		Reply:   reply.Reply,
		State:   string(reply.State),
		NoReply: reply.NoReply,
	})
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request, tenant, call string) {
	evts := h.events.List(tenant, call)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"tenant_id": tenant,
		"call_id":   call,
		"events":    evts,
	})
}
