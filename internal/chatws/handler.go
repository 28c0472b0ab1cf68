// Package chatws is the text-channel surface: a websocket per chat
// conversation, each inbound message one dialogue turn.
package chatws

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"bookline/agent/internal/dialog"
	"bookline/agent/internal/routing"

	ws "nhooyr.io/websocket"
)

// Inbound is one client message.
type Inbound struct {
	Type string `json:"type"` // "message"
	Text string `json:"text"`
}

// Outbound is one assistant reply.
type Outbound struct {
	Type   string `json:"type"` // "reply"
	Reply  string `json:"reply"`
	State  string `json:"state"`
	CallID string `json:"call_id"`
}

type Server struct {
	Engine   *dialog.Engine
	Resolver routing.Resolver
	Reg      *Registry
}

func NewServer(e *dialog.Engine, r routing.Resolver, reg *Registry) *Server {
	return &Server{Engine: e, Resolver: r, Reg: reg}
}

// HandleChatWS serves /ws/chat?tenant_id=...&call_id=... (or routing_key=
// instead of tenant_id). A missing call_id starts a fresh conversation.
func (s *Server) HandleChatWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenant := q.Get("tenant_id")
	if tenant == "" {
		var ok bool
		tenant, ok = s.Resolver.Resolve("text", q.Get("routing_key"))
		if !ok {
			http.Error(w, "unknown routing key", http.StatusNotFound)
			return
		}
	}
	callID := q.Get("call_id")
	if callID == "" {
		callID = uuid.New().String()
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		log.Printf("[chatws] accept: %v", err)
		return
	}
	s.Reg.Replace(tenant, callID, c)
	defer s.Reg.Remove(tenant, callID)

	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ != ws.MessageText {
			continue
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[chatws] %s/%s: bad message: %v", tenant, callID, err)
			continue
		}
		if msg.Type != "" && msg.Type != "message" {
			continue
		}

		reply := s.Engine.Turn(ctx, dialog.TurnRequest{
			TenantID: tenant,
			CallID:   callID,
			Channel:  "text",
			Text:     msg.Text,
			Final:    true,
		})
		if reply.NoReply {
			continue
		}
		if err := s.Reg.SendJSON(ctx, tenant, callID, Outbound{
			Type:   "reply",
			Reply:  reply.Reply,
			State:  string(reply.State),
			CallID: callID,
		}); err != nil {
			log.Printf("[chatws] %s/%s: write: %v", tenant, callID, err)
			break
		}
	}
	_ = c.Close(ws.StatusNormalClosure, "done")
}
