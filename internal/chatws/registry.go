package chatws

import (
	"context"
	"encoding/json"
	"sync"

	ws "nhooyr.io/websocket"
)

// Registry keeps at most one chat connection per call. A reconnect replaces
// the previous socket so a flaky client never ends up with two readers.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*ws.Conn
}

func NewRegistry() *Registry { return &Registry{conns: make(map[string]*ws.Conn)} }

func key(tenant, call string) string { return tenant + "/" + call }

// Replace sets the connection for a call and closes the previous one if present.
func (r *Registry) Replace(tenant, call string, c *ws.Conn) (prevClosed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(tenant, call)
	if old, ok := r.conns[k]; ok && old != nil {
		_ = old.Close(ws.StatusNormalClosure, "replaced")
		prevClosed = true
	}
	r.conns[k] = c
	return
}

func (r *Registry) Remove(tenant, call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, key(tenant, call))
}

// SendJSON writes v to the call's connection, if any.
func (r *Registry) SendJSON(ctx context.Context, tenant, call string, v any) error {
	r.mu.Lock()
	c := r.conns[key(tenant, call)]
	r.mu.Unlock()
	if c == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Write(ctx, ws.MessageText, b)
}
