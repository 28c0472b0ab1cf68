package sessions

import (
	"context"
	"log"
	"sync"
	"time"
)

// Store is the session persistence seam for the dialogue engine.
type Store interface {
	// GetOrCreate loads the session for (tenant, call), creating a fresh one
	// when none exists or the stored record is unreadable. Never fails on a
	// corrupted record.
	GetOrCreate(ctx context.Context, tenant, call, channel string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, tenant, call string) error
}

// Hybrid layers a process-local cache over the durable store. A cold start
// (empty cache) falls back to the durable record transparently.
type Hybrid struct {
	durable *SQLStore
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]*Session
}

// NewHybrid builds the hybrid store. durable may not be nil.
func NewHybrid(durable *SQLStore) *Hybrid {
	return &Hybrid{
		durable: durable,
		now:     time.Now,
		cache:   make(map[string]*Session),
	}
}

func key(tenant, call string) string { return tenant + "/" + call }

func (h *Hybrid) GetOrCreate(ctx context.Context, tenant, call, channel string) (*Session, error) {
	k := key(tenant, call)

	h.mu.RLock()
	cached := h.cache[k]
	h.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	payload, err := h.durable.Load(ctx, tenant, call)
	if err != nil {
		// Store trouble is not the caller's problem; start fresh and let
		// Save complain if the store is truly down.
		log.Printf("[session] load %s: %v (starting fresh)", k, err)
		payload = nil
	}

	var sess *Session
	if payload != nil {
		sess, err = Decode(payload)
		if err != nil {
			log.Printf("[session] corrupted record %s: %v (starting fresh)", k, err)
			sess = nil
		}
	}
	if sess == nil {
		sess = New(tenant, call, channel, h.now().UTC())
	} else if sess.sanitize() {
		log.Printf("[session] healed state/flag mismatch %s state=%s", k, sess.State)
	}

	h.mu.Lock()
	h.cache[k] = sess
	h.mu.Unlock()
	return sess, nil
}

func (h *Hybrid) Save(ctx context.Context, s *Session) error {
	payload, err := Encode(s)
	if err != nil {
		return err
	}
	if err := h.durable.Save(ctx, s.TenantID, s.CallID, payload); err != nil {
		return err
	}
	h.mu.Lock()
	h.cache[key(s.TenantID, s.CallID)] = s
	h.mu.Unlock()
	return nil
}

func (h *Hybrid) Delete(ctx context.Context, tenant, call string) error {
	h.mu.Lock()
	delete(h.cache, key(tenant, call))
	h.mu.Unlock()
	return h.durable.Delete(ctx, tenant, call)
}
