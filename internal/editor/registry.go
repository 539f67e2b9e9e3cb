package editor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Registry owns the live sessions of a server process.
type Registry struct {
	cfg Config
	ttl time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(cfg Config, ttl time.Duration) *Registry {
	return &Registry{
		cfg:      cfg,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

func (r *Registry) Create() *Session {
	s := NewSession(uuid.New().String(), r.cfg)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	return s, ok
}

func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EvictIdle drops sessions not used since now-ttl and returns how many were removed.
func (r *Registry) EvictIdle(now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.LastUsed().Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// StartJanitor evicts idle sessions on the given cron spec until ctx is done.
func (r *Registry) StartJanitor(ctx context.Context, spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if n := r.EvictIdle(time.Now()); n > 0 {
			log.Ctx(ctx).Debug().Int("evicted", n).Int("live", r.Len()).Msg("evicted idle sessions")
		}
	}); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", spec, err)
	}
	c.Start()

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
