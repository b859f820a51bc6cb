// Package registry keeps one language server session per workspace root and
// replaces sessions whose connection died.
package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"agents-ide/src/internal/common"
	"agents-ide/src/internal/constants"
	"agents-ide/src/internal/errors"
	"agents-ide/src/server/lsp"
)

// Registry maps workspace roots to live sessions. Concurrent Get calls for
// one root share a single start.
type Registry struct {
	cfg  lsp.Config
	opts []lsp.Option

	mu       sync.Mutex
	sessions map[string]*lsp.Session
	closed   bool

	starts singleflight.Group
	logger *common.SafeLogger
}

// New creates an empty registry. Every session is created from cfg and opts.
func New(cfg lsp.Config, opts ...lsp.Option) *Registry {
	return &Registry{
		cfg:      cfg,
		opts:     opts,
		sessions: make(map[string]*lsp.Session),
		logger:   common.SessionLogger.With("component", "registry"),
	}
}

// NormalizeRoot turns a directory path or file:// URI into the registry key
func NormalizeRoot(root string) (string, error) {
	if root == "" {
		return "", errors.NewValidationError("root", "workspace root is empty")
	}
	root = strings.TrimPrefix(root, "file://")
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root %s: %w", root, err)
	}
	return filepath.Clean(abs), nil
}

func (r *Registry) live(key string) *lsp.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.sessions[key]; s != nil && s.Initialized() {
		return s
	}
	return nil
}

// Get returns the live session for root, starting one when none exists or
// the previous one has died
func (r *Registry) Get(ctx context.Context, root string) (*lsp.Session, error) {
	key, err := NormalizeRoot(root)
	if err != nil {
		return nil, err
	}
	if s := r.live(key); s != nil {
		return s, nil
	}

	// The start is shared, so it must not die with the caller that began it
	ch := r.starts.DoChan(key, func() (interface{}, error) {
		return r.start(key)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			r.logger.Debug("Shared session start for %s", key)
		}
		return res.Val.(*lsp.Session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) start(key string) (*lsp.Session, error) {
	if s := r.live(key); s != nil {
		return s, nil
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.ErrSessionStopped
	}
	dead := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()

	if dead != nil {
		r.logger.Warn("Replacing session for %s: %v", key, dead.Err())
		_ = dead.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.startTimeout())
	defer cancel()
	s := lsp.New(r.cfg, r.opts...)
	if err := s.Start(ctx, key); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = s.Stop()
		return nil, errors.ErrSessionStopped
	}
	r.sessions[key] = s
	r.mu.Unlock()
	r.logger.Info("Started session %s for %s", s.ID(), key)
	return s, nil
}

// startTimeout bounds a detached start: the handshake plus process spawn
func (r *Registry) startTimeout() time.Duration {
	timeout := r.cfg.InitializeTimeout
	if timeout <= 0 {
		timeout = constants.DefaultInitializeTimeout
	}
	return timeout + constants.ProcessShutdownTimeout
}

// Do runs fn against the session for root. When fn fails because the
// connection died, the session is replaced and fn runs once more.
func (r *Registry) Do(ctx context.Context, root string, fn func(*lsp.Session) error) error {
	s, err := r.Get(ctx, root)
	if err != nil {
		return err
	}
	err = fn(s)
	if err == nil || !errors.IsConnectionFatal(err) || ctx.Err() != nil {
		return err
	}

	r.logger.Warn("Session %s lost its server, restarting: %v", s.ID(), err)
	// Teardown after a fatal loop error is asynchronous
	select {
	case <-s.Done():
	case <-ctx.Done():
		return err
	case <-time.After(r.cfg.ShutdownTimeout + constants.ProcessShutdownTimeout):
	}
	r.forget(root, s)
	s, err = r.Get(ctx, root)
	if err != nil {
		return err
	}
	return fn(s)
}

func (r *Registry) forget(root string, s *lsp.Session) {
	key, err := NormalizeRoot(root)
	if err != nil {
		return
	}
	r.mu.Lock()
	if r.sessions[key] == s {
		delete(r.sessions, key)
	}
	r.mu.Unlock()
	_ = s.Stop()
}

// Stop stops and forgets the session for root. Unknown roots are a no-op.
func (r *Registry) Stop(root string) error {
	key, err := NormalizeRoot(root)
	if err != nil {
		return err
	}
	r.mu.Lock()
	s := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Stop()
}

// StopAll stops every session concurrently and rejects later Get calls
func (r *Registry) StopAll() error {
	r.mu.Lock()
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]*lsp.Session)
	r.mu.Unlock()

	var g errgroup.Group
	for root, s := range sessions {
		root, s := root, s
		g.Go(func() error {
			if err := s.Stop(); err != nil {
				return fmt.Errorf("stop session for %s: %w", root, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Roots lists the workspace roots with a registered session, sorted
func (r *Registry) Roots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	roots := make([]string, 0, len(r.sessions))
	for root := range r.sessions {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}
