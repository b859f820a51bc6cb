package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.lsp.dev/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"agents-ide/src/internal/common"
	"agents-ide/src/internal/constants"
	"agents-ide/src/internal/errors"
	"agents-ide/src/server/diagnostics"
	"agents-ide/src/server/pending"
	"agents-ide/src/server/process"
	lspproto "agents-ide/src/server/protocol"
)

// Config configures one session
type Config struct {
	Process process.Config
	// InitializationOptions is sent verbatim in the initialize request
	InitializationOptions interface{}
	// MaxMessageBytes caps the Content-Length accepted from the server
	MaxMessageBytes int

	RequestTimeout    time.Duration
	InitializeTimeout time.Duration
	// ShutdownTimeout bounds how long Stop waits for the dispatch loop; the
	// process grace period is configured on Process
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = constants.DefaultRequestTimeout
	}
	if c.InitializeTimeout <= 0 {
		c.InitializeTimeout = constants.DefaultInitializeTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = constants.DispatchStopTimeout
	}
}

// Option customizes a session
type Option func(*Session)

// WithMeterProvider records metrics through provider instead of the global one
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(s *Session) {
		s.meterProvider = provider
	}
}

// WithTracerProvider creates spans through provider instead of the global one
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(s *Session) {
		s.tracer = provider.Tracer(instrumentationName)
	}
}

// WithLogger replaces the default session logger
func WithLogger(logger *common.SafeLogger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

type sessionState int32

const (
	sessionIdle sessionState = iota
	sessionStarting
	sessionReady
	sessionStopping
	sessionStopped
)

func (s sessionState) String() string {
	switch s {
	case sessionIdle:
		return "idle"
	case sessionStarting:
		return "starting"
	case sessionReady:
		return "ready"
	case sessionStopping:
		return "stopping"
	case sessionStopped:
		return "stopped"
	}
	return "unknown"
}

// Session is a persistent connection to one language server process. It is
// single-use: once stopped, create a new Session to reconnect.
type Session struct {
	id            string
	cfg           Config
	logger        *common.SafeLogger
	tracer        trace.Tracer
	meterProvider metric.MeterProvider
	metrics       *sessionMetrics

	mu         sync.Mutex
	state      sessionState
	proc       *process.Process
	initResult json.RawMessage

	// writeMu covers id allocation and the frame write so requests hit the
	// wire in id order
	writeMu sync.Mutex
	nextID  int64

	table *pending.Table
	store *diagnostics.Store

	initialized atomic.Bool
	stopping    atomic.Bool

	loopDone chan struct{}
	done     chan struct{}
	doneOnce sync.Once
	errMu    sync.Mutex
	err      error
	stopOnce sync.Once
}

// New creates an idle session. Call Start to launch the server.
func New(cfg Config, opts ...Option) *Session {
	cfg.applyDefaults()
	id := uuid.NewString()
	s := &Session{
		id:   id,
		cfg:  cfg,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = common.SessionLogger.With("session", id[:8])
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(instrumentationName)
	}
	metrics, err := newSessionMetrics(s.meterProvider)
	if err != nil {
		s.logger.Warn("Metrics disabled: %v", err)
		metrics, _ = newSessionMetrics(noop.NewMeterProvider())
	}
	s.metrics = metrics
	s.table = pending.NewTable(s.logger)
	s.store = diagnostics.NewStore()
	return s
}

// Start launches the language server, runs the initialize handshake and
// sends initialized. rootURI is a file:// URI or a directory path. Any
// failure returns a StartupError and leaves nothing running.
func (s *Session) Start(ctx context.Context, rootURI string) error {
	s.mu.Lock()
	if s.state != sessionIdle {
		s.mu.Unlock()
		return errors.ErrAlreadyStarted
	}
	s.state = sessionStarting
	s.mu.Unlock()

	command := s.cfg.Process.CommandLine()
	proc, err := process.Spawn(s.cfg.Process)
	s.metrics.recordSpawn(ctx, err == nil)
	if err != nil {
		s.table.Close(errors.ErrSessionStopped)
		s.finish(errors.NewStartupError(command, err))
		return errors.NewStartupError(command, err)
	}

	s.mu.Lock()
	if s.state != sessionStarting {
		// Stopped while spawning
		s.mu.Unlock()
		proc.Terminate()
		return errors.NewStartupError(command, errors.ErrSessionStopped)
	}
	s.proc = proc
	s.loopDone = make(chan struct{})
	s.mu.Unlock()
	dec := lspproto.NewDecoder(proc.Stdout())
	if s.cfg.MaxMessageBytes > 0 {
		dec.SetMaxBodySize(s.cfg.MaxMessageBytes)
	}
	go s.dispatchLoop(proc, dec)

	root := rootToURI(rootURI)
	s.logger.Info("Initializing %s for %s", command, root)
	result, err := s.call(ctx, protocol.MethodInitialize, s.initializeParams(root), s.cfg.InitializeTimeout)
	if err == nil {
		err = s.notify(protocol.MethodInitialized, &protocol.InitializedParams{})
	}
	if err != nil {
		startErr := errors.NewStartupError(command, err)
		s.logger.Error("Handshake failed: %v", err)
		s.stopOnce.Do(func() { s.shutdown(startErr, false) })
		return startErr
	}

	s.mu.Lock()
	if s.state != sessionStarting {
		// Stop or a fatal loop error raced the handshake
		s.mu.Unlock()
		return errors.NewStartupError(command, s.Err())
	}
	s.initResult = result
	s.state = sessionReady
	s.initialized.Store(true)
	s.mu.Unlock()

	s.logger.Info("Language server ready (pid %d)", proc.PID())
	return nil
}

// Request sends method with params and waits for the matching response,
// the timeout, or ctx. A zero timeout uses the configured default. Exactly
// one of result or error is returned.
func (s *Session) Request(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	if !s.initialized.Load() {
		if err := s.table.Err(); err != nil {
			return nil, err
		}
		return nil, errors.ErrNotInitialized
	}
	return s.call(ctx, method, params, timeout)
}

// call is Request without the handshake check; the handshake goes through it
func (s *Session) call(ctx context.Context, method string, params interface{}, timeout time.Duration) (result json.RawMessage, err error) {
	if timeout <= 0 {
		timeout = s.cfg.RequestTimeout
	}
	ctx, span := s.startRequestSpan(ctx, method, timeout)
	started := time.Now()
	var id int64
	defer func() {
		s.metrics.recordRequest(ctx, method, time.Since(started), err)
		endRequestSpan(span, id, err)
	}()

	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	s.nextID++
	id = s.nextID
	pc, err := s.table.Register(id, method, timeout)
	if err != nil {
		s.writeMu.Unlock()
		return nil, err
	}
	msg, err := lspproto.NewRequest(id, method, raw)
	if err == nil {
		err = lspproto.WriteMessage(s.proc, msg)
	}
	s.writeMu.Unlock()

	s.metrics.pendingRequests.Add(ctx, 1)
	defer s.metrics.pendingRequests.Add(ctx, -1)

	if err != nil {
		s.table.Fail(id, fmt.Errorf("send %s request: %w", method, err))
	}
	s.logger.Debug("-> request %d %s", id, method)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-pc.Done():
	case <-timer.C:
		s.table.Expire(id)
	case <-ctx.Done():
		s.table.Fail(id, ctx.Err())
	}
	<-pc.Done()
	return pc.Result()
}

// Notify sends a notification. It does not wait for the server.
func (s *Session) Notify(method string, params interface{}) error {
	if !s.initialized.Load() {
		if err := s.table.Err(); err != nil {
			return err
		}
		return errors.ErrNotInitialized
	}
	return s.notify(method, params)
}

func (s *Session) notify(method string, params interface{}) error {
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	msg, err := lspproto.NewNotification(method, raw)
	if err != nil {
		return err
	}
	s.logger.Debug("-> notification %s", method)
	if err := lspproto.WriteMessage(s.proc, msg); err != nil {
		return fmt.Errorf("send %s notification: %w", method, err)
	}
	return nil
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, errors.NewValidationError("params", err.Error())
	}
	return raw, nil
}

// Stop shuts the session down: every pending call fails with
// ErrSessionStopped, a ready server is sent shutdown and exit without
// waiting, then the process is terminated. It is idempotent and safe
// to call on a session that never started.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() { s.shutdown(errors.ErrSessionStopped, true) })

	s.mu.Lock()
	loopDone := s.loopDone
	s.mu.Unlock()
	if loopDone == nil {
		return nil
	}
	select {
	case <-loopDone:
		return nil
	case <-time.After(s.cfg.ShutdownTimeout):
		return fmt.Errorf("dispatch loop did not exit within %v", s.cfg.ShutdownTimeout)
	}
}

// shutdown runs once per session, either from Stop or after a fatal
// connection error
func (s *Session) shutdown(cause error, polite bool) {
	s.stopping.Store(true)

	s.mu.Lock()
	prev := s.state
	if s.state != sessionStopped {
		s.state = sessionStopping
	}
	proc := s.proc
	s.mu.Unlock()

	if proc == nil {
		s.table.Close(cause)
		s.finish(cause)
		return
	}

	if n := s.table.Close(cause); n > 0 {
		s.logger.Info("Failed %d pending requests: %s", n, common.SanitizeErrorForLogging(cause))
	}
	if polite && prev == sessionReady && !proc.Exited() {
		s.sayGoodbye()
	}
	proc.Terminate()
	s.finish(cause)
	s.logger.Info("Session stopped (%s)", prev)
}

// sayGoodbye writes shutdown and exit without waiting for the answer. The
// table is already closed, so the shutdown response is discarded as unknown.
func (s *Session) sayGoodbye() {
	s.writeMu.Lock()
	s.nextID++
	msg, err := lspproto.NewRequest(s.nextID, protocol.MethodShutdown, nil)
	if err == nil {
		err = lspproto.WriteMessage(s.proc, msg)
	}
	s.writeMu.Unlock()
	if err == nil {
		err = s.notify(protocol.MethodExit, nil)
	}
	if err != nil {
		s.logger.Debug("shutdown courtesy failed: %v", err)
	}
}

// finish records why the session ended and releases Done waiters
func (s *Session) finish(cause error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = cause
	}
	s.errMu.Unlock()

	s.mu.Lock()
	s.state = sessionStopped
	s.mu.Unlock()
	s.initialized.Store(false)
	s.doneOnce.Do(func() { close(s.done) })
}

// LatestNotification returns the most recent push payload for subject (a
// document URI). It never blocks.
func (s *Session) LatestNotification(subject string) (json.RawMessage, bool) {
	return s.store.Latest(subject)
}

// Generation returns how many payloads arrived for subject so far
func (s *Session) Generation(subject string) uint64 {
	return s.store.Generation(subject)
}

// WaitNotification waits until subject has a payload newer than generation
// after, bounded by ctx
func (s *Session) WaitNotification(ctx context.Context, subject string, after uint64) (json.RawMessage, error) {
	payload, _, err := s.store.Wait(ctx, subject, after)
	return payload, err
}

// Initialized reports whether the handshake completed and the session has
// not stopped
func (s *Session) Initialized() bool {
	return s.initialized.Load()
}

// InitializeResult returns the server's reply to initialize
func (s *Session) InitializeResult() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initResult
}

// Done is closed when the session has stopped for any reason
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended: ErrSessionStopped after Stop, or the
// connection-fatal error. It is nil while the session runs.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// ID identifies the session in logs
func (s *Session) ID() string {
	return s.id
}

// Pending returns the number of requests awaiting a response
func (s *Session) Pending() int {
	return s.table.Len()
}

// PID returns the server process id, 0 before Start
func (s *Session) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0
	}
	return s.proc.PID()
}
