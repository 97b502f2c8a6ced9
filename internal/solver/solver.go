// Package solver wraps the LP/vessel-scheduling engine subprocess: a
// long-running process speaking length-prefixed binary frames on
// stdin/stdout, supervised with restart-after-backoff, grounded on the
// teacher's exec.CommandContext invocation idiom (platform/localmedia/tools.go)
// and its dial-retry/backoff idiom (temporalx/client.go) for supervision.
// The framing itself has no teacher analogue (the teacher's subprocess
// speaks line-oriented JSON); it follows the length-prefixed binary layout
// the solver engine itself requires.
package solver

import (
	"bufio"
	"context"
	"io"
	"math"
	"math/rand"
	"os/exec"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/riverdock/contractdesk/internal/domain/errs"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/platform/otelx"
)

// Config parameterises the subprocess and its timeouts.
type Config struct {
	BinaryPath        string
	Args              []string
	SolveTimeout      time.Duration // default 5s
	MonteCarloTimeout time.Duration // default 30s
	RestartBackoffMin time.Duration
	RestartBackoffMax time.Duration
}

func (c Config) withDefaults() Config {
	if c.SolveTimeout == 0 {
		c.SolveTimeout = 5 * time.Second
	}
	if c.MonteCarloTimeout == 0 {
		c.MonteCarloTimeout = 30 * time.Second
	}
	if c.RestartBackoffMin == 0 {
		c.RestartBackoffMin = 500 * time.Millisecond
	}
	if c.RestartBackoffMax == 0 {
		c.RestartBackoffMax = 30 * time.Second
	}
	return c
}

type pendingCall struct {
	productGroup string
	cmd          Cmd
	payload      []byte
	desc         ModelDescriptor
	respCh       chan rawResponse
	errCh        chan error
}

type rawResponse struct {
	status  Status
	payload []byte
}

// Port is the SolverPort: exactly one outstanding command per product
// group, FIFO-queued across product groups onto a single subprocess, which
// restarts with backoff on crash.
type Port struct {
	log *logger.Logger
	cfg Config

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	inFlight map[string]bool // product groups with a call currently queued or in flight

	calls chan pendingCall

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Port and starts its supervisor loop. Call Close to stop it.
func New(log *logger.Logger, cfg Config) *Port {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Port{
		log:      log.With("component", "solver"),
		cfg:      cfg,
		inFlight: make(map[string]bool),
		calls:    make(chan pendingCall, 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	p.wg.Add(1)
	go p.supervise()
	return p
}

// Close stops the supervisor and kills the subprocess.
func (p *Port) Close() {
	p.cancel()
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

func (p *Port) supervise() {
	defer p.wg.Done()
	attempt := 0
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		if err := p.startProcess(); err != nil {
			p.log.Errorw("solver subprocess failed to start", "err", err, "attempt", attempt)
			if !p.sleepBackoff(attempt) {
				return
			}
			attempt++
			continue
		}
		attempt = 0

		p.serveUntilExit()

		select {
		case <-p.ctx.Done():
			return
		default:
		}
		p.log.Warnw("solver subprocess exited unexpectedly, restarting after backoff")
		if !p.sleepBackoff(attempt) {
			return
		}
		attempt++
	}
}

func (p *Port) sleepBackoff(attempt int) bool {
	d := computeBackoff(attempt, p.cfg.RestartBackoffMin, p.cfg.RestartBackoffMax)
	select {
	case <-time.After(d):
		return true
	case <-p.ctx.Done():
		return false
	}
}

// computeBackoff is capped exponential backoff with jitter (a random 50–100%
// of the capped delay), the same shape
// as the teacher's orchestrator engine's retry/backoff computation.
func computeBackoff(attempt int, min, max time.Duration) time.Duration {
	exp := float64(min) * math.Pow(2, float64(attempt))
	if exp > float64(max) {
		exp = float64(max)
	}
	jittered := exp * (0.5 + rand.Float64()*0.5)
	return time.Duration(jittered)
}

func (p *Port) startProcess() error {
	cmd := exec.Command(p.cfg.BinaryPath, p.cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = nil // diagnostics only; dropped rather than surfaced to callers

	if err := cmd.Start(); err != nil {
		return err
	}

	p.mu.Lock()
	p.cmd = cmd
	p.stdin = stdin
	p.stdout = bufio.NewReaderSize(stdout, 64*1024)
	p.mu.Unlock()
	return nil
}

// serveUntilExit pulls calls off the queue one at a time and blocks until
// the subprocess dies or the context is cancelled. After a failed round
// trip it fails the in-flight call and every remaining queued call with
// SolverCrashed before returning; on cancellation it returns without
// failing queued calls.
func (p *Port) serveUntilExit() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case call := <-p.calls:
			resp, err := p.roundTrip(call.cmd, call.payload)
			p.release(call.productGroup)
			if err != nil {
				call.errCh <- err
				p.failRemainingQueued()
				return
			}
			call.respCh <- resp
		}
	}
}

func (p *Port) release(productGroup string) {
	p.mu.Lock()
	delete(p.inFlight, productGroup)
	p.mu.Unlock()
}

func (p *Port) failRemainingQueued() {
	for {
		select {
		case call := <-p.calls:
			p.release(call.productGroup)
			call.errCh <- errs.New(errs.SolverCrashed, "subprocess exited", nil)
		default:
			return
		}
	}
}

func (p *Port) roundTrip(cmd Cmd, payload []byte) (rawResponse, error) {
	p.mu.Lock()
	stdin, stdout := p.stdin, p.stdout
	p.mu.Unlock()

	if err := writeFrame(stdin, cmd, payload); err != nil {
		return rawResponse{}, errs.New(errs.SolverCrashed, "write failed", err)
	}
	status, respPayload, err := readFrame(stdout)
	if err != nil {
		return rawResponse{}, errs.New(errs.SolverCrashed, "read failed", err)
	}
	return rawResponse{status: status, payload: respPayload}, nil
}

// enqueue blocks until productGroup has no call already queued or in
// flight, then submits one. At most one outstanding command per product
// group is in the queue at a time; a second caller for the same product
// group waits here rather than racing the subprocess.
func (p *Port) enqueue(ctx context.Context, productGroup string, cmd Cmd, payload []byte, desc ModelDescriptor, timeout time.Duration) (rawResponse, error) {
	ctx, end := otelx.StartIOSpan(ctx, "solver", cmdName(cmd),
		attribute.String("product_group", productGroup))
	var err error
	defer func() { end(err) }()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		p.mu.Lock()
		busy := p.inFlight[productGroup]
		if !busy {
			p.inFlight[productGroup] = true
		}
		p.mu.Unlock()
		if !busy {
			break
		}
		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
			err = errs.New(errs.SolverUnavailable, "timed out waiting for prior solve on this product group", ctx.Err())
			return rawResponse{}, err
		}
	}

	pc := pendingCall{productGroup: productGroup, cmd: cmd, payload: payload, desc: desc,
		respCh: make(chan rawResponse, 1), errCh: make(chan error, 1)}
	select {
	case p.calls <- pc:
	case <-ctx.Done():
		p.release(productGroup)
		err = errs.New(errs.SolverUnavailable, "queue full or shutting down", ctx.Err())
		return rawResponse{}, err
	}

	select {
	case resp := <-pc.respCh:
		return resp, nil
	case callErr := <-pc.errCh:
		err = callErr
		return rawResponse{}, err
	case <-ctx.Done():
		err = errs.New(errs.SolverUnavailable, "command timed out", ctx.Err())
		return rawResponse{}, err
	}
}

func cmdName(cmd Cmd) string {
	switch cmd {
	case CmdSolve:
		return "solve"
	case CmdMonteCarlo:
		return "monte_carlo"
	default:
		return "unknown"
	}
}

// Solve runs one optimal-allocation pass for productGroup.
func (p *Port) Solve(ctx context.Context, productGroup string, desc ModelDescriptor, variables map[string]float64) (SolveResult, error) {
	payload := encodeSolveRequest(desc, variables)
	raw, err := p.enqueue(ctx, productGroup, CmdSolve, payload, desc, p.cfg.SolveTimeout)
	if err != nil {
		return SolveResult{}, err
	}
	if raw.status == StatusError {
		return SolveResult{}, errs.New(errs.SolverCrashed, "solver reported an internal error", nil)
	}
	return decodeSolveResponse(raw.status, raw.payload, desc)
}

// MonteCarlo runs nScenarios simulated draws for productGroup.
func (p *Port) MonteCarlo(ctx context.Context, productGroup string, desc ModelDescriptor, variables map[string]float64, nScenarios uint32) (MonteCarloResult, error) {
	payload := encodeMonteCarloRequest(desc, variables, nScenarios)
	raw, err := p.enqueue(ctx, productGroup, CmdMonteCarlo, payload, desc, p.cfg.MonteCarloTimeout)
	if err != nil {
		return MonteCarloResult{}, err
	}
	if raw.status == StatusError {
		return MonteCarloResult{}, errs.New(errs.SolverCrashed, "solver reported an internal error", nil)
	}
	return decodeMonteCarloResponse(raw.status, raw.payload, desc)
}
