// Package scanner wraps the remote-document-store scanner subprocess: a
// long-running process speaking line-oriented JSON on stdin/stdout,
// supervised with restart-after-backoff, grounded on the teacher's
// exec.CommandContext idiom (platform/localmedia/tools.go) for invocation
// and its dial-retry/backoff idiom (temporalx/client.go) for supervision.
package scanner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os/exec"
	"sync"
	"time"

	"github.com/riverdock/contractdesk/internal/domain/errs"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/platform/otelx"
)

// TokenProvider supplies the bearer token the scanner uses on behalf of
// the caller to talk to the remote document store. It is refreshed
// proactively before expiry by the caller; Scanner calls Token once per
// command, just before sending it.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Config parameterises the subprocess and its timeouts.
type Config struct {
	BinaryPath     string
	Args           []string
	CommandTimeout time.Duration // default 120s
	RestartBackoffMin time.Duration
	RestartBackoffMax time.Duration
}

func (c Config) withDefaults() Config {
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 120 * time.Second
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
	payload []byte
	respCh  chan json.RawMessage
	errCh   chan error
}

// Scanner multiplexes concurrent callers onto one subprocess with exactly
// one outstanding command at a time, FIFO ordered, and restarts the
// subprocess with backoff on crash.
type Scanner struct {
	log    *logger.Logger
	cfg    Config
	tokens TokenProvider

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Scanner
	closed  bool

	calls chan pendingCall

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Scanner and starts its supervisor loop. Call Close to stop
// it.
func New(log *logger.Logger, cfg Config, tokens TokenProvider) *Scanner {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scanner{
		log:    log.With("component", "scanner"),
		cfg:    cfg,
		tokens: tokens,
		calls:  make(chan pendingCall, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	s.wg.Add(1)
	go s.supervise()
	return s
}

// Close stops the supervisor and kills the subprocess.
func (s *Scanner) Close() {
	s.cancel()
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

// supervise owns the subprocess lifecycle: start, read the outstanding
// caller queue one command at a time, and on unexpected exit fail every
// outstanding caller with ScannerCrashed before restarting after backoff.
func (s *Scanner) supervise() {
	defer s.wg.Done()
	attempt := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if err := s.startProcess(); err != nil {
			s.log.Errorw("scanner subprocess failed to start", "err", err, "attempt", attempt)
			if !s.sleepBackoff(attempt) {
				return
			}
			attempt++
			continue
		}
		attempt = 0

		s.serveUntilExit()

		select {
		case <-s.ctx.Done():
			return
		default:
		}
		s.log.Warnw("scanner subprocess exited unexpectedly, restarting after backoff")
		if !s.sleepBackoff(attempt) {
			return
		}
		attempt++
	}
}

func (s *Scanner) sleepBackoff(attempt int) bool {
	d := computeBackoff(attempt, s.cfg.RestartBackoffMin, s.cfg.RestartBackoffMax)
	select {
	case <-time.After(d):
		return true
	case <-s.ctx.Done():
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

func (s *Scanner) startProcess() error {
	cmd := exec.Command(s.cfg.BinaryPath, s.cfg.Args...)
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

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.stdout = bufio.NewScanner(stdout)
	s.stdout.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	s.mu.Unlock()
	return nil
}

// serveUntilExit pulls calls off the queue one at a time and blocks until
// the subprocess dies or the context is cancelled. After a failed round
// trip it fails the in-flight call and every remaining queued call before
// returning; on cancellation it returns without failing queued calls.
func (s *Scanner) serveUntilExit() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case call := <-s.calls:
			resp, err := s.roundTrip(call.payload)
			if err != nil {
				call.errCh <- err
				s.failRemainingQueued()
				return
			}
			call.respCh <- resp
		}
	}
}

func (s *Scanner) failRemainingQueued() {
	for {
		select {
		case call := <-s.calls:
			call.errCh <- errs.New(errs.ScannerCrashed, "subprocess exited", nil)
		default:
			return
		}
	}
}

func (s *Scanner) roundTrip(payload []byte) (json.RawMessage, error) {
	s.mu.Lock()
	stdin, stdout := s.stdin, s.stdout
	s.mu.Unlock()

	if _, err := stdin.Write(append(payload, '\n')); err != nil {
		return nil, errs.New(errs.ScannerCrashed, "write failed", err)
	}
	if !stdout.Scan() {
		if err := stdout.Err(); err != nil {
			return nil, errs.New(errs.ScannerCrashed, "read failed", err)
		}
		return nil, errs.New(errs.ScannerCrashed, "subprocess closed stdout", nil)
	}
	line := stdout.Bytes()
	out := make(json.RawMessage, len(line))
	copy(out, line)
	return out, nil
}

// call enqueues payload and waits for its response in FIFO order, subject
// to ctx and the scanner's configured command timeout.
func (s *Scanner) call(ctx context.Context, payload []byte) (json.RawMessage, error) {
	ctx, end := otelx.StartIOSpan(ctx, "scanner", "call")
	var err error
	defer func() { end(err) }()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout)
	defer cancel()

	pc := pendingCall{payload: payload, respCh: make(chan json.RawMessage, 1), errCh: make(chan error, 1)}
	select {
	case s.calls <- pc:
	case <-ctx.Done():
		err = errs.New(errs.ScannerUnavailable, "queue full or shutting down", ctx.Err())
		return nil, err
	}

	select {
	case resp := <-pc.respCh:
		return resp, nil
	case callErr := <-pc.errCh:
		err = callErr
		return nil, err
	case <-ctx.Done():
		err = errs.New(errs.ScannerUnavailable, "command timed out", ctx.Err())
		return nil, err
	}
}

func (s *Scanner) currentToken(ctx context.Context) (string, error) {
	tok, err := s.tokens.Token(ctx)
	if err != nil {
		return "", errs.New(errs.TokenError, "token fetch failed", err)
	}
	return tok, nil
}

// Scan lists a folder's children, filtered to recognised extensions by the
// subprocess itself.
func (s *Scanner) Scan(ctx context.Context, driveID, folderPath string) ([]RemoteItem, error) {
	tok, err := s.currentToken(ctx)
	if err != nil {
		return nil, err
	}
	req := scanRequest{Cmd: "scan", Token: tok, DriveID: driveID, FolderPath: folderPath}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	respRaw, err := s.call(ctx, raw)
	if err != nil {
		return nil, err
	}
	var resp scanResponse
	if err := json.Unmarshal(respRaw, &resp); err != nil {
		return nil, errs.New(errs.ScannerCrashed, "malformed scan response", err)
	}
	if resp.Status != statusOK {
		return nil, errs.New(errs.RemoteApiError, fmt.Sprintf("%s: %s", resp.Error, resp.Detail), nil)
	}
	return resp.Items, nil
}

// DiffHashes uses only metadata requests (no downloads) to classify each
// known item as changed, unchanged, or missing. A file whose remote hash
// is unavailable is conservatively classified as changed.
func (s *Scanner) DiffHashes(ctx context.Context, known []KnownItem) (DiffResult, error) {
	tok, err := s.currentToken(ctx)
	if err != nil {
		return DiffResult{}, err
	}
	req := diffHashesRequest{Cmd: "diff_hashes", Token: tok, Known: known}
	raw, err := json.Marshal(req)
	if err != nil {
		return DiffResult{}, err
	}
	respRaw, err := s.call(ctx, raw)
	if err != nil {
		return DiffResult{}, err
	}
	var resp diffHashesResponse
	if err := json.Unmarshal(respRaw, &resp); err != nil {
		return DiffResult{}, errs.New(errs.ScannerCrashed, "malformed diff_hashes response", err)
	}
	if resp.Status != statusOK {
		return DiffResult{}, errs.New(errs.RemoteApiError, fmt.Sprintf("%s: %s", resp.Error, resp.Detail), nil)
	}
	return DiffResult{Changed: resp.Changed, Unchanged: resp.Unchanged, Missing: resp.Missing}, nil
}

// Fetch retrieves one item's content; the hash returned is computed by the
// subprocess on the raw bytes received, not trusted from the remote
// metadata.
func (s *Scanner) Fetch(ctx context.Context, driveID, itemID string) (FetchResult, error) {
	tok, err := s.currentToken(ctx)
	if err != nil {
		return FetchResult{}, err
	}
	req := fetchRequest{Cmd: "fetch", Token: tok, DriveID: driveID, ItemID: itemID}
	raw, err := json.Marshal(req)
	if err != nil {
		return FetchResult{}, err
	}
	respRaw, err := s.call(ctx, raw)
	if err != nil {
		return FetchResult{}, err
	}
	var resp fetchResponse
	if err := json.Unmarshal(respRaw, &resp); err != nil {
		return FetchResult{}, errs.New(errs.ScannerCrashed, "malformed fetch response", err)
	}
	if resp.Status != statusOK {
		return FetchResult{}, errs.New(errs.FetchFailed, fmt.Sprintf("%s: %s", resp.Error, resp.Detail), nil)
	}
	return FetchResult{SHA256: resp.SHA256, Size: resp.Size, ContentBase64: resp.ContentBase64}, nil
}

// HashLocal hashes a local file path; for testing only, bypasses the
// remote store entirely.
func (s *Scanner) HashLocal(ctx context.Context, path string) (string, error) {
	req := hashLocalRequest{Cmd: "hash_local", Path: path}
	raw, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	respRaw, err := s.call(ctx, raw)
	if err != nil {
		return "", err
	}
	var resp hashLocalResponse
	if err := json.Unmarshal(respRaw, &resp); err != nil {
		return "", errs.New(errs.ScannerCrashed, "malformed hash_local response", err)
	}
	if resp.Status != statusOK {
		return "", errs.New(errs.FetchFailed, fmt.Sprintf("%s: %s", resp.Error, resp.Detail), nil)
	}
	return resp.SHA256, nil
}
