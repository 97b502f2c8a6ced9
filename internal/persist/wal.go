// Package persist implements PersistAdapter: an asynchronous, durable,
// hash-chained write-ahead log that mirrors every ContractStore mutation
// and AuditLog record, with daily-rotated files and synchronous fsync on
// every write. It is grounded on internal/scanner's single-writer-goroutine
// supervision shape (one owner draining a channel, everyone else a
// producer) rather than any one teacher file, since the teacher keeps its
// durable state in Postgres and has no comparable local WAL.
package persist

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/riverdock/contractdesk/internal/audit"
	"github.com/riverdock/contractdesk/internal/domain/errs"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/platform/otelx"
	"github.com/riverdock/contractdesk/internal/store"
)

// frameKind distinguishes the two kinds of mutation the log carries.
type frameKind string

const (
	kindContractMutation frameKind = "contract_mutation"
	kindAuditRecord      frameKind = "audit_record"
)

type envelope struct {
	Kind    frameKind       `json:"kind"`
	Contract *store.ChangeEvent `json:"contract,omitempty"`
	Audit    *audit.Record      `json:"audit,omitempty"`
}

const digestSize = 16

// Config parameterises the durable log's location and buffering.
type Config struct {
	Dir        string
	BufferSize int // default 256; producers block once full
	Clock      func() time.Time
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

type queued struct {
	env  envelope
	done chan error
}

// Adapter is the PersistAdapter: one writer goroutine draining a bounded
// channel, everyone else a blocking producer.
type Adapter struct {
	log *logger.Logger
	cfg Config

	queue chan queued

	mu          sync.Mutex
	file        *os.File
	currentDate string
	lastDigest  [digestSize]byte

	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// New builds an Adapter rooted at cfg.Dir and starts its writer goroutine.
// Close must be called to flush and stop it.
func New(log *logger.Logger, cfg Config) (*Adapter, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	a := &Adapter{
		log:   log.With("component", "persist"),
		cfg:   cfg,
		queue: make(chan queued, cfg.BufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	if err := a.loadManifest(); err != nil {
		return nil, err
	}
	go a.run()
	return a, nil
}

// Close drains the queue and stops the writer goroutine. Safe to call more
// than once.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		close(a.stop)
		<-a.done
	})
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// EnqueueContractMutation durably records ev before returning. It blocks
// if the adapter's internal queue is full: contract mutations must be
// durable before they are observable to new solves.
func (a *Adapter) EnqueueContractMutation(ev store.ChangeEvent) error {
	return a.enqueue(envelope{Kind: kindContractMutation, Contract: &ev})
}

// EnqueueAuditRecord durably records rec before returning, with the same
// backpressure behaviour as EnqueueContractMutation.
func (a *Adapter) EnqueueAuditRecord(rec audit.Record) error {
	return a.enqueue(envelope{Kind: kindAuditRecord, Audit: &rec})
}

func (a *Adapter) enqueue(env envelope) error {
	q := queued{env: env, done: make(chan error, 1)}
	select {
	case a.queue <- q:
	case <-a.stop:
		return errs.New(errs.PersistError, "adapter is closed", nil)
	}
	return <-q.done
}

func (a *Adapter) run() {
	defer close(a.done)
	for {
		select {
		case q := <-a.queue:
			err := a.writeFrame(q.env)
			q.done <- err
		case <-a.stop:
			for {
				select {
				case q := <-a.queue:
					q.done <- a.writeFrame(q.env)
				default:
					return
				}
			}
		}
	}
}

// writeFrame appends one hash-chained, length-prefixed frame to today's
// file and fsyncs before returning. It runs on the adapter's single writer
// goroutine, detached from any enqueuing caller's context, so its span is
// its own trace root rather than a child of the caller's.
func (a *Adapter) writeFrame(env envelope) (err error) {
	_, end := otelx.StartIOSpan(context.Background(), "persist", "write_frame",
		attribute.String("frame_kind", string(env.Kind)))
	defer func() { end(err) }()

	payload, err := json.Marshal(env)
	if err != nil {
		return errs.New(errs.PersistError, "marshal frame", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.rotateLocked(); err != nil {
		return errs.New(errs.PersistError, "rotate log file", err)
	}

	digest := chainDigest(a.lastDigest, payload)

	length := make([]byte, 4)
	binary.LittleEndian.PutUint32(length, uint32(len(payload)))

	if _, err := a.file.Write(length); err != nil {
		return errs.New(errs.PersistError, "write frame length", err)
	}
	if _, err := a.file.Write(payload); err != nil {
		return errs.New(errs.PersistError, "write frame payload", err)
	}
	if _, err := a.file.Write(digest[:]); err != nil {
		return errs.New(errs.PersistError, "write frame digest", err)
	}
	if err := a.file.Sync(); err != nil {
		return errs.New(errs.PersistError, "fsync", err)
	}

	a.lastDigest = digest
	return a.writeManifestLocked()
}

// chainDigest hashes the previous frame's digest together with this
// frame's payload, truncated to 16 bytes.
func chainDigest(prev [digestSize]byte, payload []byte) [digestSize]byte {
	h := sha256.New()
	h.Write(prev[:])
	h.Write(payload)
	sum := h.Sum(nil)
	var out [digestSize]byte
	copy(out[:], sum[:digestSize])
	return out
}

// rotateLocked opens (or creates) today's file if the adapter isn't
// already writing to it. Caller holds a.mu.
func (a *Adapter) rotateLocked() error {
	today := a.cfg.Clock().UTC().Format("2006-01-02")
	if a.file != nil && a.currentDate == today {
		return nil
	}
	if a.file != nil {
		if err := a.file.Close(); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(a.pathFor(today), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	a.file = f
	a.currentDate = today
	return nil
}

func (a *Adapter) pathFor(date string) string {
	return filepath.Join(a.cfg.Dir, date+".log")
}

func (a *Adapter) manifestPath() string {
	return filepath.Join(a.cfg.Dir, "MANIFEST")
}

type manifest struct {
	LastSealedFile string `json:"last_sealed_file"`
	LastDigestHex  string `json:"last_digest_hex"`
}

func (a *Adapter) writeManifestLocked() error {
	m := manifest{LastSealedFile: a.currentDate + ".log", LastDigestHex: fmt.Sprintf("%x", a.lastDigest)}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(a.manifestPath(), b, 0o644)
}

func (a *Adapter) loadManifest() error {
	b, err := os.ReadFile(a.manifestPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var m manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if m.LastDigestHex == "" {
		return nil
	}
	raw, err := hex.DecodeString(m.LastDigestHex)
	if err != nil {
		return err
	}
	var digest [digestSize]byte
	copy(digest[:], raw)
	a.lastDigest = digest
	return nil
}
