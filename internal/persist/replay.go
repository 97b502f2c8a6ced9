package persist

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/riverdock/contractdesk/internal/audit"
	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/domain/errs"
)

// ContractSink is the subset of store.Store Restore replays contract
// mutations into.
type ContractSink interface {
	Restore(c *domain.Contract)
}

// AuditSink is the subset of audit.Log Restore replays audit records into.
type AuditSink interface {
	Append(rec audit.Record)
}

// Restore replays every frame in the durable log, oldest file first, into
// contracts and auditLog, verifying the hash chain as it goes. It is meant
// to be called once at startup, before either sink serves traffic.
func (a *Adapter) Restore(contracts ContractSink, auditLog AuditSink) error {
	return a.walk(func(env envelope) error {
		switch env.Kind {
		case kindContractMutation:
			if env.Contract != nil && env.Contract.Contract != nil && contracts != nil {
				contracts.Restore(env.Contract.Contract)
			}
		case kindAuditRecord:
			if env.Audit != nil && auditLog != nil {
				auditLog.Append(*env.Audit)
			}
		}
		return nil
	})
}

// VerifyAll walks every frame in the durable log checking that each
// frame's digest matches the hash chain, without applying anything to a
// sink. It returns the first mismatch found, or nil if the whole chain is
// intact.
func (a *Adapter) VerifyAll() error {
	return a.walk(func(envelope) error { return nil })
}

// walk reads every daily log file in order and invokes fn once per frame,
// after verifying that frame's digest continues the hash chain from the
// previous frame (or from the zero digest, for the very first frame ever
// written).
func (a *Adapter) walk(fn func(envelope) error) error {
	files, err := a.logFilesSorted()
	if err != nil {
		return err
	}

	var prev [digestSize]byte
	for _, path := range files {
		if err := a.walkFile(path, &prev, fn); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) walkFile(path string, prev *[digestSize]byte, fn func(envelope) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		lengthBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, lengthBuf); err != nil {
			if err == io.EOF {
				return nil
			}
			return errs.New(errs.PersistError, fmt.Sprintf("read frame length in %s", path), err)
		}
		length := binary.LittleEndian.Uint32(lengthBuf)

		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return errs.New(errs.PersistError, fmt.Sprintf("read frame payload in %s", path), err)
		}

		digestBuf := make([]byte, digestSize)
		if _, err := io.ReadFull(r, digestBuf); err != nil {
			return errs.New(errs.PersistError, fmt.Sprintf("read frame digest in %s", path), err)
		}

		want := chainDigest(*prev, payload)
		if !bytes.Equal(want[:], digestBuf) {
			return errs.New(errs.PersistError, fmt.Sprintf("hash chain mismatch in %s", path), nil)
		}
		*prev = want

		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return errs.New(errs.PersistError, fmt.Sprintf("malformed frame in %s", path), err)
		}
		if err := fn(env); err != nil {
			return err
		}
	}
}

func (a *Adapter) logFilesSorted() ([]string, error) {
	entries, err := os.ReadDir(a.cfg.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(a.cfg.Dir, n)
	}
	return out, nil
}
