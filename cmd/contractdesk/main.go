// Command contractdesk is the composition root: it wires every component
// named in the system design into one running process and then idles,
// serving solve requests (in-process or, when TEMPORAL_ADDRESS is set,
// durably) until told to shut down. It runs no periodic poller of its own
// -- ingestion is triggered by an explicit DeltaScan/FullScan call, driven
// externally (a caller embedding this composition, or a one-shot
// SolvePipeline.Run) -- grounded on cmd/main.go's flat sequential wiring
// style, trimmed of everything HTTP-shaped since this system serves no
// HTTP surface.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/api/option"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/riverdock/contractdesk/internal/audit"
	"github.com/riverdock/contractdesk/internal/audit/index"
	"github.com/riverdock/contractdesk/internal/bridge"
	"github.com/riverdock/contractdesk/internal/clauseparser"
	"github.com/riverdock/contractdesk/internal/clients/docai"
	"github.com/riverdock/contractdesk/internal/clients/llm"
	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/extractor"
	"github.com/riverdock/contractdesk/internal/ingestor"
	"github.com/riverdock/contractdesk/internal/persist"
	"github.com/riverdock/contractdesk/internal/platform/dbctx"
	"github.com/riverdock/contractdesk/internal/platform/envutil"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/platform/otelx"
	"github.com/riverdock/contractdesk/internal/readiness"
	"github.com/riverdock/contractdesk/internal/registry"
	"github.com/riverdock/contractdesk/internal/scanner"
	"github.com/riverdock/contractdesk/internal/solver"
	"github.com/riverdock/contractdesk/internal/solvepipeline"
	"github.com/riverdock/contractdesk/internal/store"
	"github.com/riverdock/contractdesk/internal/temporalx"
	"github.com/riverdock/contractdesk/internal/temporalx/solverun"
	"github.com/riverdock/contractdesk/internal/validator"
)

func main() {
	logMode := logger.Mode(envutil.String("LOG_MODE", string(logger.ModeDev)))
	log := logger.New(logMode)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown := otelx.Init(ctx, log, otelx.Config{
		ServiceName: "contractdesk",
		Environment: envutil.String("ENVIRONMENT", "dev"),
		Version:     envutil.String("BUILD_VERSION", "dev"),
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Warnw("otel shutdown failed", "error", err)
		}
	}()

	log.Infow("starting contractdesk")

	reg := registry.New(log)
	parser := clauseparser.New(log, reg)
	strictMode := envutil.Bool("VALIDATOR_STRICT_MODE", false)
	valid := validator.New(log, reg, strictMode)

	changefeed := store.NewChangeFeed()
	relay, err := store.NewRelay(ctx, log, envutil.String("REDIS_ADDR", ""), envutil.String("REDIS_CHANNEL", "contractdesk.changefeed"))
	if err != nil {
		log.Warnw("changefeed redis relay disabled", "error", err)
	}
	if relay != nil {
		go relay.Forward(ctx, changefeed)
		defer relay.Close()
	}
	st := store.New(log, changefeed)

	var pdfBackend extractor.PDFBackend
	if projectID := envutil.String("DOCAI_PROJECT_ID", ""); projectID != "" {
		backend, err := docai.New(ctx, log, docai.Config{
			ProjectID:   projectID,
			Location:    envutil.String("DOCAI_LOCATION", "us"),
			ProcessorID: envutil.String("DOCAI_PROCESSOR_ID", ""),
			ClientOpts:  []option.ClientOption{},
		})
		if err != nil {
			log.Warnw("document ai backend disabled", "error", err)
		} else {
			pdfBackend = backend
		}
	}
	ext := extractor.New(log, pdfBackend)

	var crossChecker ingestor.CrossChecker
	if baseURL := envutil.String("LLM_BASE_URL", ""); baseURL != "" {
		crossChecker = llm.New(log, llm.Config{
			BaseURL: baseURL,
			APIKey:  envutil.String("LLM_API_KEY", ""),
			Model:   envutil.String("LLM_MODEL", "gpt-4o-mini"),
			Timeout: envutil.Duration("LLM_TIMEOUT", 120*time.Second),
		})
	}

	scan := scanner.New(log, scanner.Config{
		BinaryPath:        envutil.String("SCANNER_BINARY_PATH", "contractdesk-scanner"),
		CommandTimeout:    envutil.Duration("SCANNER_COMMAND_TIMEOUT", 120*time.Second),
		RestartBackoffMin: envutil.Duration("SCANNER_RESTART_BACKOFF_MIN", 500*time.Millisecond),
		RestartBackoffMax: envutil.Duration("SCANNER_RESTART_BACKOFF_MAX", 30*time.Second),
	}, staticToken{token: envutil.String("SCANNER_TOKEN", "")})
	defer scan.Close()

	ing := ingestor.New(log, scan, ext, parser, crossChecker, st)
	ingestCfg := ingestor.Config{
		DriveID:             envutil.String("INGEST_DRIVE_ID", ""),
		FolderPath:          envutil.String("INGEST_FOLDER_PATH", "/Contracts"),
		Concurrency:         envutil.Int("INGEST_CONCURRENCY", 4),
		FamilyThreshold:     envutil.Int("INGEST_FAMILY_THRESHOLD", 2),
		EnableLLMCrossCheck: envutil.Bool("INGEST_ENABLE_LLM_CROSS_CHECK", false),
	}

	gate := readiness.New(log, st, valid, nil)
	frames := bridge.NewFrameRegistry()
	br := bridge.New(log, frames, gate)

	solverPort := solver.New(log, solver.Config{
		BinaryPath: envutil.String("SOLVER_BINARY_PATH", "contractdesk-solver"),
	})
	defer solverPort.Close()

	auditLog := audit.New(log)

	var auditIdx *index.Index
	if db, err := openIndexDB(log); err != nil {
		log.Warnw("audit index disabled", "error", err)
	} else {
		auditIdx = index.New(db, log)
		if err := auditIdx.Migrate(); err != nil {
			log.Warnw("audit index migration failed", "error", err)
			auditIdx = nil
		}
	}

	persistAdapter, err := persist.New(log, persist.Config{
		Dir: envutil.String("PERSIST_DIR", "./data/wal"),
	})
	if err != nil {
		log.Errorw("persist adapter init failed", "error", err)
		os.Exit(1)
	}
	defer persistAdapter.Close()

	if err := persistAdapter.Restore(st, auditLog); err != nil {
		log.Errorw("persist restore failed", "error", err)
		os.Exit(1)
	}
	if auditIdx != nil {
		if err := auditIdx.Rebuild(dbctx.Background(), auditLog.All()); err != nil {
			log.Warnw("audit index rebuild after restore failed", "error", err)
		}
	}

	go forwardContractMutations(ctx, log, changefeed, persistAdapter)

	sink := &auditSink{log: log, auditLog: auditLog, index: auditIdx, persist: persistAdapter}
	scanShim := &deltaScanner{log: log, ing: ing, store: st, cfg: ingestCfg}

	pipeline := solvepipeline.New(log, st, scanShim, gate, br, solverPort, sink)

	if err := runOneShotFullScan(ctx, log, ing, ingestCfg); err != nil {
		log.Warnw("startup full scan failed; contracts will refresh on the next delta scan", "error", err)
	}

	if tc, err := temporalx.NewClient(log); err != nil {
		log.Warnw("temporal client init failed; falling back to in-process solves only", "error", err)
	} else if tc != nil {
		defer tc.Close()
		acts := &solverun.Activities{Log: log, Pipeline: pipeline}
		runner, err := temporalx.NewRunner(log, tc, acts)
		if err != nil {
			log.Warnw("temporal worker init failed; falling back to in-process solves only", "error", err)
		} else if err := runner.Start(ctx); err != nil {
			log.Warnw("temporal worker failed to start; falling back to in-process solves only", "error", err)
		} else {
			log.Infow("durable solve mode enabled")
		}
	}

	log.Infow("contractdesk ready")
	<-ctx.Done()
	log.Infow("shutting down contractdesk")
}

// staticToken is a fixed-value scanner.TokenProvider for deployments that
// authenticate the scanner subprocess with a long-lived service token
// rather than a per-user refreshed one.
type staticToken struct{ token string }

func (s staticToken) Token(context.Context) (string, error) { return s.token, nil }

// deltaScanner adapts ingestor.Ingestor to solvepipeline.Scanner. The
// remote document store has no notion of product group -- contracts are
// tagged with one after ingestion, by review -- so every pipeline run's
// freshness phase performs the same global delta scan regardless of which
// product group is solving; downstream store filtering (ListActiveSet)
// is what actually scopes work to one product group.
type deltaScanner struct {
	log   *logger.Logger
	ing   *ingestor.Ingestor
	store *store.Store
	cfg   ingestor.Config
}

func (d *deltaScanner) DeltaScan(ctx context.Context, productGroup string) error {
	known := knownItemsFrom(d.store.ListAll())
	res, err := d.ing.DeltaScan(ctx, d.cfg, known)
	if err != nil {
		return err
	}
	for _, out := range res.Outcomes {
		if out.Err != nil {
			return out.Err
		}
	}
	return nil
}

func knownItemsFrom(contracts []*domain.Contract) []scanner.KnownItem {
	out := make([]scanner.KnownItem, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, scanner.KnownItem{ID: c.ID, DriveID: c.RemoteDriveID, ItemID: c.RemoteItemID, Hash: c.FileHash})
	}
	return out
}

func runOneShotFullScan(ctx context.Context, log *logger.Logger, ing *ingestor.Ingestor, cfg ingestor.Config) error {
	if cfg.DriveID == "" {
		log.Infow("INGEST_DRIVE_ID unset; skipping startup full scan")
		return nil
	}
	res, err := ing.FullScan(ctx, cfg)
	if err != nil {
		return err
	}
	failed := 0
	for _, out := range res.Outcomes {
		if out.Err != nil {
			failed++
		}
	}
	log.Infow("startup full scan complete", "files", len(res.Outcomes), "failed", failed)
	return nil
}

// auditSink fans one finished solve out to the authoritative append-only
// log, its rebuildable secondary index, and the durable write-ahead log,
// so a solvepipeline.Pipeline needs only the narrow AuditLog interface to
// reach all three.
type auditSink struct {
	log      *logger.Logger
	auditLog *audit.Log
	index    *index.Index
	persist  *persist.Adapter
}

func (a *auditSink) Append(rec audit.Record) {
	a.auditLog.Append(rec)
	if a.index != nil {
		if err := a.index.Record(dbctx.Background(), rec); err != nil {
			a.log.Warnw("audit index write failed", "run_id", rec.RunID, "error", err)
		}
	}
	if a.persist != nil {
		if err := a.persist.EnqueueAuditRecord(rec); err != nil {
			a.log.Warnw("persist audit record failed", "run_id", rec.RunID, "error", err)
		}
	}
}

// forwardContractMutations relays every store mutation into the durable
// write-ahead log via a durable (never-drop) subscription, until ctx is
// canceled.
func forwardContractMutations(ctx context.Context, log *logger.Logger, feed *store.ChangeFeed, adapter *persist.Adapter) {
	sub := feed.SubscribeDurable(64)
	defer feed.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := adapter.EnqueueContractMutation(ev); err != nil {
				log.Warnw("persist contract mutation failed", "contract_id", ev.ContractID, "cursor", ev.Cursor, "error", err)
			}
		}
	}
}

// openIndexDB opens the gorm handle backing the audit index: Postgres in
// production (AUDIT_INDEX_DSN set), a SQLite file at
// AUDIT_INDEX_SQLITE_PATH otherwise.
func openIndexDB(log *logger.Logger) (*gorm.DB, error) {
	if dsn := envutil.String("AUDIT_INDEX_DSN", ""); dsn != "" {
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	}
	path := envutil.String("AUDIT_INDEX_SQLITE_PATH", "./data/audit_index.sqlite")
	log.Infow("AUDIT_INDEX_DSN unset; using sqlite audit index", "path", path)
	return gorm.Open(sqlite.Open(path), &gorm.Config{})
}
