// Package index is a gorm-backed secondary, queryable index over the
// AuditLog's records. The hash-chained log written by internal/persist
// remains the authoritative store; this index exists only to answer
// by-contract/by-trader/by-time-range/by-product-group queries without
// scanning the log, and can always be rebuilt from it via Rebuild. Grounded
// on the teacher's gorm CRUD repo pattern (data/repos/materials/materialfile.go)
// and its dbctx.Context bundling.
package index

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/riverdock/contractdesk/internal/audit"
	"github.com/riverdock/contractdesk/internal/platform/dbctx"
	"github.com/riverdock/contractdesk/internal/platform/logger"
)

// Row is the gorm model backing one indexed audit record.
type Row struct {
	RunID        string `gorm:"column:run_id;primaryKey"`
	ProductGroup string `gorm:"column:product_group;not null;index"`
	TraderID     string `gorm:"column:trader_id;index"`
	RunKind      string `gorm:"column:run_kind;not null"`
	ResultStatus string `gorm:"column:result_status;not null"`

	ContractsSnapshot datatypes.JSON `gorm:"column:contracts_snapshot;type:jsonb"`
	VariablesSnapshot datatypes.JSON `gorm:"column:variables_snapshot;type:jsonb"`
	ResultSnapshot    datatypes.JSON `gorm:"column:result_snapshot;type:jsonb"`
	Issues            datatypes.JSON `gorm:"column:issues;type:jsonb"`

	ContractsStale   bool `gorm:"column:contracts_stale;not null;default:false"`
	BlocksSubmission bool `gorm:"column:blocks_submission;not null;default:false"`

	StartedAt            time.Time `gorm:"column:started_at;not null;index"`
	ContractsCheckedAt   time.Time `gorm:"column:contracts_checked_at"`
	IngestionCompletedAt time.Time `gorm:"column:ingestion_completed_at"`
	SolveStartedAt       time.Time `gorm:"column:solve_started_at"`
	CompletedAt          time.Time `gorm:"column:completed_at;not null;index"`
}

func (Row) TableName() string { return "audit_index" }

// ContractRow maps one contract snapshot to its owning run, for the
// by-contract-id index dimension without a JSON containment query.
type ContractRow struct {
	RunID      string `gorm:"column:run_id;primaryKey;index"`
	ContractID string `gorm:"column:contract_id;primaryKey;index"`
}

func (ContractRow) TableName() string { return "audit_index_contract" }

// Index is the queryable secondary index.
type Index struct {
	db  *gorm.DB
	log *logger.Logger
}

// New wires an Index to db. Call Migrate before first use to create the
// index's tables.
func New(db *gorm.DB, log *logger.Logger) *Index {
	return &Index{db: db, log: log.With("component", "audit_index")}
}

// Migrate creates or updates the index's tables.
func (x *Index) Migrate() error {
	return x.db.AutoMigrate(&Row{}, &ContractRow{})
}

// Record appends one AuditLog record to the index. Like the log itself,
// rows are written once and never updated.
func (x *Index) Record(dbc dbctx.Context, rec audit.Record) error {
	tx := dbc.Tx
	if tx == nil {
		tx = x.db
	}

	contractsJSON, err := marshalContracts(rec.Contracts)
	if err != nil {
		return err
	}
	variablesJSON, err := marshalVariables(rec.Variables)
	if err != nil {
		return err
	}
	resultJSON, err := marshalResult(rec.Result)
	if err != nil {
		return err
	}
	issuesJSON, err := marshalIssues(rec.Issues)
	if err != nil {
		return err
	}

	row := &Row{
		RunID:                rec.RunID,
		ProductGroup:         rec.ProductGroup,
		TraderID:             rec.TraderID,
		RunKind:              string(rec.RunKind),
		ResultStatus:         string(rec.ResultStatus),
		ContractsSnapshot:    contractsJSON,
		VariablesSnapshot:    variablesJSON,
		ResultSnapshot:       resultJSON,
		Issues:               issuesJSON,
		ContractsStale:       rec.ContractsStale,
		BlocksSubmission:     rec.BlocksSubmission,
		StartedAt:            rec.Phases.StartedAt,
		ContractsCheckedAt:   rec.Phases.ContractsCheckedAt,
		IngestionCompletedAt: rec.Phases.IngestionCompletedAt,
		SolveStartedAt:       rec.Phases.SolveStartedAt,
		CompletedAt:          rec.Phases.CompletedAt,
	}

	return tx.WithContext(dbc.Ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(row).Error; err != nil {
			return err
		}
		if len(rec.Contracts) == 0 {
			return nil
		}
		links := make([]ContractRow, 0, len(rec.Contracts))
		for _, cs := range rec.Contracts {
			links = append(links, ContractRow{RunID: rec.RunID, ContractID: cs.ID})
		}
		return txn.Create(&links).Error
	})
}

// ByContractID returns every run_id that used contractID.
func (x *Index) ByContractID(dbc dbctx.Context, contractID string) ([]string, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = x.db
	}
	var runIDs []string
	err := tx.WithContext(dbc.Ctx).Model(&ContractRow{}).
		Where("contract_id = ?", contractID).
		Pluck("run_id", &runIDs).Error
	return runIDs, err
}

// ByTraderID returns every Row for traderID, oldest first.
func (x *Index) ByTraderID(dbc dbctx.Context, traderID string) ([]Row, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = x.db
	}
	var rows []Row
	err := tx.WithContext(dbc.Ctx).
		Where("trader_id = ?", traderID).
		Order("completed_at ASC").
		Find(&rows).Error
	return rows, err
}

// ByProductGroup returns every Row for productGroup, oldest first.
func (x *Index) ByProductGroup(dbc dbctx.Context, productGroup string) ([]Row, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = x.db
	}
	var rows []Row
	err := tx.WithContext(dbc.Ctx).
		Where("product_group = ?", productGroup).
		Order("completed_at ASC").
		Find(&rows).Error
	return rows, err
}

// ByTimeRange returns every Row with completed_at in [from, to), oldest
// first.
func (x *Index) ByTimeRange(dbc dbctx.Context, from, to time.Time) ([]Row, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = x.db
	}
	var rows []Row
	err := tx.WithContext(dbc.Ctx).
		Where("completed_at >= ? AND completed_at < ?", from, to).
		Order("completed_at ASC").
		Find(&rows).Error
	return rows, err
}

// Rebuild truncates the index and replays every record from log into it,
// the same "rebuild a read model from the authoritative log" move the
// persist adapter's restore performs for in-memory stores.
func (x *Index) Rebuild(dbc dbctx.Context, records []audit.Record) error {
	tx := dbc.Tx
	if tx == nil {
		tx = x.db
	}
	return tx.WithContext(dbc.Ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Exec("DELETE FROM audit_index_contract").Error; err != nil {
			return err
		}
		if err := txn.Exec("DELETE FROM audit_index").Error; err != nil {
			return err
		}
		for _, rec := range records {
			if err := x.Record(dbctx.Context{Ctx: dbc.Ctx, Tx: txn}, rec); err != nil {
				return err
			}
		}
		return nil
	})
}
