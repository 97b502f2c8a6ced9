package ingestor

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/riverdock/contractdesk/internal/clauseparser"
	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/scanner"
	"github.com/riverdock/contractdesk/internal/store"
)

type fakeScan struct {
	items []scanner.RemoteItem
	diff  scanner.DiffResult
	files map[string][]byte
}

func (f *fakeScan) Scan(ctx context.Context, driveID, folderPath string) ([]scanner.RemoteItem, error) {
	return f.items, nil
}

func (f *fakeScan) DiffHashes(ctx context.Context, known []scanner.KnownItem) (scanner.DiffResult, error) {
	return f.diff, nil
}

func (f *fakeScan) Fetch(ctx context.Context, driveID, itemID string) (scanner.FetchResult, error) {
	data := f.files[itemID]
	sum := sha256.Sum256(data)
	return scanner.FetchResult{
		SHA256:        hex.EncodeToString(sum[:]),
		Size:          int64(len(data)),
		ContentBase64: base64.StdEncoding.EncodeToString(data),
	}, nil
}

type fakeExtract struct{}

func (fakeExtract) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	return string(data), nil
}

type fakeParse struct{}

func (fakeParse) Parse(text string) clauseparser.Result {
	return clauseparser.Result{Clauses: []domain.Clause{{ClauseID: "PRICE", Parameter: "price", Value: 335, Unit: "$/ton"}}}
}

func (fakeParse) DetectFamily(text string, threshold int) (domain.FamilySignature, bool) {
	return domain.FamilySignature{}, false
}

func newFakeStore() (*store.Store, *store.ChangeFeed) {
	feed := store.NewChangeFeed()
	return store.New(logger.New(logger.ModeDev), feed), feed
}

func TestFullScanIngestsNewFile(t *testing.T) {
	s, _ := newFakeStore()
	sc := &fakeScan{
		items: []scanner.RemoteItem{{ItemID: "i1", DriveID: "d1", Name: "Koch_FOB.txt"}},
		files: map[string][]byte{"i1": []byte("5. Price: US$ 335/MT FOB Donaldsonville")},
	}
	ig := New(logger.New(logger.ModeDev), sc, fakeExtract{}, fakeParse{}, nil, s)

	result, err := ig.FullScan(context.Background(), Config{DriveID: "d1", FolderPath: "/contracts"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Outcomes) != 1 {
		t.Fatalf("want 1 outcome, got %d", len(result.Outcomes))
	}
	out := result.Outcomes[0]
	if out.Err != nil {
		t.Fatalf("unexpected per-file error: %v", out.Err)
	}
	if !out.NewVersion || out.Contract.Version != 1 {
		t.Fatalf("want new v1 contract, got %+v", out)
	}
}

func TestFullScanReingestSameFileIsNoOp(t *testing.T) {
	s, _ := newFakeStore()
	sc := &fakeScan{
		items: []scanner.RemoteItem{{ItemID: "i1", DriveID: "d1", Name: "Koch_FOB.txt"}},
		files: map[string][]byte{"i1": []byte("unchanged body")},
	}
	ig := New(logger.New(logger.ModeDev), sc, fakeExtract{}, fakeParse{}, nil, s)

	first, err := ig.FullScan(context.Background(), Config{DriveID: "d1", FolderPath: "/contracts"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := ig.FullScan(context.Background(), Config{DriveID: "d1", FolderPath: "/contracts"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Outcomes[0].NewVersion {
		t.Fatal("re-scanning unchanged bytes must not create a new version")
	}
	if second.Outcomes[0].Contract.ID != first.Outcomes[0].Contract.ID {
		t.Fatal("unchanged file should resolve to the same contract id")
	}
}

func TestDeltaScanSkipsUnchangedFiles(t *testing.T) {
	s, _ := newFakeStore()
	sc := &fakeScan{
		diff: scanner.DiffResult{Unchanged: []string{"c1"}},
	}
	ig := New(logger.New(logger.ModeDev), sc, fakeExtract{}, fakeParse{}, nil, s)

	result, err := ig.DeltaScan(context.Background(), Config{DriveID: "d1", FolderPath: "/contracts"}, []scanner.KnownItem{{ID: "c1", Hash: "h1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Outcomes) != 0 {
		t.Fatalf("delta scan with no changed hashes should fetch nothing, got %d outcomes", len(result.Outcomes))
	}
}

func TestDeltaScanFetchesOnlyChangedFiles(t *testing.T) {
	s, _ := newFakeStore()
	sc := &fakeScan{
		diff:  scanner.DiffResult{Changed: []string{"i1"}, Unchanged: []string{"i2"}},
		items: []scanner.RemoteItem{{ItemID: "i1", DriveID: "d1", Name: "a.txt"}, {ItemID: "i2", DriveID: "d1", Name: "b.txt"}},
		files: map[string][]byte{"i1": []byte("changed body"), "i2": []byte("irrelevant if fetched, should not be")},
	}
	ig := New(logger.New(logger.ModeDev), sc, fakeExtract{}, fakeParse{}, nil, s)

	result, err := ig.DeltaScan(context.Background(), Config{DriveID: "d1", FolderPath: "/contracts"}, []scanner.KnownItem{{ID: "i1", Hash: "old"}, {ID: "i2", Hash: "same"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Outcomes) != 1 || result.Outcomes[0].ItemID != "i1" {
		t.Fatalf("want exactly one fetched outcome for the changed item, got %+v", result.Outcomes)
	}
}
