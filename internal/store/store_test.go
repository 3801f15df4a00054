package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/franz/catstats/internal/catalog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "catstats.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(mmsid, resource string, fields ...catalog.FieldGroup) catalog.Record {
	return catalog.Record{
		Bib: catalog.BibRecord{
			MMSID:        mmsid,
			LanguageCode: "eng",
			PlaceCode:    "cau",
			MaterialType: "Book",
			ResourceType: resource,
		},
		Fields: fields,
	}
}

func TestStoreOpenAndMigrate(t *testing.T) {
	store := openTestStore(t)

	version, err := store.getSchemaVersion()
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", currentSchemaVersion, version)
	}

	tables := []string{"bib_records", "field_groups", "repeatable_subfields", "ingest_runs", "schema_version"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	if err := store.CheckIntegrity(); err != nil {
		t.Errorf("integrity check failed: %v", err)
	}
}

func TestStoreReopenKeepsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	store.Close()

	store, err = OpenWithOptions(path, &OpenOptions{NetworkOptimized: true})
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer store.Close()

	var rows int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&rows); err != nil {
		t.Fatalf("failed to count versions: %v", err)
	}
	if rows != currentSchemaVersion {
		t.Errorf("expected %d schema_version rows, got %d", currentSchemaVersion, rows)
	}
}

func TestOpenNetworkOptimized(t *testing.T) {
	store, err := OpenWithOptions(filepath.Join(t.TempDir(), "net.db"), &OpenOptions{NetworkOptimized: true})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	for pragma, want := range map[string]int{
		"synchronous": 1,
		"temp_store":  2,
		"cache_size":  -64000,
	} {
		var got int
		if err := store.db.QueryRow("PRAGMA " + pragma).Scan(&got); err != nil {
			t.Fatalf("failed to read %s: %v", pragma, err)
		}
		if got != want {
			t.Errorf("%s: expected %d, got %d", pragma, want, got)
		}
	}
}

func TestCommitPeriodMultiValue(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	records := []catalog.Record{
		testRecord("991", "Book - Physical",
			catalog.FieldGroup{CatCenter: "clk", Cataloger: "amy", YearMonth: "202101", Difficulty: "2",
				Repeatables: []catalog.RepeatableValue{{Code: "k", Value: "foo"}, {Code: "k", Value: "bar"}}},
			catalog.FieldGroup{CatCenter: "law", YearMonth: "202101"},
		),
		testRecord("992", "Score"),
	}

	stats, err := store.CommitPeriod(ctx, records, catalog.MultiValue)
	if err != nil {
		t.Fatalf("CommitPeriod failed: %v", err)
	}

	if stats.BibsCreated != 2 || stats.FieldsCreated != 2 || stats.RepeatablesCreated != 2 || stats.SkippedDuplicates != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	groups, err := store.FieldGroupsFor("991")
	if err != nil {
		t.Fatalf("FieldGroupsFor failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 field groups, got %d", len(groups))
	}
	if groups[0].CatCenter != "clk" || groups[0].YearMonth != "202101" {
		t.Errorf("unexpected first group: %+v", groups[0])
	}
	if len(groups[0].Repeatables) != 2 || groups[0].Repeatables[0].Value != "foo" || groups[0].Repeatables[1].Value != "bar" {
		t.Errorf("expected repeatables [foo bar] in order, got %+v", groups[0].Repeatables)
	}
	if len(groups[1].Repeatables) != 0 {
		t.Errorf("expected no repeatables on second group, got %+v", groups[1].Repeatables)
	}
}

func TestCommitPeriodJoined(t *testing.T) {
	store := openTestStore(t)

	records := []catalog.Record{
		testRecord("991", "Book",
			catalog.FieldGroup{CatCenter: "clk", Project: "foo, bar", NationalInfo: "pcc"}),
	}

	stats, err := store.CommitPeriod(context.Background(), records, catalog.CommaJoinedSingleValue)
	if err != nil {
		t.Fatalf("CommitPeriod failed: %v", err)
	}
	if stats.RepeatablesCreated != 0 {
		t.Errorf("expected no repeatable rows, got %d", stats.RepeatablesCreated)
	}

	groups, err := store.FieldGroupsFor("991")
	if err != nil {
		t.Fatalf("FieldGroupsFor failed: %v", err)
	}
	if groups[0].Project != "foo, bar" || groups[0].NationalInfo != "pcc" {
		t.Errorf("joined columns not stored: %+v", groups[0])
	}
}

func TestCommitPeriodSkipsExisting(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	batch := func() []catalog.Record {
		return []catalog.Record{
			testRecord("991", "Book", catalog.FieldGroup{CatCenter: "clk", YearMonth: "202101"}),
			testRecord("992", "Book", catalog.FieldGroup{CatCenter: "law", YearMonth: "202101"}),
		}
	}

	first, err := store.CommitPeriod(ctx, batch(), catalog.MultiValue)
	if err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	if first.BibsCreated != 2 {
		t.Fatalf("expected 2 bibs created, got %d", first.BibsCreated)
	}

	second, err := store.CommitPeriod(ctx, batch(), catalog.MultiValue)
	if err != nil {
		t.Fatalf("second commit failed: %v", err)
	}
	if second.BibsCreated != 0 || second.FieldsCreated != 0 || second.SkippedDuplicates != 2 {
		t.Errorf("expected everything skipped, got %+v", second)
	}

	bibs, _ := store.CountBibs()
	fields, _ := store.CountFieldGroups()
	if bibs != 2 || fields != 2 {
		t.Errorf("expected 2 bibs and 2 field groups after re-commit, got %d and %d", bibs, fields)
	}
}

func TestCommitPeriodDuplicateWithinBatch(t *testing.T) {
	store := openTestStore(t)

	records := []catalog.Record{
		testRecord("991", "Book", catalog.FieldGroup{CatCenter: "clk"}),
		testRecord("991", "Book", catalog.FieldGroup{CatCenter: "law"}),
	}

	stats, err := store.CommitPeriod(context.Background(), records, catalog.MultiValue)
	if err != nil {
		t.Fatalf("CommitPeriod failed: %v", err)
	}
	if stats.BibsCreated != 1 || stats.SkippedDuplicates != 1 {
		t.Errorf("expected 1 created and 1 skipped, got %+v", stats)
	}
}

func TestCommitPeriodRollsBack(t *testing.T) {
	store := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := []catalog.Record{testRecord("991", "Book", catalog.FieldGroup{CatCenter: "clk"})}
	if _, err := store.CommitPeriod(ctx, records, catalog.MultiValue); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	bibs, err := store.CountBibs()
	if err != nil {
		t.Fatalf("CountBibs failed: %v", err)
	}
	if bibs != 0 {
		t.Errorf("expected no partial rows after rollback, got %d bibs", bibs)
	}
}

func TestTransactionRollback(t *testing.T) {
	store := openTestStore(t)
	boom := errors.New("boom")

	err := store.Transaction(context.Background(), func(tx *sql.Tx) error {
		bib := catalog.BibRecord{MMSID: "991"}
		if _, err := store.CreateBibIfAbsent(tx, &bib); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	exists, err := store.BibExists("991")
	if err != nil {
		t.Fatalf("BibExists failed: %v", err)
	}
	if exists {
		t.Error("bib should not exist after rollback")
	}
}

func TestWipe(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	records := []catalog.Record{
		testRecord("991", "Book", catalog.FieldGroup{
			CatCenter:   "clk",
			Repeatables: []catalog.RepeatableValue{{Code: "h", Value: "pcc"}},
		}),
	}
	if _, err := store.CommitPeriod(ctx, records, catalog.MultiValue); err != nil {
		t.Fatalf("CommitPeriod failed: %v", err)
	}
	if err := store.RecordRun(ctx, &Run{ID: "run-1", Kind: "full", Status: RunCompleted, StartedAt: time.Now()}); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	if err := store.Wipe(ctx); err != nil {
		t.Fatalf("Wipe failed: %v", err)
	}

	for name, fn := range map[string]func() (int, error){
		"bibs":        store.CountBibs,
		"fields":      store.CountFieldGroups,
		"repeatables": store.CountRepeatables,
	} {
		n, err := fn()
		if err != nil {
			t.Fatalf("count %s failed: %v", name, err)
		}
		if n != 0 {
			t.Errorf("expected 0 %s after wipe, got %d", name, n)
		}
	}

	runs, err := store.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected run history to survive wipe, got %d runs", len(runs))
	}
}

func TestRecordRunAndRecentRuns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	older := &Run{ID: "a", Kind: "incremental", Periods: "202402", Policy: "multi",
		StartedAt: start, FinishedAt: start.Add(time.Minute), Status: RunCompleted, RowsFetched: 10, BibsCreated: 8}
	newer := &Run{ID: "b", Kind: "full", Periods: "2024..2007", Policy: "multi",
		StartedAt: start.Add(time.Hour), Status: RunRunning}

	for _, run := range []*Run{older, newer} {
		if err := store.RecordRun(ctx, run); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}

	// Update in place when the run finishes
	newer.Status = RunCompletedWithFailures
	newer.PeriodFailures = 1
	newer.FinishedAt = start.Add(2 * time.Hour)
	if err := store.RecordRun(ctx, newer); err != nil {
		t.Fatalf("RecordRun update failed: %v", err)
	}

	runs, err := store.RecentRuns(5)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "b" || runs[0].Status != RunCompletedWithFailures || runs[0].PeriodFailures != 1 {
		t.Errorf("unexpected newest run: %+v", runs[0])
	}
	if runs[1].RowsFetched != 10 || runs[1].BibsCreated != 8 {
		t.Errorf("unexpected older run: %+v", runs[1])
	}

	got, err := store.GetRun("a")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got == nil || got.Periods != "202402" {
		t.Errorf("unexpected run: %+v", got)
	}

	missing, err := store.GetRun("nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing run, got %+v, %v", missing, err)
	}
}

func TestSelectFieldGroups(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	multi := []catalog.Record{
		testRecord("991", "Book",
			catalog.FieldGroup{CatCenter: "clk", Cataloger: "amy", YearMonth: "202101", Difficulty: "2",
				Repeatables: []catalog.RepeatableValue{{Code: "k", Value: "proj1"}, {Code: "h", Value: "pcc"}}},
			catalog.FieldGroup{CatCenter: "law", Cataloger: "bob", YearMonth: "202107", Difficulty: "3"},
		),
	}
	joined := []catalog.Record{
		testRecord("992", "Score",
			catalog.FieldGroup{CatCenter: "clk", Cataloger: "amy", YearMonth: "202102", Project: "proj2, proj1"}),
	}
	if _, err := store.CommitPeriod(ctx, multi, catalog.MultiValue); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if _, err := store.CommitPeriod(ctx, joined, catalog.CommaJoinedSingleValue); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	tests := []struct {
		name string
		sel  Selection
		want int
	}{
		{"everything", Selection{}, 3},
		{"range", Selection{StartYM: "202101", EndYM: "202106"}, 2},
		{"single month", Selection{StartYM: "202107", EndYM: "202107"}, 1},
		{"cat center", Selection{CatCenter: "clk"}, 2},
		{"cataloger", Selection{Cataloger: "bob"}, 1},
		{"language", Selection{Language: "eng"}, 3},
		{"place mismatch", Selection{Place: "nyu"}, 0},
		{"project in child rows and joined column", Selection{Project: "proj1"}, 2},
		{"project joined only", Selection{Project: "proj2"}, 1},
		{"project partial value does not match", Selection{Project: "proj"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			views, err := store.SelectFieldGroups(ctx, tt.sel)
			if err != nil {
				t.Fatalf("SelectFieldGroups failed: %v", err)
			}
			if len(views) != tt.want {
				t.Errorf("expected %d field groups, got %d", tt.want, len(views))
			}
		})
	}

	views, err := store.SelectFieldGroups(ctx, Selection{Cataloger: "amy", StartYM: "202101", EndYM: "202101"})
	if err != nil {
		t.Fatalf("SelectFieldGroups failed: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 view, got %d", len(views))
	}
	if views[0].ResourceType != "Book" || views[0].MMSID != "991" {
		t.Errorf("unexpected view: %+v", views[0])
	}
	if len(views[0].Repeatables) != 2 {
		t.Errorf("expected repeatables loaded, got %+v", views[0].Repeatables)
	}
}
