package problem

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"judgecore/internal/common/cache"
	"judgecore/internal/common/db"
	appErr "judgecore/pkg/errors"
)

type sqlCall struct {
	query string
	args  []interface{}
}

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

// fakeDB records statements; transactional statements go through the same
// recorder so tests can assert ordering. failExec is the 1-based statement
// index that fails, 0 for none.
type fakeDB struct {
	execs     []sqlCall
	queries   []sqlCall
	row       db.Row
	rows      db.Rows
	failExec  int
	commits   int
	rollbacks int
}

func (f *fakeDB) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	f.execs = append(f.execs, sqlCall{query: query, args: args})
	if f.failExec > 0 && len(f.execs) == f.failExec {
		return nil, errors.New("exec failed")
	}
	return fakeResult{}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	f.queries = append(f.queries, sqlCall{query: query, args: args})
	if f.row != nil {
		return f.row
	}
	return fakeRow{err: sql.ErrNoRows}
}

func (f *fakeDB) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	f.queries = append(f.queries, sqlCall{query: query, args: args})
	if f.rows != nil {
		return f.rows, nil
	}
	return &fakeRows{}, nil
}

func (f *fakeDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	if err := fn(&fakeTx{parent: f}); err != nil {
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

func (f *fakeDB) BeginTx(ctx context.Context, opts *db.TxOptions) (db.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) Ping(ctx context.Context) error { return nil }
func (f *fakeDB) Close() error                   { return nil }
func (f *fakeDB) Stats() db.Stats                { return db.Stats{} }

type fakeTx struct {
	parent *fakeDB
}

func (t *fakeTx) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	return t.parent.Exec(ctx, query, args...)
}

func (t *fakeTx) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	return t.parent.Query(ctx, query, args...)
}

func (t *fakeTx) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	return t.parent.QueryRow(ctx, query, args...)
}

func (t *fakeTx) Commit() error   { return nil }
func (t *fakeTx) Rollback() error { return nil }

type fakeRow struct {
	p   *Problem
	err error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.p.ProblemID
	*(dest[1].(*string)) = r.p.Title
	*(dest[2].(*int64)) = r.p.TimeLimitMs
	*(dest[3].(*int64)) = r.p.MemoryLimitBytes
	return nil
}

type fakeRows struct {
	tcs []Testcase
	idx int
}

func (r *fakeRows) Next() bool {
	return r.idx < len(r.tcs)
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	tc := r.tcs[r.idx]
	r.idx++
	*(dest[0].(*int)) = tc.ID
	*(dest[1].(*string)) = tc.Input
	*(dest[2].(*string)) = tc.ExpectedOutput
	*(dest[3].(*bool)) = tc.IsPublic
	*(dest[4].(*int)) = tc.Point
	return nil
}

func (r *fakeRows) Close() error { return nil }
func (r *fakeRows) Err() error   { return nil }

func normalizeSQL(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func newProblemTestCache(t *testing.T) (cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func sampleTestcases() []Testcase {
	return []Testcase{
		{ID: 1, Input: "1 2\n", ExpectedOutput: "3\n", IsPublic: true, Point: 40},
		{ID: 2, Input: "5 7\n", ExpectedOutput: "12\n", Point: 60},
	}
}

func TestGetProblem(t *testing.T) {
	want := &Problem{ProblemID: 42, Title: "A + B", TimeLimitMs: 1000, MemoryLimitBytes: 64 << 20}
	fdb := &fakeDB{row: fakeRow{p: want}}
	store := NewMySQLStore(fdb, nil)

	got, err := store.GetProblem(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetProblem: %v", err)
	}
	if *got != *want {
		t.Fatalf("GetProblem = %+v, want %+v", got, want)
	}
}

func TestGetProblemNotFound(t *testing.T) {
	store := NewMySQLStore(&fakeDB{}, nil)
	if _, err := store.GetProblem(context.Background(), 42); !appErr.Is(err, appErr.ProblemNotFound) {
		t.Fatalf("GetProblem = %v, want ProblemNotFound", err)
	}
}

func TestGetTestcases(t *testing.T) {
	tcs := sampleTestcases()
	fdb := &fakeDB{rows: &fakeRows{tcs: tcs}}
	store := NewMySQLStore(fdb, nil)

	got, err := store.GetTestcases(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetTestcases: %v", err)
	}
	if !reflect.DeepEqual(got, tcs) {
		t.Fatalf("GetTestcases = %+v, want %+v", got, tcs)
	}
	q := normalizeSQL(fdb.queries[0].query)
	if !strings.Contains(q, "ORDER BY seq ASC") {
		t.Fatalf("testcases must come back in order: %s", q)
	}
}

func TestGetTestcasesMissingProblem(t *testing.T) {
	store := NewMySQLStore(&fakeDB{}, nil)
	if _, err := store.GetTestcases(context.Background(), 42); !appErr.Is(err, appErr.TestcaseNotFound) {
		t.Fatalf("GetTestcases = %v, want TestcaseNotFound", err)
	}
}

func TestGetTestcasesServedFromCache(t *testing.T) {
	c, _ := newProblemTestCache(t)
	fdb := &fakeDB{rows: &fakeRows{tcs: sampleTestcases()}}
	store := NewMySQLStore(fdb, c)

	if _, err := store.GetTestcases(context.Background(), 42); err != nil {
		t.Fatalf("GetTestcases: %v", err)
	}
	if _, err := store.GetTestcases(context.Background(), 42); err != nil {
		t.Fatalf("GetTestcases: %v", err)
	}
	if len(fdb.queries) != 1 {
		t.Fatalf("got %d queries, want 1 (second read must hit the cache)", len(fdb.queries))
	}
}

func TestGetTestcasesCachesAbsence(t *testing.T) {
	c, mr := newProblemTestCache(t)
	store := NewMySQLStore(&fakeDB{}, c)

	if _, err := store.GetTestcases(context.Background(), 99); !appErr.Is(err, appErr.TestcaseNotFound) {
		t.Fatalf("GetTestcases = %v, want TestcaseNotFound", err)
	}
	if v, err := mr.Get("problem:tests:99"); err != nil || v != cache.NullCacheValue {
		t.Fatalf("cache = (%q, %v), want null sentinel", v, err)
	}
}

func TestUpsertReplacesTestSet(t *testing.T) {
	fdb := &fakeDB{}
	store := NewMySQLStore(fdb, nil)
	p := &Problem{ProblemID: 42, Title: "A + B", TimeLimitMs: 1000, MemoryLimitBytes: 64 << 20}

	if err := store.Upsert(context.Background(), p, sampleTestcases()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if fdb.commits != 1 || fdb.rollbacks != 0 {
		t.Fatalf("commits = %d, rollbacks = %d, want one commit", fdb.commits, fdb.rollbacks)
	}
	if len(fdb.execs) != 4 {
		t.Fatalf("got %d statements, want 4", len(fdb.execs))
	}
	if !strings.Contains(normalizeSQL(fdb.execs[0].query), "ON DUPLICATE KEY UPDATE") {
		t.Fatalf("first statement must upsert the problem: %s", fdb.execs[0].query)
	}
	if !strings.Contains(fdb.execs[1].query, "DELETE FROM testcases") {
		t.Fatalf("second statement must clear old testcases: %s", fdb.execs[1].query)
	}
	if !strings.Contains(fdb.execs[2].query, "INSERT INTO testcases") {
		t.Fatalf("third statement must insert testcases: %s", fdb.execs[2].query)
	}
}

func TestUpsertRollsBackOnFailure(t *testing.T) {
	fdb := &fakeDB{failExec: 3}
	store := NewMySQLStore(fdb, nil)
	p := &Problem{ProblemID: 42, TimeLimitMs: 1000, MemoryLimitBytes: 64 << 20}

	err := store.Upsert(context.Background(), p, sampleTestcases())
	if !appErr.Is(err, appErr.DatabaseError) {
		t.Fatalf("Upsert = %v, want DatabaseError", err)
	}
	if fdb.rollbacks != 1 || fdb.commits != 0 {
		t.Fatalf("commits = %d, rollbacks = %d, want one rollback", fdb.commits, fdb.rollbacks)
	}
}

func TestUpsertInvalidatesCache(t *testing.T) {
	c, mr := newProblemTestCache(t)
	fdb := &fakeDB{}
	store := NewMySQLStore(fdb, c)
	if err := mr.Set("problem:meta:42", "stale"); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	if err := mr.Set("problem:tests:42", "stale"); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	p := &Problem{ProblemID: 42, TimeLimitMs: 1000, MemoryLimitBytes: 64 << 20}
	if err := store.Upsert(context.Background(), p, sampleTestcases()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if mr.Exists("problem:meta:42") || mr.Exists("problem:tests:42") {
		t.Fatalf("upsert must invalidate both cache keys")
	}
}

func TestUpsertValidates(t *testing.T) {
	tests := map[string]struct {
		p    *Problem
		tcs  []Testcase
		code appErr.ErrorCode
	}{
		"nil problem":     {nil, sampleTestcases(), appErr.ValidationFailed},
		"zero problem id": {&Problem{}, sampleTestcases(), appErr.ValidationFailed},
		"no testcases":    {&Problem{ProblemID: 42}, nil, appErr.ValidationFailed},
		"zero test id":    {&Problem{ProblemID: 42}, []Testcase{{ID: 0, Point: 1}}, appErr.TestcaseInvalid},
		"duplicate ids":   {&Problem{ProblemID: 42}, []Testcase{{ID: 1}, {ID: 1}}, appErr.TestcaseInvalid},
		"negative points": {&Problem{ProblemID: 42}, []Testcase{{ID: 1, Point: -5}}, appErr.TestcaseInvalid},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			fdb := &fakeDB{}
			store := NewMySQLStore(fdb, nil)
			if err := store.Upsert(context.Background(), tt.p, tt.tcs); !appErr.Is(err, tt.code) {
				t.Fatalf("Upsert = %v, want code %d", err, tt.code)
			}
			if fdb.commits != 0 || fdb.rollbacks != 0 {
				t.Fatalf("validation failure must not open a transaction")
			}
		})
	}
}

func TestUpsertAppliesDefaultLimits(t *testing.T) {
	fdb := &fakeDB{}
	store := NewMySQLStore(fdb, nil)
	p := &Problem{ProblemID: 42}

	if err := store.Upsert(context.Background(), p, sampleTestcases()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	args := fdb.execs[0].args
	if args[2] != int64(2000) {
		t.Fatalf("time limit arg = %v, want default 2000", args[2])
	}
	if args[3] != int64(256<<20) {
		t.Fatalf("memory limit arg = %v, want default 256MiB", args[3])
	}
}
