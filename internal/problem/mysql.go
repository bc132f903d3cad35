package problem

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"judgecore/internal/common/cache"
	"judgecore/internal/common/db"
	appErr "judgecore/pkg/errors"
)

const (
	defaultProblemCacheTTL      = 30 * time.Minute
	defaultProblemCacheEmptyTTL = 5 * time.Minute

	problemMetaKeyPrefix  = "problem:meta:"
	problemTestsKeyPrefix = "problem:tests:"

	defaultTimeLimitMs      = 2000
	defaultMemoryLimitBytes = 256 << 20
)

// MySQLStore implements Store on MySQL with a redis cache in front. Problem
// data changes rarely and is read on every judged submission, so the TTLs
// are long and Upsert invalidates both keys.
type MySQLStore struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore creates a problem store with default cache TTLs.
func NewMySQLStore(database db.Database, cacheClient cache.Cache) *MySQLStore {
	return NewMySQLStoreWithTTL(database, cacheClient, defaultProblemCacheTTL, defaultProblemCacheEmptyTTL)
}

// NewMySQLStoreWithTTL creates a problem store with custom cache TTLs.
func NewMySQLStoreWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLStore {
	if ttl <= 0 {
		ttl = defaultProblemCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemCacheEmptyTTL
	}
	return &MySQLStore{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

// GetProblem returns problem metadata by id.
func (s *MySQLStore) GetProblem(ctx context.Context, problemID int64) (*Problem, error) {
	if problemID <= 0 {
		return nil, appErr.ValidationError("problemID", "required")
	}
	if s.cache == nil {
		return s.getProblemFromDB(ctx, problemID)
	}
	p, err := cache.GetWithCached[*Problem](
		ctx,
		s.cache,
		problemMetaKey(problemID),
		cache.JitterTTL(s.ttl),
		cache.JitterTTL(s.emptyTTL),
		func(p *Problem) bool { return p == nil },
		marshalProblem,
		unmarshalProblem,
		func(ctx context.Context) (*Problem, error) {
			p, err := s.getProblemFromDB(ctx, problemID)
			if err != nil {
				if appErr.Is(err, appErr.ProblemNotFound) {
					return nil, nil
				}
				return nil, err
			}
			return p, nil
		},
	)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, appErr.Newf(appErr.ProblemNotFound, "problem %d not found", problemID)
	}
	return p, nil
}

// GetTestcases returns a problem's testcases ordered by ID.
func (s *MySQLStore) GetTestcases(ctx context.Context, problemID int64) ([]Testcase, error) {
	if problemID <= 0 {
		return nil, appErr.ValidationError("problemID", "required")
	}
	var (
		testcases []Testcase
		err       error
	)
	if s.cache == nil {
		testcases, err = s.getTestcasesFromDB(ctx, problemID)
	} else {
		testcases, err = cache.GetWithCached[[]Testcase](
			ctx,
			s.cache,
			problemTestsKey(problemID),
			cache.JitterTTL(s.ttl),
			cache.JitterTTL(s.emptyTTL),
			func(tcs []Testcase) bool { return len(tcs) == 0 },
			marshalTestcases,
			unmarshalTestcases,
			func(ctx context.Context) ([]Testcase, error) {
				return s.getTestcasesFromDB(ctx, problemID)
			},
		)
	}
	if err != nil {
		return nil, err
	}
	if len(testcases) == 0 {
		return nil, appErr.Newf(appErr.TestcaseNotFound, "problem %d has no test data", problemID)
	}
	return testcases, nil
}

// Upsert atomically replaces a problem and its testcases. The delete and
// re-insert run in one transaction so a concurrent judge never observes a
// half-replaced test set.
func (s *MySQLStore) Upsert(ctx context.Context, p *Problem, testcases []Testcase) error {
	if err := validateUpsert(p, testcases); err != nil {
		return err
	}
	if p.TimeLimitMs <= 0 {
		p.TimeLimitMs = defaultTimeLimitMs
	}
	if p.MemoryLimitBytes <= 0 {
		p.MemoryLimitBytes = defaultMemoryLimitBytes
	}

	err := s.db.Transaction(ctx, func(tx db.Transaction) error {
		upsert := `
			INSERT INTO problems (problem_id, title, time_limit_ms, memory_limit_bytes)
			VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				title = VALUES(title),
				time_limit_ms = VALUES(time_limit_ms),
				memory_limit_bytes = VALUES(memory_limit_bytes)
		`
		if _, err := tx.Exec(ctx, upsert, p.ProblemID, p.Title, p.TimeLimitMs, p.MemoryLimitBytes); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM testcases WHERE problem_id = ?", p.ProblemID); err != nil {
			return err
		}
		insert := `
			INSERT INTO testcases (problem_id, seq, input, expected_output, is_public, point)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		for _, tc := range testcases {
			if _, err := tx.Exec(ctx, insert, p.ProblemID, tc.ID, tc.Input, tc.ExpectedOutput, tc.IsPublic, tc.Point); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "upsert problem %d", p.ProblemID)
	}
	s.invalidate(ctx, p.ProblemID)
	return nil
}

func validateUpsert(p *Problem, testcases []Testcase) error {
	if p == nil {
		return appErr.ValidationError("problem", "required")
	}
	if p.ProblemID <= 0 {
		return appErr.ValidationError("problemID", "required")
	}
	if len(testcases) == 0 {
		return appErr.ValidationError("testcases", "required")
	}
	seen := make(map[int]bool, len(testcases))
	for _, tc := range testcases {
		if tc.ID <= 0 {
			return appErr.Newf(appErr.TestcaseInvalid, "testcase id %d must be positive", tc.ID)
		}
		if seen[tc.ID] {
			return appErr.Newf(appErr.TestcaseInvalid, "testcase id %d appears twice", tc.ID)
		}
		seen[tc.ID] = true
		if tc.Point < 0 {
			return appErr.Newf(appErr.TestcaseInvalid, "testcase %d has negative points", tc.ID)
		}
	}
	return nil
}

func (s *MySQLStore) getProblemFromDB(ctx context.Context, problemID int64) (*Problem, error) {
	query := "SELECT problem_id, title, time_limit_ms, memory_limit_bytes FROM problems WHERE problem_id = ? LIMIT 1"
	row := s.db.QueryRow(ctx, query, problemID)
	p := &Problem{}
	if err := row.Scan(&p.ProblemID, &p.Title, &p.TimeLimitMs, &p.MemoryLimitBytes); err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.Newf(appErr.ProblemNotFound, "problem %d not found", problemID)
		}
		return nil, appErr.Wrap(err, appErr.DatabaseError).WithMessage("query problem")
	}
	return p, nil
}

func (s *MySQLStore) getTestcasesFromDB(ctx context.Context, problemID int64) ([]Testcase, error) {
	query := "SELECT seq, input, expected_output, is_public, point FROM testcases WHERE problem_id = ? ORDER BY seq ASC"
	rows, err := s.db.Query(ctx, query, problemID)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError).WithMessage("query testcases")
	}
	defer rows.Close()

	var testcases []Testcase
	for rows.Next() {
		var tc Testcase
		if err := rows.Scan(&tc.ID, &tc.Input, &tc.ExpectedOutput, &tc.IsPublic, &tc.Point); err != nil {
			return nil, appErr.Wrap(err, appErr.DatabaseError).WithMessage("scan testcase")
		}
		testcases = append(testcases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError).WithMessage("iterate testcases")
	}
	return testcases, nil
}

func (s *MySQLStore) invalidate(ctx context.Context, problemID int64) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, problemMetaKey(problemID), problemTestsKey(problemID))
}

func formatID(problemID int64) string {
	return strconv.FormatInt(problemID, 10)
}

func problemMetaKey(problemID int64) string {
	return problemMetaKeyPrefix + formatID(problemID)
}

func problemTestsKey(problemID int64) string {
	return problemTestsKeyPrefix + formatID(problemID)
}

func marshalProblem(p *Problem) string {
	if p == nil {
		return ""
	}
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalProblem(data string) (*Problem, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var p Problem
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func marshalTestcases(tcs []Testcase) string {
	if len(tcs) == 0 {
		return ""
	}
	data, err := json.Marshal(tcs)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalTestcases(data string) ([]Testcase, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var tcs []Testcase
	if err := json.Unmarshal([]byte(data), &tcs); err != nil {
		return nil, err
	}
	return tcs, nil
}
