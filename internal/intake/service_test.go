package intake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"judgecore/internal/common/cache"
	"judgecore/internal/language"
	"judgecore/internal/prescreen"
	"judgecore/internal/problem"
	"judgecore/internal/queue"
	"judgecore/internal/ratelimit"
	"judgecore/internal/submission"
	appErr "judgecore/pkg/errors"
)

type recordedTransition struct {
	id     string
	from   submission.Status
	to     submission.Status
	reason string
}

type fakeStore struct {
	mu          sync.Mutex
	created     []*submission.Submission
	createErr   error
	transitions []recordedTransition
	getSub      *submission.Submission
	getErr      error
}

func (f *fakeStore) Create(_ context.Context, sub *submission.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, sub)
	return nil
}

func (f *fakeStore) Get(context.Context, string) (*submission.Submission, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.getSub == nil {
		return nil, errors.New("not implemented")
	}
	return f.getSub, nil
}

func (f *fakeStore) Transition(_ context.Context, id string, from, to submission.Status, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, recordedTransition{id, from, to, reason})
	return nil
}

func (f *fakeStore) Claim(context.Context, string) (bool, error) {
	return false, errors.New("not implemented")
}

func (f *fakeStore) Finalize(context.Context, string, submission.Outcome) error {
	return errors.New("not implemented")
}

func (f *fakeStore) StaleRunning(context.Context, time.Time, int) ([]*submission.Submission, error) {
	return nil, errors.New("not implemented")
}

type fakeProblems struct {
	prob    *problem.Problem
	probErr error
	tcs     []problem.Testcase
	tcsErr  error
}

func (f *fakeProblems) GetProblem(context.Context, int64) (*problem.Problem, error) {
	return f.prob, f.probErr
}

func (f *fakeProblems) GetTestcases(context.Context, int64) ([]problem.Testcase, error) {
	return f.tcs, f.tcsErr
}

func (f *fakeProblems) Upsert(context.Context, *problem.Problem, []problem.Testcase) error {
	return errors.New("not implemented")
}

type fakeArchiver struct {
	puts   []string
	putErr error
	src    string
	getErr error
}

func (f *fakeArchiver) Put(_ context.Context, submissionID, _ string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	f.puts = append(f.puts, submissionID)
	return "hash", nil
}

func (f *fakeArchiver) Get(context.Context, string, string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.src, nil
}

type erroringQueue struct{}

func (erroringQueue) Enqueue(context.Context, queue.Job) error {
	return appErr.New(appErr.QueueTransportError)
}

func (erroringQueue) Dequeue(context.Context, time.Duration) (queue.Job, bool, error) {
	return queue.Job{}, false, errors.New("not implemented")
}

func (erroringQueue) Depth(context.Context) (int64, error) {
	return 0, errors.New("not implemented")
}

func (erroringQueue) Ping(context.Context) error {
	return errors.New("not implemented")
}

type stubWorkers bool

func (s stubWorkers) Healthy() bool { return bool(s) }

type fixture struct {
	svc      *Service
	store    *fakeStore
	problems *fakeProblems
	arch     *fakeArchiver
	queue    queue.Queue
	mr       *miniredis.Miniredis
}

func sampleTestcases() []problem.Testcase {
	return []problem.Testcase{
		{ID: 1, Input: "1 2\n", ExpectedOutput: "3\n", IsPublic: true, Point: 40},
		{ID: 2, Input: "5 7\n", ExpectedOutput: "12\n", Point: 60},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient: %v", err)
	}

	scanner, err := prescreen.NewScanner([]prescreen.Rule{{
		Name:      "no-shell",
		Pattern:   `os\.system`,
		Languages: []string{"python3"},
		Reason:    "shell execution is not allowed",
	}})
	if err != nil {
		t.Fatal(err)
	}

	store := &fakeStore{}
	problems := &fakeProblems{
		prob: &problem.Problem{ProblemID: 42, Title: "A+B", TimeLimitMs: 2000, MemoryLimitBytes: 256 << 20},
		tcs:  sampleTestcases(),
	}
	arch := &fakeArchiver{src: "print(1)"}
	q := queue.NewRedisQueue(c, "judge:queue:intaketest")

	svc, err := NewService(Deps{
		Store:    store,
		Problems: problems,
		Queue:    q,
		Registry: language.NewRegistry(),
		Scanner:  scanner,
		Archive:  arch,
		Window:   ratelimit.NewWindow(c, 100, time.Minute),
		Cache:    c,
		Workers:  stubWorkers(true),
	}, Config{
		MaxCodeBytes:   1024,
		MinTimeLimitMs: 100,
		MaxTimeLimitMs: 10_000,
		MinMemoryBytes: 16 << 20,
		MaxMemoryBytes: 512 << 20,
		DupGuardTTL:    5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{svc: svc, store: store, problems: problems, arch: arch, queue: q, mr: mr}
}

func validRequest() SubmitRequest {
	return SubmitRequest{
		UserID:     7,
		ProblemID:  42,
		LanguageID: "python3",
		Code:       "print(sum(map(int, input().split())))",
	}
}

func TestSubmitQueuesValidCode(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.Submit(ctx, validRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != submission.StatusQueued {
		t.Fatalf("status = %s, want %s", res.Status, submission.StatusQueued)
	}
	if res.SubmissionID == "" {
		t.Fatal("no submission id assigned")
	}

	if len(fx.store.created) != 1 {
		t.Fatalf("created %d submissions, want 1", len(fx.store.created))
	}
	sub := fx.store.created[0]
	if sub.SubmissionID != res.SubmissionID || sub.SourceHash == "" || sub.SourceKey == "" {
		t.Fatalf("stored submission incomplete: %+v", sub)
	}
	if sub.TimeLimitMs != 2000 || sub.MemoryLimitBytes != 256<<20 {
		t.Fatalf("limits = %d/%d", sub.TimeLimitMs, sub.MemoryLimitBytes)
	}

	if len(fx.store.transitions) != 1 {
		t.Fatalf("transitions = %+v", fx.store.transitions)
	}
	tr := fx.store.transitions[0]
	if tr.from != submission.StatusPending || tr.to != submission.StatusQueued {
		t.Fatalf("transition = %+v", tr)
	}

	job, ok, err := fx.queue.Dequeue(ctx, 0)
	if err != nil || !ok {
		t.Fatalf("no job queued: ok=%v err=%v", ok, err)
	}
	if job.SubmissionID != res.SubmissionID || len(job.Testcases) != 2 || job.TimeLimitMs != 2000 {
		t.Fatalf("job = %+v", job)
	}

	if len(fx.arch.puts) != 1 || fx.arch.puts[0] != res.SubmissionID {
		t.Fatalf("archive puts = %v", fx.arch.puts)
	}
}

func TestSubmitValidates(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	cases := map[string]struct {
		mutate func(*SubmitRequest)
		code   appErr.ErrorCode
	}{
		"zero user":        {func(r *SubmitRequest) { r.UserID = 0 }, appErr.ValidationFailed},
		"zero problem":     {func(r *SubmitRequest) { r.ProblemID = 0 }, appErr.ValidationFailed},
		"empty code":       {func(r *SubmitRequest) { r.Code = "  \n" }, appErr.ValidationFailed},
		"oversized code":   {func(r *SubmitRequest) { r.Code = strings.Repeat("a", 2048) }, appErr.CodeTooLarge},
		"unknown language": {func(r *SubmitRequest) { r.LanguageID = "cobol" }, appErr.LanguageNotSupported},
	}
	for name, tc := range cases {
		req := validRequest()
		tc.mutate(&req)
		_, err := fx.svc.Submit(ctx, req)
		if !appErr.Is(err, tc.code) {
			t.Errorf("%s: got %v, want code %d", name, err, tc.code)
		}
	}
	if len(fx.store.created) != 0 {
		t.Fatal("invalid submits reached the store")
	}
}

func TestSubmitRejectsOnPrescreen(t *testing.T) {
	fx := newFixture(t)
	req := validRequest()
	req.Code = "import os\nos.system('rm -rf /')"

	res, err := fx.svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("pre-screen rejection must be in-band, got error %v", err)
	}
	if res.Status != submission.StatusRejected {
		t.Fatalf("status = %s, want %s", res.Status, submission.StatusRejected)
	}
	if !strings.Contains(res.Reason, "no-shell") {
		t.Fatalf("reason = %q", res.Reason)
	}

	tr := fx.store.transitions[0]
	if tr.to != submission.StatusRejected || !strings.Contains(tr.reason, "shell execution") {
		t.Fatalf("transition = %+v", tr)
	}

	if _, ok, _ := fx.queue.Dequeue(context.Background(), 0); ok {
		t.Fatal("rejected submission was queued")
	}
	if len(fx.arch.puts) != 0 {
		t.Fatal("rejected submission was archived")
	}
}

func TestSubmitDuplicateGuard(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.Submit(ctx, validRequest()); err != nil {
		t.Fatal(err)
	}
	_, err := fx.svc.Submit(ctx, validRequest())
	if !appErr.Is(err, appErr.SubmitTooFrequently) {
		t.Fatalf("duplicate submit: got %v, want SubmitTooFrequently", err)
	}
	if len(fx.store.created) != 1 {
		t.Fatalf("created %d submissions, want 1", len(fx.store.created))
	}

	// A different source from the same user is not a duplicate.
	req := validRequest()
	req.Code = "print(int(input()) * 2)"
	if _, err := fx.svc.Submit(ctx, req); err != nil {
		t.Fatal(err)
	}
}

func TestSubmitWindowLimits(t *testing.T) {
	fx := newFixture(t)
	fx.svc.window = ratelimit.NewWindow(fx.svc.cache, 1, time.Minute)
	ctx := context.Background()

	if _, err := fx.svc.Submit(ctx, validRequest()); err != nil {
		t.Fatal(err)
	}
	req := validRequest()
	req.Code = "print('different')"
	_, err := fx.svc.Submit(ctx, req)
	if !appErr.Is(err, appErr.SubmitTooFrequently) {
		t.Fatalf("got %v, want SubmitTooFrequently", err)
	}
}

func TestSubmitUnknownProblem(t *testing.T) {
	fx := newFixture(t)
	fx.problems.prob = nil
	fx.problems.probErr = appErr.Newf(appErr.ProblemNotFound, "problem 42 not found")

	_, err := fx.svc.Submit(context.Background(), validRequest())
	if !appErr.Is(err, appErr.ProblemNotFound) {
		t.Fatalf("got %v, want ProblemNotFound", err)
	}
	if len(fx.store.created) != 0 {
		t.Fatal("submission created for a missing problem")
	}
}

func TestSubmitEnqueueFailureFailsSubmission(t *testing.T) {
	fx := newFixture(t)
	fx.svc.queue = erroringQueue{}

	_, err := fx.svc.Submit(context.Background(), validRequest())
	if !appErr.Is(err, appErr.QueueTransportError) {
		t.Fatalf("got %v, want QueueTransportError", err)
	}

	if len(fx.store.transitions) != 1 {
		t.Fatalf("transitions = %+v", fx.store.transitions)
	}
	tr := fx.store.transitions[0]
	if tr.to != submission.StatusInternalError {
		t.Fatalf("transition = %+v, want INTERNAL_ERROR", tr)
	}
}

func TestSubmitArchiveFailureDegrades(t *testing.T) {
	fx := newFixture(t)
	fx.arch.putErr = appErr.New(appErr.StorageError)

	res, err := fx.svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("archive failure must not fail the submit: %v", err)
	}
	if res.Status != submission.StatusQueued {
		t.Fatalf("status = %s, want %s", res.Status, submission.StatusQueued)
	}
}

func TestSubmitClampsLimits(t *testing.T) {
	fx := newFixture(t)
	fx.problems.prob = &problem.Problem{
		ProblemID:        42,
		TimeLimitMs:      60_000,
		MemoryLimitBytes: 1 << 20,
	}

	res, err := fx.svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}
	job, _, _ := fx.queue.Dequeue(context.Background(), 0)
	if job.SubmissionID != res.SubmissionID {
		t.Fatal("queued job does not match the submission")
	}
	if job.TimeLimitMs != 10_000 {
		t.Fatalf("time limit = %d, want clamp to 10000", job.TimeLimitMs)
	}
	if job.MemoryLimitBytes != 16<<20 {
		t.Fatalf("memory limit = %d, want clamp to %d", job.MemoryLimitBytes, 16<<20)
	}
}

func TestGetSource(t *testing.T) {
	fx := newFixture(t)
	fx.store.getSub = &submission.Submission{
		SubmissionID: "s1",
		SourceKey:    "sources/s1.zst",
		SourceHash:   "hash",
	}

	src, err := fx.svc.GetSource(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if src != "print(1)" {
		t.Fatalf("source = %q", src)
	}

	fx.store.getSub.SourceKey = ""
	_, err = fx.svc.GetSource(context.Background(), "s1")
	if !appErr.Is(err, appErr.ArchiveNotFound) {
		t.Fatalf("got %v, want ArchiveNotFound", err)
	}
}

func TestGetQueueStatus(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.Submit(ctx, validRequest()); err != nil {
		t.Fatal(err)
	}

	status := fx.svc.GetQueueStatus(ctx)
	if !status.Healthy || status.Depth != 1 {
		t.Fatalf("status = %+v, want healthy with depth 1", status)
	}

	fx.svc.workers = stubWorkers(false)
	if status := fx.svc.GetQueueStatus(ctx); status.Healthy {
		t.Fatal("healthy with no live workers")
	}

	fx.svc.workers = stubWorkers(true)
	fx.mr.Close()
	if status := fx.svc.GetQueueStatus(ctx); status.Healthy {
		t.Fatal("healthy with the queue transport down")
	}
}
