package trade_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/sportsmockery/gm-trade-engine/internal/aging"
	"github.com/sportsmockery/gm-trade-engine/internal/events"
	"github.com/sportsmockery/gm-trade-engine/internal/grader"
	"github.com/sportsmockery/gm-trade-engine/internal/model"
	"github.com/sportsmockery/gm-trade-engine/internal/store"
	"github.com/sportsmockery/gm-trade-engine/internal/trade"
	"github.com/sportsmockery/gm-trade-engine/internal/valuation"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func intPtr(n int) *int { return &n }

// fakeGrader wraps the heuristic grader and counts calls.
type fakeGrader struct {
	mu    sync.Mutex
	calls int
	err   error
	block bool
}

func (f *fakeGrader) Grade(ctx context.Context, req grader.Request) (grader.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return grader.Result{}, ctx.Err()
	}
	if f.err != nil {
		return grader.Result{}, f.err
	}
	return grader.NewHeuristic(valuation.DefaultTables()).Grade(ctx, req)
}

func (f *fakeGrader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingSink collects published events.
type recordingSink struct {
	mu     sync.Mutex
	events []events.GradeEvent
	err    error
}

func (s *recordingSink) PublishGrade(_ context.Context, ev events.GradeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func newEngine() *valuation.Engine {
	return valuation.NewEngine(aging.DefaultCurve(), valuation.DefaultTables(), 2026)
}

// newTestService creates a Service with an in-memory store and a counting
// grader.
func newTestService(t *testing.T, opts trade.Options, sinks ...trade.Publisher) (*trade.Service, *store.MemoryStore, *fakeGrader) {
	t.Helper()
	ms := store.NewMemoryStore()
	g := &fakeGrader{}
	return trade.NewService(ms, newEngine(), g, opts, sinks...), ms, g
}

// safetyForPick: chi sends the 2026 1st (66.5) for a pro-level safety
// (74.1). gb receives 90% of what it sends, so it accepts.
func safetyForPick() model.TradeProposal {
	return model.TradeProposal{
		Sport:          "NFL",
		Home:           "CHI",
		Counterparties: []string{"GB"},
		Flows: []model.Flow{
			{From: "CHI", To: "GB", Asset: &model.DraftPick{Year: 2026, Round: 1, OriginalTeam: "CHI"}},
			{From: "GB", To: "CHI", Asset: &model.Player{ID: "s1", Name: "Safety", Position: "S", Age: 27, Tier: model.TierProLevel, ContractYearsRemaining: 2}},
		},
	}
}

func TestSubmitTrade_Miss(t *testing.T) {
	svc, ms, g := newTestService(t, trade.Options{})

	sub, err := svc.SubmitTrade(context.Background(), trade.SubmitRequest{Proposal: safetyForPick(), UserID: "alice"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if sub.Path() != trade.PathMiss {
		t.Errorf("expected miss, got %s", sub.Path())
	}
	if g.Calls() != 1 {
		t.Errorf("expected one grader call, got %d", g.Calls())
	}
	if sub.Grade.Status != model.StatusAccepted || sub.Grade.IsDangerous {
		t.Errorf("expected accepted and safe, got %+v", sub.Grade)
	}
	// 50 + 50 × (74.1 − 66.5) / 74.1 ≈ 55.1
	if sub.Grade.Score != 55 {
		t.Errorf("expected score 55, got %d", sub.Grade.Score)
	}
	if sub.Grade.ImprovementScore != 7.6 {
		t.Errorf("expected improvement 7.6, got %v", sub.Grade.ImprovementScore)
	}
	if len(sub.ShareCode) != 10 || sub.GradeID == "" {
		t.Errorf("expected id and 10-char share code, got %q / %q", sub.GradeID, sub.ShareCode)
	}
	if sub.SessionID != "alice" {
		t.Errorf("session should default to the user, got %q", sub.SessionID)
	}

	rec, err := ms.GetGradeByShareCode(context.Background(), sub.ShareCode)
	if err != nil {
		t.Fatalf("grade not persisted: %v", err)
	}
	if rec.ID != sub.GradeID || rec.SourceGradeID != "" {
		t.Errorf("unexpected record %+v", rec)
	}
	cached, err := ms.GetCacheRecord(context.Background(), sub.Fingerprint, "alice")
	if err != nil || cached.GradeID != sub.GradeID {
		t.Errorf("expected cache record for %s, got %+v, %v", sub.GradeID, cached, err)
	}
}

func TestSubmitTrade_IdempotentGrading(t *testing.T) {
	svc, ms, g := newTestService(t, trade.Options{})
	ctx := context.Background()
	req := trade.SubmitRequest{Proposal: safetyForPick(), UserID: "alice", SessionID: "s1"}

	first, err := svc.SubmitTrade(ctx, req)
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	agg, _ := ms.GetSession(ctx, "s1")
	afterFirst := agg.TotalImprovement

	// Same trade, flows reordered and team codes re-cased.
	again := safetyForPick()
	again.Flows[0], again.Flows[1] = again.Flows[1], again.Flows[0]
	again.Home = "chi"
	second, err := svc.SubmitTrade(ctx, trade.SubmitRequest{Proposal: again, UserID: "alice", SessionID: "s1"})
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}

	if second.Path() != trade.PathHit {
		t.Errorf("expected hit, got %s", second.Path())
	}
	if g.Calls() != 1 {
		t.Errorf("cache hit must not call the grader, got %d calls", g.Calls())
	}
	if diff := cmp.Diff(first.Grade, second.Grade); diff != "" {
		t.Errorf("grades differ (-first +second):\n%s", diff)
	}
	if first.ShareCode == second.ShareCode || first.GradeID == second.GradeID {
		t.Error("every submission gets a fresh id and share code")
	}

	rec, _ := ms.GetGrade(ctx, second.GradeID)
	if rec.SourceGradeID != first.GradeID {
		t.Errorf("expected source grade %s, got %q", first.GradeID, rec.SourceGradeID)
	}

	agg, _ = ms.GetSession(ctx, "s1")
	if agg.TradesAttempted != 2 || agg.TradesAccepted != 2 {
		t.Errorf("expected 2 attempts and 2 accepts, got %+v", agg)
	}
	if !agg.TotalImprovement.Equal(afterFirst) || !agg.TotalImprovement.Equal(d(7.6)) {
		t.Errorf("improvement should only count once: after first %s, now %s", afterFirst, agg.TotalImprovement)
	}

	board, _ := ms.Leaderboard(ctx, 10)
	want := []model.LeaderboardEntry{{UserID: "alice", Score: d(7.6), Trades: 1}}
	opts := cmp.Options{
		cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
		cmp.FilterPath(func(p cmp.Path) bool { return p.Last().String() == ".UpdatedAt" }, cmp.Ignore()),
	}
	if diff := cmp.Diff(want, board, opts); diff != "" {
		t.Errorf("leaderboard mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitTrade_CacheIsPerUser(t *testing.T) {
	svc, _, g := newTestService(t, trade.Options{})
	ctx := context.Background()

	a, _ := svc.SubmitTrade(ctx, trade.SubmitRequest{Proposal: safetyForPick(), UserID: "alice"})
	b, err := svc.SubmitTrade(ctx, trade.SubmitRequest{Proposal: safetyForPick(), UserID: "bob"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if b.Path() != trade.PathMiss || g.Calls() != 2 {
		t.Errorf("another user's submission should miss, got %s with %d calls", b.Path(), g.Calls())
	}
	if a.Fingerprint != b.Fingerprint {
		t.Error("fingerprint should not depend on the user")
	}
}

func TestSubmitTrade_EliteYoungPlayerForFirst(t *testing.T) {
	svc, _, _ := newTestService(t, trade.Options{})
	ctx := context.Background()
	p := model.TradeProposal{
		Sport:          "nfl",
		Home:           "chi",
		Counterparties: []string{"gb"},
		Flows: []model.Flow{
			{From: "chi", To: "gb", Asset: &model.Player{ID: "te1", Position: "TE", Age: 24, Tier: model.TierElite, ContractYearsRemaining: 2}},
			{From: "gb", To: "chi", Asset: &model.DraftPick{Year: 2026, Round: 1}},
		},
	}

	first, err := svc.SubmitTrade(ctx, trade.SubmitRequest{Proposal: p, UserID: "u1"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	second, _ := svc.SubmitTrade(ctx, trade.SubmitRequest{Proposal: p, UserID: "u1"})

	// gb receives 88.2 for a 66.5 pick.
	if first.Grade.Status != model.StatusAccepted {
		t.Errorf("expected accepted, got %s", first.Grade.Status)
	}
	if first.Grade.Score != second.Grade.Score {
		t.Errorf("resubmission changed score: %d vs %d", first.Grade.Score, second.Grade.Score)
	}
}

func TestSubmitTrade_DecliningVeteranIsDangerous(t *testing.T) {
	svc, ms, _ := newTestService(t, trade.Options{})
	ctx := context.Background()
	p := model.TradeProposal{
		Sport:          "nfl",
		Home:           "chi",
		Counterparties: []string{"det", "gb"},
		Flows: []model.Flow{
			// Elite WR at 35: 100 × 0.33 × 0.90 × 1.1 ≈ 32.7.
			{From: "det", To: "chi", Asset: &model.Player{ID: "wr9", Position: "WR", Age: 35, Tier: model.TierElite, ContractYearsRemaining: 1}},
			// Two mid 6th rounders: 7.4 + 7.2.
			{From: "gb", To: "det", Asset: &model.DraftPick{Year: 2026, Round: 6, PickNumber: intPtr(15), OriginalTeam: "gb"}},
			{From: "gb", To: "det", Asset: &model.DraftPick{Year: 2026, Round: 6, PickNumber: intPtr(17), OriginalTeam: "gb"}},
			{From: "chi", To: "gb", Asset: &model.DraftPick{Year: 2026, Round: 3, PickNumber: intPtr(10), OriginalTeam: "chi"}},
		},
	}

	sub, err := svc.SubmitTrade(ctx, trade.SubmitRequest{Proposal: p, UserID: "u1"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !sub.Grade.IsDangerous {
		t.Errorf("expected dangerous grade, got %+v", sub.Grade)
	}
	// det gets 14.6 for 32.7, outside the tolerance band.
	if sub.Grade.Status != model.StatusRejected {
		t.Errorf("expected rejected, got %s", sub.Grade.Status)
	}
	if sub.Grade.ImprovementScore != 0 {
		t.Errorf("rejected grades carry no improvement, got %v", sub.Grade.ImprovementScore)
	}

	agg, _ := ms.GetSession(ctx, "u1")
	want := model.SessionAggregate{
		SessionID:        "u1",
		UserID:           "u1",
		TradesAttempted:  1,
		TradesDangerous:  1,
		TradesFailed:     1,
		TotalImprovement: decimal.Zero,
	}
	opts := cmp.Options{
		cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
		cmp.FilterPath(func(p cmp.Path) bool { return p.Last().String() == ".UpdatedAt" }, cmp.Ignore()),
	}
	if diff := cmp.Diff(want, *agg, opts); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitTrade_AnonymousAlwaysMisses(t *testing.T) {
	sink := &recordingSink{}
	svc, ms, g := newTestService(t, trade.Options{}, sink)
	ctx := context.Background()

	var subs []*trade.Submission
	for i := 0; i < 2; i++ {
		sub, err := svc.SubmitTrade(ctx, trade.SubmitRequest{Proposal: safetyForPick()})
		if err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		subs = append(subs, sub)
	}

	if g.Calls() != 2 {
		t.Errorf("anonymous submissions should always grade, got %d calls", g.Calls())
	}
	for _, sub := range subs {
		if sub.Path() != trade.PathAnonymous || sub.ShareCode != "" || sub.GradeID != "" {
			t.Errorf("unexpected anonymous submission %+v (path %s)", sub, sub.Path())
		}
	}
	if subs[0].Grade.Score != subs[1].Grade.Score {
		t.Error("anonymous grades should be deterministic")
	}

	if _, err := ms.GetCacheRecord(ctx, subs[0].Fingerprint, ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("anonymous submission wrote a cache record: %v", err)
	}
	if board, _ := ms.Leaderboard(ctx, 10); len(board) != 0 {
		t.Errorf("anonymous submission touched the leaderboard: %+v", board)
	}
	if len(sink.events) != 2 || sink.events[0].Path != trade.PathAnonymous || sink.events[0].UserID != "" {
		t.Errorf("expected two anonymous events, got %+v", sink.events)
	}
}

func TestSubmitTrade_InvalidProposal(t *testing.T) {
	svc, _, g := newTestService(t, trade.Options{})
	p := safetyForPick()
	p.Flows[0].To = "chi"

	_, err := svc.SubmitTrade(context.Background(), trade.SubmitRequest{Proposal: p, UserID: "alice"})
	var pe *model.ProposalError
	if !errors.As(err, &pe) || pe.Invariant != model.InvariantSelfLoop {
		t.Fatalf("expected self_loop proposal error, got %v", err)
	}
	if errors.Is(err, trade.ErrGradingUnavailable) {
		t.Error("invalid proposal must be distinguishable from grading unavailable")
	}
	if g.Calls() != 0 {
		t.Errorf("grader should not be called, got %d calls", g.Calls())
	}
}

func TestSubmitTrade_GradingUnavailableMutatesNothing(t *testing.T) {
	ms := store.NewMemoryStore()
	g := &fakeGrader{err: grader.ErrUnavailable}
	sink := &recordingSink{}
	svc := trade.NewService(ms, newEngine(), g, trade.Options{}, sink)
	ctx := context.Background()

	_, err := svc.SubmitTrade(ctx, trade.SubmitRequest{Proposal: safetyForPick(), UserID: "alice"})
	if !errors.Is(err, trade.ErrGradingUnavailable) {
		t.Fatalf("expected ErrGradingUnavailable, got %v", err)
	}
	if errors.Is(err, model.ErrInvalidProposal) {
		t.Error("grading unavailable must not look like an invalid proposal")
	}

	if _, err := ms.GetSession(ctx, "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("session should not exist, got %v", err)
	}
	if grades, _ := ms.ListGradesByUser(ctx, "alice", 10); len(grades) != 0 {
		t.Errorf("no grade should be persisted, got %d", len(grades))
	}
	fp, _ := svc.Fingerprint(safetyForPick())
	if _, err := ms.GetCacheRecord(ctx, fp, "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cache record should not exist, got %v", err)
	}
	if len(sink.events) != 0 {
		t.Errorf("no event should be published, got %d", len(sink.events))
	}
}

func TestSubmitTrade_GraderTimeout(t *testing.T) {
	ms := store.NewMemoryStore()
	g := &fakeGrader{block: true}
	svc := trade.NewService(ms, newEngine(), g, trade.Options{GraderTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := svc.SubmitTrade(context.Background(), trade.SubmitRequest{Proposal: safetyForPick(), UserID: "alice"})
	if !errors.Is(err, trade.ErrGradingUnavailable) {
		t.Fatalf("expected ErrGradingUnavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline cause, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("grader call was not bounded")
	}
}

func TestSubmitTrade_RunsToCompletionAfterClientCancels(t *testing.T) {
	svc, ms, _ := newTestService(t, trade.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sub, err := svc.SubmitTrade(ctx, trade.SubmitRequest{Proposal: safetyForPick(), UserID: "alice"})
	if err != nil {
		t.Fatalf("submission should complete, got %v", err)
	}
	if _, err := ms.GetGrade(context.Background(), sub.GradeID); err != nil {
		t.Errorf("grade should be persisted: %v", err)
	}
}

func TestSubmitTrade_EmptyTrade(t *testing.T) {
	svc, _, _ := newTestService(t, trade.Options{})
	p := model.TradeProposal{Sport: "nfl", Home: "chi", Counterparties: []string{"gb"}}

	sub, err := svc.SubmitTrade(context.Background(), trade.SubmitRequest{Proposal: p, UserID: "alice"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	want := model.Grade{
		Score:     50,
		Status:    model.StatusRejected,
		Reasoning: grader.EmptyTradeReasoning,
		Breakdown: model.GradeBreakdown{TalentBalance: 50, ContractValue: 50, TeamFit: 50, FutureAssets: 50},
	}
	if diff := cmp.Diff(want, sub.Grade); diff != "" {
		t.Errorf("empty trade grade mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitTrade_DegenerateValuation(t *testing.T) {
	svc, ms, g := newTestService(t, trade.Options{})
	p := safetyForPick()
	p.Flows[1].Asset = &model.Player{ID: "s1", Position: "S", Age: -3, Tier: model.TierGood, ContractYearsRemaining: 2}

	_, err := svc.SubmitTrade(context.Background(), trade.SubmitRequest{Proposal: p, UserID: "alice"})
	if !errors.Is(err, valuation.ErrDegenerateValuation) {
		t.Fatalf("expected ErrDegenerateValuation, got %v", err)
	}
	if g.Calls() != 0 {
		t.Error("grader should not see a degenerate valuation")
	}
	if _, err := ms.GetSession(context.Background(), "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("session should not exist, got %v", err)
	}
}

// failingStore fails one stage of a submission. Commit failures are
// refused before anything reaches the underlying store, the same as a
// rolled-back transaction.
type failingStore struct {
	*store.MemoryStore
	fail string
}

const (
	failCacheLookup = "cache lookup"
	failInsert      = "insert grade"
	failPut         = "put cache record"
	failSession     = "increment session"
	failLeaderboard = "increment leaderboard"
)

var errDisk = errors.New("disk on fire")

func (s *failingStore) GetCacheRecord(ctx context.Context, fp model.Fingerprint, userID string) (*model.CacheRecord, error) {
	if s.fail == failCacheLookup {
		return nil, errDisk
	}
	return s.MemoryStore.GetCacheRecord(ctx, fp, userID)
}

func (s *failingStore) CommitGrade(ctx context.Context, c store.GradeCommit) error {
	switch {
	case s.fail == failInsert, s.fail == failSession:
		return errDisk
	case s.fail == failPut && c.Cache != nil:
		return errDisk
	case s.fail == failLeaderboard && !c.Leaderboard.IsZero():
		return errDisk
	}
	return s.MemoryStore.CommitGrade(ctx, c)
}

func TestSubmitTrade_PersistenceFailure(t *testing.T) {
	for _, stage := range []string{failCacheLookup, failInsert, failPut, failSession, failLeaderboard} {
		t.Run(stage, func(t *testing.T) {
			st := &failingStore{MemoryStore: store.NewMemoryStore(), fail: stage}
			sink := &recordingSink{}
			svc := trade.NewService(st, newEngine(), &fakeGrader{}, trade.Options{}, sink)
			ctx := context.Background()
			req := trade.SubmitRequest{Proposal: safetyForPick(), UserID: "alice", SessionID: "s1"}

			sub, err := svc.SubmitTrade(ctx, req)
			if !errors.Is(err, trade.ErrPersistence) || !errors.Is(err, errDisk) {
				t.Fatalf("expected ErrPersistence wrapping the cause, got %v", err)
			}
			if sub != nil {
				t.Error("a grade that was not recorded must not be returned")
			}
			if len(sink.events) != 0 {
				t.Error("no event should be published for a failed submission")
			}
			if grades, _ := st.ListGradesByUser(ctx, "alice", 10); len(grades) != 0 {
				t.Errorf("expected no grade records, got %d", len(grades))
			}
			if _, err := st.GetSession(ctx, "s1"); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("expected no session, got %v", err)
			}

			// The retry is graded afresh and credited in full.
			st.fail = ""
			sub, err = svc.SubmitTrade(ctx, req)
			if err != nil {
				t.Fatalf("retry failed: %v", err)
			}
			if sub.Path() != trade.PathMiss {
				t.Errorf("expected retry to miss, got %s", sub.Path())
			}
			agg, _ := st.GetSession(ctx, "s1")
			if agg.TradesAttempted != 1 || !agg.TotalImprovement.Equal(d(7.6)) {
				t.Errorf("expected one credited attempt, got %+v", agg)
			}
			board, _ := st.Leaderboard(ctx, 10)
			if len(board) != 1 || !board[0].Score.Equal(d(7.6)) {
				t.Errorf("expected leaderboard credit 7.6, got %+v", board)
			}
		})
	}
}

func TestSubmitTrade_SessionOwnedByAnotherUser(t *testing.T) {
	svc, ms, g := newTestService(t, trade.Options{})
	ctx := context.Background()

	if _, err := svc.SubmitTrade(ctx, trade.SubmitRequest{Proposal: safetyForPick(), UserID: "alice", SessionID: "s1"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, err := svc.SubmitTrade(ctx, trade.SubmitRequest{Proposal: safetyForPick(), UserID: "mallory", SessionID: "s1"})
	if !errors.Is(err, trade.ErrSessionNotOwned) {
		t.Fatalf("expected ErrSessionNotOwned, got %v", err)
	}
	if g.Calls() != 1 {
		t.Errorf("a foreign session should be rejected before grading, got %d grader calls", g.Calls())
	}

	agg, _ := ms.GetSession(ctx, "s1")
	if agg.UserID != "alice" || agg.TradesAttempted != 1 || !agg.TotalImprovement.Equal(d(7.6)) {
		t.Errorf("session changed by another user: %+v", agg)
	}
	if grades, _ := ms.ListGradesByUser(ctx, "mallory", 10); len(grades) != 0 {
		t.Errorf("expected no grades for mallory, got %d", len(grades))
	}
}

func TestSubmitTrade_PublishFailureDoesNotFailSubmission(t *testing.T) {
	broken := &recordingSink{err: errors.New("redis down")}
	ok := &recordingSink{}
	svc, _, _ := newTestService(t, trade.Options{}, broken, ok)

	sub, err := svc.SubmitTrade(context.Background(), trade.SubmitRequest{Proposal: safetyForPick(), UserID: "alice"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if len(ok.events) != 1 {
		t.Fatalf("expected healthy sink to receive the event, got %d", len(ok.events))
	}
	ev := ok.events[0]
	if ev.Type != events.TypeTradeGraded || ev.Path != trade.PathMiss || ev.ShareCode != sub.ShareCode || ev.Sport != "nfl" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestSubmitTrade_ConcurrentSameSession(t *testing.T) {
	svc, ms, _ := newTestService(t, trade.Options{})
	ctx := context.Background()

	const tabs = 10
	var wg sync.WaitGroup
	for i := 0; i < tabs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.SubmitTrade(ctx, trade.SubmitRequest{Proposal: safetyForPick(), UserID: "alice", SessionID: "tab"}); err != nil {
				t.Errorf("submit failed: %v", err)
			}
		}()
	}
	wg.Wait()

	agg, err := ms.GetSession(ctx, "tab")
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if agg.TradesAttempted != tabs {
		t.Errorf("expected %d attempts, got %d", tabs, agg.TradesAttempted)
	}
	grades, _ := ms.ListGradesByUser(ctx, "alice", 100)
	if len(grades) != tabs {
		t.Errorf("expected %d grade records, got %d", tabs, len(grades))
	}

	// Overlapping misses of the same trade credit improvement once.
	if !agg.TotalImprovement.Equal(d(7.6)) {
		t.Errorf("expected improvement 7.6, got %s", agg.TotalImprovement)
	}
	board, _ := ms.Leaderboard(ctx, 10)
	if len(board) != 1 || !board[0].Score.Equal(d(7.6)) || board[0].Trades != 1 {
		t.Errorf("expected a single leaderboard credit, got %+v", board)
	}
	sources := 0
	for _, g := range grades {
		if g.SourceGradeID == "" {
			sources++
		}
	}
	if sources != 1 {
		t.Errorf("expected exactly one original grade, got %d", sources)
	}
}

func TestFingerprint(t *testing.T) {
	svc, _, _ := newTestService(t, trade.Options{})

	a, err := svc.Fingerprint(safetyForPick())
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	p := safetyForPick()
	p.Flows[0], p.Flows[1] = p.Flows[1], p.Flows[0]
	b, _ := svc.Fingerprint(p)
	if a != b {
		t.Error("fingerprint should not depend on flow order")
	}

	p.Sport = ""
	if _, err := svc.Fingerprint(p); !errors.Is(err, model.ErrInvalidProposal) {
		t.Errorf("expected invalid proposal, got %v", err)
	}
}

func TestValuate(t *testing.T) {
	svc, _, _ := newTestService(t, trade.Options{})

	b, err := svc.Valuate("nfl", &model.DraftPick{Year: 2026, Round: 1})
	if err != nil {
		t.Fatalf("valuate failed: %v", err)
	}
	if b.FinalValue != 66.5 {
		t.Errorf("expected 66.5, got %v", b.FinalValue)
	}

	if _, err := svc.Valuate("", &model.DraftPick{Year: 2026, Round: 1}); !errors.Is(err, model.ErrInvalidProposal) {
		t.Errorf("expected invalid proposal for empty sport, got %v", err)
	}
	if _, err := svc.Valuate("nfl", &model.Player{ID: "p", Position: "QB", Tier: "legend"}); !errors.Is(err, model.ErrInvalidProposal) {
		t.Errorf("expected invalid proposal for bad tier, got %v", err)
	}
}
