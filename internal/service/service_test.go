package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"cloudpulse/internal/alerting"
	"cloudpulse/internal/pipeline"
	"cloudpulse/internal/storage"
)

type fakeAccountLister struct {
	accounts []storage.CloudAccount
	err      error
}

func (f *fakeAccountLister) ListActiveAccounts(context.Context) ([]storage.CloudAccount, error) {
	return f.accounts, f.err
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string
	windows [][2]string
	failFor map[string]error
}

func (f *fakeFetcher) FetchAndStore(_ context.Context, accountID, startDate, endDate string) (pipeline.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, accountID)
	f.windows = append(f.windows, [2]string{startDate, endDate})
	f.mu.Unlock()

	if err, ok := f.failFor[accountID]; ok {
		return pipeline.Result{}, err
	}
	return pipeline.Result{RecordsUpserted: 1, StartDate: startDate, EndDate: endDate}, nil
}

type fakeEvaluator struct {
	triggers map[string][]alerting.Trigger
	err      error
	calls    []string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, projectID string) ([]alerting.Trigger, error) {
	f.calls = append(f.calls, projectID)
	if f.err != nil {
		return nil, f.err
	}
	return f.triggers[projectID], nil
}

type fakeDispatcher struct {
	dispatched map[string][]alerting.Trigger
}

func (f *fakeDispatcher) Dispatch(_ context.Context, projectID string, triggers []alerting.Trigger) {
	if f.dispatched == nil {
		f.dispatched = make(map[string][]alerting.Trigger)
	}
	f.dispatched[projectID] = triggers
}

type fakeLocker struct {
	acquired bool
	err      error
	unlocked bool
}

func (f *fakeLocker) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if !f.acquired {
		return nil, false, nil
	}
	return func() { f.unlocked = true }, true, nil
}

func account(id, projectID string) storage.CloudAccount {
	return storage.CloudAccount{ID: id, ProjectID: projectID, Provider: "AWS", IsActive: true}
}

func budgetTrigger(ruleID string) alerting.Trigger {
	return alerting.Trigger{Rule: storage.AlertRule{ID: ruleID}, Reason: "Daily budget exceeded: $2.00 > $1.00"}
}

func newTestService(accounts AccountLister, fetcher Fetcher, evaluator Evaluator, dispatcher Dispatcher, locker Locker, opts Options) *Service {
	svc := New(accounts, fetcher, evaluator, dispatcher, locker, opts, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, time.April, 10, 6, 0, 0, 0, time.UTC) }
	return svc
}

func TestRunCycleFetchWindow(t *testing.T) {
	lister := &fakeAccountLister{accounts: []storage.CloudAccount{account("acct-1", "proj-1")}}
	fetcher := &fakeFetcher{}
	svc := newTestService(lister, fetcher, &fakeEvaluator{}, &fakeDispatcher{}, nil, Options{LookbackDays: 2})

	require.NoError(t, svc.RunCycle(context.Background()))
	require.Equal(t, [][2]string{{"2026-04-08", "2026-04-11"}}, fetcher.windows)
}

func TestRunCycleEvaluatesTouchedProjects(t *testing.T) {
	lister := &fakeAccountLister{accounts: []storage.CloudAccount{
		account("acct-1", "proj-1"),
		account("acct-2", "proj-1"),
		account("acct-3", "proj-2"),
	}}
	fetcher := &fakeFetcher{}
	evaluator := &fakeEvaluator{triggers: map[string][]alerting.Trigger{
		"proj-1": {budgetTrigger("rule-1")},
	}}
	dispatcher := &fakeDispatcher{}
	svc := newTestService(lister, fetcher, evaluator, dispatcher, nil, Options{})

	require.NoError(t, svc.RunCycle(context.Background()))

	sort.Strings(evaluator.calls)
	require.Equal(t, []string{"proj-1", "proj-2"}, evaluator.calls)

	// Only projects with triggers reach the dispatcher.
	require.Len(t, dispatcher.dispatched, 1)
	require.Len(t, dispatcher.dispatched["proj-1"], 1)
}

func TestRunCycleSkipsProjectsOfFailedFetches(t *testing.T) {
	lister := &fakeAccountLister{accounts: []storage.CloudAccount{
		account("acct-1", "proj-1"),
		account("acct-2", "proj-2"),
	}}
	fetcher := &fakeFetcher{failFor: map[string]error{"acct-2": errors.New("throttled")}}
	evaluator := &fakeEvaluator{}
	svc := newTestService(lister, fetcher, evaluator, &fakeDispatcher{}, nil, Options{})

	// A failed account fetch is logged, not fatal.
	require.NoError(t, svc.RunCycle(context.Background()))
	require.Equal(t, []string{"proj-1"}, evaluator.calls)
}

func TestRunCycleAdvisoryLockHeldElsewhere(t *testing.T) {
	lister := &fakeAccountLister{accounts: []storage.CloudAccount{account("acct-1", "proj-1")}}
	fetcher := &fakeFetcher{}
	locker := &fakeLocker{acquired: false}
	svc := newTestService(lister, fetcher, &fakeEvaluator{}, &fakeDispatcher{}, locker, Options{AdvisoryLockKey: 42})

	require.NoError(t, svc.RunCycle(context.Background()))
	require.Empty(t, fetcher.calls)
}

func TestRunCycleReleasesAdvisoryLock(t *testing.T) {
	lister := &fakeAccountLister{}
	locker := &fakeLocker{acquired: true}
	svc := newTestService(lister, &fakeFetcher{}, &fakeEvaluator{}, &fakeDispatcher{}, locker, Options{AdvisoryLockKey: 42})

	require.NoError(t, svc.RunCycle(context.Background()))
	require.True(t, locker.unlocked)
}

func TestRunCycleLockErrorIsFatal(t *testing.T) {
	locker := &fakeLocker{err: errors.New("db down")}
	svc := newTestService(&fakeAccountLister{}, &fakeFetcher{}, &fakeEvaluator{}, &fakeDispatcher{}, locker, Options{AdvisoryLockKey: 42})

	require.Error(t, svc.RunCycle(context.Background()))
}

func TestRunCycleEvaluationFailureSkipsProject(t *testing.T) {
	lister := &fakeAccountLister{accounts: []storage.CloudAccount{account("acct-1", "proj-1")}}
	evaluator := &fakeEvaluator{err: errors.New("db down")}
	dispatcher := &fakeDispatcher{}
	svc := newTestService(lister, &fakeFetcher{}, evaluator, dispatcher, nil, Options{})

	require.NoError(t, svc.RunCycle(context.Background()))
	require.Empty(t, dispatcher.dispatched)
}
