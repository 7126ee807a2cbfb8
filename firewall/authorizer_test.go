package firewall_test

import (
	"context"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyxstudio/fwauth/firewall"
	"github.com/priyxstudio/fwauth/firewall/memfw"
)

const (
	appName = "MyApp"
	appPath = `C:\Program Files\MyApp\app.exe`
)

func newTestLogger() (*log.Entry, *memory.Handler) {
	h := memory.New()
	return log.NewEntry(&log.Logger{Handler: h, Level: log.DebugLevel}), h
}

func newAuthorizer(store firewall.Service, opts ...firewall.Option) (*firewall.Authorizer, *memory.Handler) {
	entry, h := newTestLogger()
	opts = append([]firewall.Option{firewall.WithLogger(entry)}, opts...)
	return firewall.NewAuthorizer(store, appName, appPath, opts...), h
}

func assertNoLeaks(t *testing.T, store *memfw.Store) {
	t.Helper()
	assert.Empty(t, store.Leaked(), "handles left open")
	assert.Zero(t, store.DoubleReleased(), "handles released more than once")
}

func TestAuthorizeCreatesRule(t *testing.T) {
	store := memfw.New()
	a, _ := newAuthorizer(store)

	res := a.Run(context.Background())
	require.True(t, res.Succeeded(), "authorize failed: %v", res.Err)
	assert.False(t, res.Replaced)
	assert.Equal(t, firewall.StageDone, res.Stage)
	assert.Equal(t, firewall.StageSubmitted, res.Reached)
	assert.Equal(t, "memory", res.Backend)

	assert.Equal(t, []firewall.Definition{{
		Name:            appName,
		ApplicationPath: appPath,
		Action:          firewall.ActionAllow,
		Direction:       firewall.DirectionInbound,
		Enabled:         true,
	}}, store.Snapshot())
	assertNoLeaks(t, store)
}

func TestAuthorizeSkipsDeleteWhenAbsent(t *testing.T) {
	store := memfw.New(firewall.InboundAllow("Other", `C:\other.exe`))
	a, _ := newAuthorizer(store)

	require.True(t, a.Authorize(context.Background()))
	assert.Equal(t, []string{
		firewall.OpOpen,
		firewall.OpRules,
		firewall.OpItem,
		firewall.OpNewRule,
		firewall.OpSetName,
		firewall.OpSetApplicationName,
		firewall.OpSetAction,
		firewall.OpSetEnabled,
		firewall.OpSetDirection,
		firewall.OpAdd,
	}, store.Calls())
	assert.Len(t, store.Snapshot(), 2)
}

func TestAuthorizeReplacesExistingRule(t *testing.T) {
	stale := firewall.Definition{
		Name:            appName,
		ApplicationPath: `C:\Old\app.exe`,
		Action:          firewall.ActionBlock,
		Direction:       firewall.DirectionInbound,
	}
	store := memfw.New(stale)
	a, h := newAuthorizer(store)

	res := a.Run(context.Background())
	require.True(t, res.Succeeded())
	assert.True(t, res.Replaced)
	assert.Contains(t, store.Calls(), firewall.OpRemove)

	rules := store.Snapshot()
	require.Len(t, rules, 1)
	assert.Equal(t, firewall.InboundAllow(appName, appPath), rules[0])
	assertNoLeaks(t, store)

	var messages []string
	for _, e := range h.Entries {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "rule already present in firewall, removing it")
	assert.Contains(t, messages, "rule added to firewall")
}

func TestAuthorizeIsIdempotent(t *testing.T) {
	store := memfw.New()
	a, _ := newAuthorizer(store)

	for i := 0; i < 5; i++ {
		store.ResetCalls()
		require.True(t, a.Authorize(context.Background()), "run %d", i)
		if i > 0 {
			assert.Equal(t, []string{firewall.OpOpen, firewall.OpRules, firewall.OpItem, firewall.OpRemove}, store.Calls()[:4], "run %d", i)
		}
	}

	rules := store.Snapshot()
	require.Len(t, rules, 1)
	assert.Equal(t, firewall.InboundAllow(appName, appPath), rules[0])
	assertNoLeaks(t, store)
}

func TestAuthorizeRemovesDuplicates(t *testing.T) {
	store := memfw.New(
		firewall.InboundAllow(appName, `C:\a.exe`),
		firewall.InboundAllow(appName, `C:\b.exe`),
	)
	a, _ := newAuthorizer(store)

	require.True(t, a.Authorize(context.Background()))
	assert.Equal(t, []firewall.Definition{firewall.InboundAllow(appName, appPath)}, store.Snapshot())
}

func TestAuthorizeTreatsLookupFailureAsAbsent(t *testing.T) {
	store := memfw.New()
	store.FailOn(firewall.OpItem, firewall.CodeAccessDenied)
	a, _ := newAuthorizer(store)

	require.True(t, a.Authorize(context.Background()))
	assert.NotContains(t, store.Calls(), firewall.OpRemove)
	assert.Len(t, store.Snapshot(), 1)
}

func TestAuthorizeFailsFast(t *testing.T) {
	cases := []struct {
		op       string
		existing bool
		kind     error
		reached  firewall.Stage
	}{
		{firewall.OpOpen, false, firewall.ErrServiceUnavailable, firewall.StageInit},
		{firewall.OpRules, false, firewall.ErrServiceUnavailable, firewall.StageServiceOpen},
		{firewall.OpRemove, true, firewall.ErrMutationFailed, firewall.StageRulesListed},
		{firewall.OpNewRule, true, firewall.ErrServiceUnavailable, firewall.StageOldRuleChecked},
		{firewall.OpSetName, false, firewall.ErrMutationFailed, firewall.StageOldRuleChecked},
		{firewall.OpSetApplicationName, false, firewall.ErrMutationFailed, firewall.StageOldRuleChecked},
		{firewall.OpSetAction, false, firewall.ErrMutationFailed, firewall.StageOldRuleChecked},
		{firewall.OpSetEnabled, false, firewall.ErrMutationFailed, firewall.StageOldRuleChecked},
		{firewall.OpSetDirection, false, firewall.ErrMutationFailed, firewall.StageOldRuleChecked},
		{firewall.OpAdd, true, firewall.ErrMutationFailed, firewall.StageNewRuleBuilt},
	}

	for _, tc := range cases {
		t.Run(tc.op, func(t *testing.T) {
			var store *memfw.Store
			if tc.existing {
				store = memfw.New(firewall.InboundAllow(appName, appPath))
			} else {
				store = memfw.New()
			}
			store.FailOn(tc.op, firewall.CodeAccessDenied)
			a, h := newAuthorizer(store)

			res := a.Run(context.Background())
			assert.False(t, res.Succeeded())
			assert.Equal(t, firewall.StageFailed, res.Stage)
			assert.Equal(t, tc.reached, res.Reached)
			assert.ErrorIs(t, res.Err, tc.kind)

			calls := store.Calls()
			require.NotEmpty(t, calls)
			assert.Equal(t, tc.op, calls[len(calls)-1], "calls continued after the failing step")
			assertNoLeaks(t, store)

			var failure *log.Entry
			for _, e := range h.Entries {
				if e.Level == log.ErrorLevel {
					failure = e
				}
			}
			require.NotNil(t, failure, "failure was not logged")
			assert.Equal(t, tc.op, failure.Fields["step"])
			assert.Equal(t, "0x80070005", failure.Fields["code"])
		})
	}
}

func TestAuthorizeSubmitFailureLeavesNoRule(t *testing.T) {
	store := memfw.New()
	a, _ := newAuthorizer(store)
	require.True(t, a.Authorize(context.Background()))

	store.FailOn(firewall.OpAdd, firewall.CodeFail)
	require.False(t, a.Authorize(context.Background()))
	assert.Empty(t, store.Snapshot())
	assertNoLeaks(t, store)

	store.Heal()
	require.True(t, a.Authorize(context.Background()))
	assert.Len(t, store.Snapshot(), 1)
}

func TestAuthorizeRejectsEmptyIdentity(t *testing.T) {
	store := memfw.New()
	entry, _ := newTestLogger()

	a := firewall.NewAuthorizer(store, "", appPath, firewall.WithLogger(entry))
	assert.False(t, a.Authorize(context.Background()))

	a = firewall.NewAuthorizer(store, appName, "", firewall.WithLogger(entry))
	assert.False(t, a.Authorize(context.Background()))

	assert.Empty(t, store.Calls())
}

func TestAuthorizeNotifiesObservers(t *testing.T) {
	store := memfw.New()
	var got []*firewall.Result
	a, _ := newAuthorizer(store, firewall.WithObserver(func(r *firewall.Result) {
		got = append(got, r)
	}))

	a.Authorize(context.Background())
	store.FailOn(firewall.OpOpen, firewall.CodeFail)
	a.Authorize(context.Background())

	require.Len(t, got, 2)
	assert.True(t, got[0].Succeeded())
	assert.False(t, got[1].Succeeded())
	assert.False(t, got[0].Started.IsZero())
}

type stalledService struct {
	*memfw.Store
	release chan struct{}
}

func (s stalledService) Open(ctx context.Context) (firewall.Policy, error) {
	<-s.release
	return s.Store.Open(context.Background())
}

func TestAuthorizeTimeout(t *testing.T) {
	store := memfw.New()
	svc := stalledService{Store: store, release: make(chan struct{})}
	a, _ := newAuthorizer(svc, firewall.WithTimeout(20*time.Millisecond))

	res := a.Run(context.Background())
	assert.False(t, res.Succeeded())
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Equal(t, firewall.StageInit, res.Reached)

	close(svc.release)
	require.Eventually(t, func() bool {
		return store.Released() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, store.Snapshot(), "abandoned run must not submit a rule")
	assertNoLeaks(t, store)
}

// stalledSubmit blocks every Rules.Add until release is closed.
type stalledSubmit struct {
	*memfw.Store
	release chan struct{}
}

func (s stalledSubmit) Open(ctx context.Context) (firewall.Policy, error) {
	p, err := s.Store.Open(ctx)
	if err != nil {
		return nil, err
	}
	return stalledPolicy{Policy: p, release: s.release}, nil
}

type stalledPolicy struct {
	firewall.Policy
	release chan struct{}
}

func (p stalledPolicy) Rules() (firewall.Rules, error) {
	r, err := p.Policy.Rules()
	if err != nil {
		return nil, err
	}
	return stalledRules{Rules: r, release: p.release}, nil
}

type stalledRules struct {
	firewall.Rules
	release chan struct{}
}

func (r stalledRules) Add(rule firewall.Rule) error {
	<-r.release
	return r.Rules.Add(rule)
}

func TestAuthorizeTimeoutDuringSubmit(t *testing.T) {
	store := memfw.New()
	svc := stalledSubmit{Store: store, release: make(chan struct{})}
	var observed *firewall.Result
	a, h := newAuthorizer(svc,
		firewall.WithTimeout(50*time.Millisecond),
		firewall.WithObserver(func(r *firewall.Result) { observed = r }),
	)

	res := a.Run(context.Background())
	assert.False(t, res.Succeeded())
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Equal(t, firewall.StageNewRuleBuilt, res.Reached)
	require.NotNil(t, observed)
	assert.Equal(t, firewall.StageNewRuleBuilt, observed.Reached)

	var abandoned *log.Entry
	for _, e := range h.Entries {
		if e.Message == "firewall authorization abandoned" {
			abandoned = e
		}
	}
	require.NotNil(t, abandoned)
	assert.Equal(t, "new_rule_built", abandoned.Fields["reached"])

	// The blocked submit still completes once the policy store returns.
	close(svc.release)
	require.Eventually(t, func() bool {
		return len(store.Snapshot()) == 1 && len(store.Leaked()) == 0
	}, time.Second, 5*time.Millisecond)
	assertNoLeaks(t, store)
}

func TestExists(t *testing.T) {
	store := memfw.New()
	ok, err := firewall.Exists(context.Background(), store, appName)
	require.NoError(t, err)
	assert.False(t, ok)

	a, _ := newAuthorizer(store)
	require.True(t, a.Authorize(context.Background()))

	ok, err = firewall.Exists(context.Background(), store, appName)
	require.NoError(t, err)
	assert.True(t, ok)
	assertNoLeaks(t, store)

	store.FailOn(firewall.OpRules, firewall.CodeFail)
	_, err = firewall.Exists(context.Background(), store, appName)
	assert.ErrorIs(t, err, firewall.ErrServiceUnavailable)
	assertNoLeaks(t, store)
}
