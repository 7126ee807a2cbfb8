package firewall

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"

	"github.com/priyxstudio/fwauth/loggers/cli"
)

// Result describes the outcome of a single authorize run.
type Result struct {
	Backend         string
	Name            string
	ApplicationPath string

	// Replaced is set when a previous rule with the same name was removed.
	Replaced bool

	// Stage is StageDone on success and StageFailed otherwise. Reached is the
	// last stage completed before the run ended.
	Stage   Stage
	Reached Stage

	Err      error
	Started  time.Time
	Duration time.Duration
}

// Succeeded reports whether the rule was submitted.
func (r *Result) Succeeded() bool {
	return r.Err == nil && r.Stage == StageDone
}

// Observer receives the result of every authorize run.
type Observer func(*Result)

type Option func(*Authorizer)

// WithLogger sets the entry used for all log output of the authorizer.
func WithLogger(entry *log.Entry) Option {
	return func(a *Authorizer) {
		a.logger = entry
	}
}

// WithTimeout bounds the whole authorize run. A zero duration disables the
// timeout.
//
// A policy call that is already blocked when the deadline passes cannot be
// interrupted. The run is reported failed with the last stage it completed,
// and the blocked call may still take effect afterwards: a run abandoned at
// StageNewRuleBuilt can leave its rule registered.
func WithTimeout(d time.Duration) Option {
	return func(a *Authorizer) {
		a.timeout = d
	}
}

// WithObserver registers a callback invoked with the result of each run.
func WithObserver(o Observer) Option {
	return func(a *Authorizer) {
		a.observers = append(a.observers, o)
	}
}

// Authorizer registers an application with the firewall so that inbound
// connections to it are permitted. Every run removes any rule already
// registered under the same name before adding a fresh one, so repeated runs
// converge on exactly one rule.
//
// Concurrent runs against the same policy store, from this process or
// another, are not coordinated. The policy service decides the outcome.
type Authorizer struct {
	service   Service
	name      string
	path      string
	timeout   time.Duration
	logger    *log.Entry
	observers []Observer
}

// NewAuthorizer returns an authorizer that registers the executable at path
// under the rule name.
func NewAuthorizer(service Service, name, path string, opts ...Option) *Authorizer {
	a := &Authorizer{
		service: service,
		name:    name,
		path:    path,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = log.WithField("subsystem", "firewall")
	}
	a.logger = a.logger.WithFields(log.Fields{
		"backend": service.Name(),
		"rule":    name,
	})
	return a
}

// Authorize ensures exactly one inbound allow rule for the application
// exists and reports whether it does. Failures are logged and never returned.
func (a *Authorizer) Authorize(ctx context.Context) bool {
	res := a.Run(ctx)
	return res.Succeeded()
}

// Run performs an authorize and returns its full result.
func (a *Authorizer) Run(ctx context.Context) *Result {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	started := time.Now()
	var reached atomic.Int32
	done := make(chan *Result, 1)
	go func() {
		// COM apartments belong to a thread, so every policy call of a run
		// has to happen on the same one.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		done <- a.run(ctx, &reached)
	}()

	var res *Result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = a.newResult()
		res.Stage = StageFailed
		res.Reached = Stage(reached.Load())
		res.Err = errors.WithMessage(ctx.Err(), "firewall authorization did not complete in time")
		a.logger.WithField("reached", res.Reached.String()).WithError(res.Err).Error("firewall authorization abandoned")
	}
	res.Started = started
	res.Duration = time.Since(started)

	for _, o := range a.observers {
		o(res)
	}
	return res
}

func (a *Authorizer) newResult() *Result {
	return &Result{
		Backend:         a.service.Name(),
		Name:            a.name,
		ApplicationPath: a.path,
		Stage:           StageInit,
	}
}

func (a *Authorizer) run(ctx context.Context, reached *atomic.Int32) *Result {
	res := a.newResult()
	mark := func(s Stage) {
		res.Reached = s
		reached.Store(int32(s))
	}
	if err := a.authorize(ctx, res, mark); err != nil {
		res.Err = err
		res.Stage = StageFailed
		return res
	}
	res.Stage = StageDone
	return res
}

// authorize walks the policy calls in order. Each handle is released by a
// defer registered right after it is acquired, so whichever call fails, the
// handles acquired before it are released in reverse order exactly once.
func (a *Authorizer) authorize(ctx context.Context, res *Result, mark func(Stage)) error {
	if a.name == "" {
		return a.fail(errors.New("firewall: rule name cannot be empty"))
	}
	if a.path == "" {
		return a.fail(errors.New("firewall: application path cannot be empty"))
	}

	policy, err := a.service.Open(ctx)
	if err != nil {
		return a.fail(err)
	}
	defer policy.Release()
	mark(StageServiceOpen)

	rules, err := policy.Rules()
	if err != nil {
		return a.fail(err)
	}
	defer rules.Release()
	mark(StageRulesListed)

	if err := ctx.Err(); err != nil {
		return a.fail(errors.WithMessage(err, "firewall: authorization abandoned before removing the previous rule"))
	}
	replaced, err := a.removeExisting(rules)
	if err != nil {
		return a.fail(err)
	}
	res.Replaced = replaced
	mark(StageOldRuleChecked)

	rule, err := policy.NewRule()
	if err != nil {
		return a.fail(err)
	}
	defer rule.Release()

	if err := populate(rule, InboundAllow(a.name, a.path)); err != nil {
		return a.fail(err)
	}
	mark(StageNewRuleBuilt)

	if err := ctx.Err(); err != nil {
		return a.fail(errors.WithMessage(err, "firewall: authorization abandoned before submitting the rule"))
	}
	if err := rules.Add(rule); err != nil {
		return a.fail(err)
	}
	mark(StageSubmitted)

	a.logger.WithField("path", a.path).Info("rule added to firewall")
	return nil
}

// removeExisting deletes a rule previously registered under the same name.
// A failed lookup means there is nothing to delete, so no delete is issued.
func (a *Authorizer) removeExisting(rules Rules) (bool, error) {
	existing, err := rules.Item(a.name)
	if err != nil {
		_, code := StatusOf(err)
		a.logger.WithField("code", FormatCode(code)).Debug("no previous firewall rule found")
		return false, nil
	}
	existing.Release()

	a.logger.Info("rule already present in firewall, removing it")
	if err := rules.Remove(a.name); err != nil {
		return false, err
	}
	return true, nil
}

func populate(rule Rule, def Definition) error {
	if err := rule.SetName(def.Name); err != nil {
		return err
	}
	if err := rule.SetApplicationName(def.ApplicationPath); err != nil {
		return err
	}
	if err := rule.SetAction(def.Action); err != nil {
		return err
	}
	if err := rule.SetEnabled(def.Enabled); err != nil {
		return err
	}
	return rule.SetDirection(def.Direction)
}

// fail logs the failing step with its status code and hands the error back.
func (a *Authorizer) fail(err error) error {
	op, code := StatusOf(err)
	entry := a.logger.WithField("code", FormatCode(code))
	if op != "" {
		entry = entry.WithField("step", op)
	}
	cli.WithError(entry, err).Error("firewall authorization failed")
	return err
}
