// Package memfw is an in-memory firewall policy store. It backs dry runs of
// the CLI and is the policy store used throughout the tests: every call is
// recorded, any call can be made to fail with a chosen status code, and
// handles that are never released are reported.
package memfw

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"emperror.dev/errors"

	"github.com/priyxstudio/fwauth/firewall"
)

// Store is an in-memory policy. The zero value is not usable, use New.
type Store struct {
	mu sync.Mutex

	rules  []firewall.Definition
	faults map[string]uint32
	calls  []string

	next     int
	live     map[int]string
	released int
	double   int
}

var _ firewall.Service = (*Store)(nil)

// New returns a store preloaded with rules.
func New(rules ...firewall.Definition) *Store {
	return &Store{
		rules:  append([]firewall.Definition(nil), rules...),
		faults: make(map[string]uint32),
		live:   make(map[int]string),
	}
}

func (s *Store) Name() string {
	return "memory"
}

// FailOn makes every future call of op fail with code. Use the firewall.Op*
// constants for op.
func (s *Store) FailOn(op string, code uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = code
}

// Heal removes all injected failures.
func (s *Store) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[string]uint32)
}

// Snapshot returns a copy of the rules currently in the policy.
func (s *Store) Snapshot() []firewall.Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]firewall.Definition(nil), s.rules...)
}

// Calls returns every operation invoked so far, in order.
func (s *Store) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// ResetCalls clears the recorded operations.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Leaked returns the kinds of handles acquired but not yet released.
func (s *Store) Leaked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.live))
	for id, kind := range s.live {
		out = append(out, fmt.Sprintf("%s#%d", kind, id))
	}
	sort.Strings(out)
	return out
}

// DoubleReleased returns the number of Release calls made on handles that
// were already released.
func (s *Store) DoubleReleased() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.double
}

// Released returns the number of handles released exactly once.
func (s *Store) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// call records op and returns the injected code for it, if any. The caller
// must hold s.mu.
func (s *Store) call(op string) (uint32, bool) {
	s.calls = append(s.calls, op)
	code, ok := s.faults[op]
	return code, ok
}

func (s *Store) acquire(kind string) handle {
	s.next++
	s.live[s.next] = kind
	return handle{store: s, id: s.next}
}

func (s *Store) Open(ctx context.Context) (firewall.Policy, error) {
	if err := ctx.Err(); err != nil {
		return nil, firewall.Unavailable(firewall.OpOpen, firewall.CodeFail, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, ok := s.call(firewall.OpOpen); ok {
		return nil, firewall.Unavailable(firewall.OpOpen, code, nil)
	}
	return &policy{handle: s.acquire("policy")}, nil
}

type handle struct {
	store *Store
	id    int
}

func (h handle) Release() {
	s := h.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[h.id]; !ok {
		s.double++
		return
	}
	delete(s.live, h.id)
	s.released++
}

type policy struct {
	handle
}

func (p *policy) Rules() (firewall.Rules, error) {
	s := p.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, ok := s.call(firewall.OpRules); ok {
		return nil, firewall.Unavailable(firewall.OpRules, code, nil)
	}
	return &rules{handle: s.acquire("rules")}, nil
}

func (p *policy) NewRule() (firewall.Rule, error) {
	s := p.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, ok := s.call(firewall.OpNewRule); ok {
		return nil, firewall.Unavailable(firewall.OpNewRule, code, nil)
	}
	return &rule{handle: s.acquire("rule")}, nil
}

type rules struct {
	handle
}

func (r *rules) Item(name string) (firewall.Rule, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, ok := s.call(firewall.OpItem); ok {
		return nil, firewall.NotFound(firewall.OpItem, code)
	}
	for _, def := range s.rules {
		if def.Name == name {
			return &rule{handle: s.acquire("rule"), def: def}, nil
		}
	}
	return nil, firewall.NotFound(firewall.OpItem, firewall.CodeFileNotFound)
}

// Remove deletes every rule with the name, the way Windows Firewall does
// when duplicate names exist.
func (r *rules) Remove(name string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, ok := s.call(firewall.OpRemove); ok {
		return firewall.Rejected(firewall.OpRemove, code, nil)
	}
	kept := s.rules[:0]
	for _, def := range s.rules {
		if def.Name != name {
			kept = append(kept, def)
		}
	}
	s.rules = kept
	return nil
}

func (r *rules) Add(fr firewall.Rule) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, ok := s.call(firewall.OpAdd); ok {
		return firewall.Rejected(firewall.OpAdd, code, nil)
	}
	mr, ok := fr.(*rule)
	if !ok || mr.store != s {
		return firewall.Rejected(firewall.OpAdd, firewall.CodeInvalidArg, errors.New("rule was not created by this store"))
	}
	if mr.def.Name == "" {
		return firewall.Rejected(firewall.OpAdd, firewall.CodeInvalidArg, errors.New("rule has no name"))
	}
	s.rules = append(s.rules, mr.def)
	return nil
}

type rule struct {
	handle
	def firewall.Definition
}

func (r *rule) set(op string, fn func()) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, ok := s.call(op); ok {
		return firewall.Rejected(op, code, nil)
	}
	fn()
	return nil
}

func (r *rule) SetName(name string) error {
	return r.set(firewall.OpSetName, func() { r.def.Name = name })
}

func (r *rule) SetApplicationName(path string) error {
	return r.set(firewall.OpSetApplicationName, func() { r.def.ApplicationPath = path })
}

func (r *rule) SetAction(action firewall.Action) error {
	return r.set(firewall.OpSetAction, func() { r.def.Action = action })
}

func (r *rule) SetEnabled(enabled bool) error {
	return r.set(firewall.OpSetEnabled, func() { r.def.Enabled = enabled })
}

func (r *rule) SetDirection(direction firewall.Direction) error {
	return r.set(firewall.OpSetDirection, func() { r.def.Direction = direction })
}
