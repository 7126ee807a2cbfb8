//go:build windows

package netfw

import (
	"context"

	"emperror.dev/errors"
	"github.com/apex/log"
	ole "github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"

	"github.com/priyxstudio/fwauth/firewall"
)

const (
	progPolicy = "HNetCfg.FwPolicy2"
	progRule   = "HNetCfg.FWRule"

	// CoInitializeEx results that are not failures.
	sFalse          = 0x00000001
	rpcEChangedMode = 0x80010106
)

// Open initializes COM on the calling thread and connects to the firewall
// policy. The caller must keep the goroutine locked to its OS thread until
// the policy is released.
func (s *Service) Open(ctx context.Context) (firewall.Policy, error) {
	if err := ctx.Err(); err != nil {
		return nil, firewall.Unavailable(firewall.OpOpen, firewall.CodeFail, err)
	}

	uninit, err := initialize()
	if err != nil {
		return nil, err
	}

	unknown, err := oleutil.CreateObject(progPolicy)
	if err != nil {
		if uninit {
			ole.CoUninitialize()
		}
		return nil, firewall.Unavailable(firewall.OpOpen, statusCode(err), errors.WithMessage(err, "create "+progPolicy))
	}
	defer unknown.Release()

	disp, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		if uninit {
			ole.CoUninitialize()
		}
		return nil, firewall.Unavailable(firewall.OpOpen, statusCode(err), errors.WithMessage(err, "query "+progPolicy))
	}
	return &policy{disp: disp, uninit: uninit}, nil
}

// initialize enters a single-threaded apartment. It reports whether the
// call has to be balanced with CoUninitialize: an apartment that was already
// initialized with another concurrency model is reused as is.
func initialize() (bool, error) {
	err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED)
	if err == nil {
		return true, nil
	}
	switch code := statusCode(err); code {
	case sFalse:
		return true, nil
	case rpcEChangedMode:
		log.WithField("code", firewall.FormatCode(code)).Debug("COM already initialized in another mode, reusing it")
		return false, nil
	default:
		return false, firewall.Unavailable(firewall.OpOpen, code, errors.WithMessage(err, "CoInitializeEx"))
	}
}

func statusCode(err error) uint32 {
	var oleErr *ole.OleError
	if errors.As(err, &oleErr) {
		return uint32(oleErr.Code())
	}
	return firewall.CodeFail
}

// dispatch returns the object held by v. Results that are not objects, such
// as VT_EMPTY, are cleared and reported as missing.
func dispatch(v *ole.VARIANT) (*ole.IDispatch, bool) {
	if v == nil {
		return nil, false
	}
	disp := v.ToIDispatch()
	if disp == nil {
		_ = v.Clear()
		return nil, false
	}
	return disp, true
}

type policy struct {
	disp   *ole.IDispatch
	uninit bool
}

func (p *policy) Rules() (firewall.Rules, error) {
	v, err := oleutil.GetProperty(p.disp, "Rules")
	if err != nil {
		return nil, firewall.Unavailable(firewall.OpRules, statusCode(err), err)
	}
	disp, ok := dispatch(v)
	if !ok {
		return nil, firewall.Unavailable(firewall.OpRules, firewall.CodeNoInterface, errors.New("Rules did not return an object"))
	}
	return &rules{disp: disp}, nil
}

func (p *policy) NewRule() (firewall.Rule, error) {
	unknown, err := oleutil.CreateObject(progRule)
	if err != nil {
		return nil, firewall.Unavailable(firewall.OpNewRule, statusCode(err), errors.WithMessage(err, "create "+progRule))
	}
	defer unknown.Release()

	disp, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return nil, firewall.Unavailable(firewall.OpNewRule, statusCode(err), errors.WithMessage(err, "query "+progRule))
	}
	return &rule{disp: disp}, nil
}

func (p *policy) Release() {
	p.disp.Release()
	if p.uninit {
		ole.CoUninitialize()
	}
}

type rules struct {
	disp *ole.IDispatch
}

// Item fails for a missing rule as well as for any other problem with the
// lookup. Both are reported as not found.
func (r *rules) Item(name string) (firewall.Rule, error) {
	v, err := oleutil.CallMethod(r.disp, "Item", name)
	if err != nil {
		return nil, firewall.NotFound(firewall.OpItem, statusCode(err))
	}
	disp, ok := dispatch(v)
	if !ok {
		return nil, firewall.NotFound(firewall.OpItem, firewall.CodeNoInterface)
	}
	return &rule{disp: disp}, nil
}

func (r *rules) Remove(name string) error {
	v, err := oleutil.CallMethod(r.disp, "Remove", name)
	if err != nil {
		return firewall.Rejected(firewall.OpRemove, statusCode(err), err)
	}
	_ = v.Clear()
	return nil
}

func (r *rules) Add(fr firewall.Rule) error {
	nr, ok := fr.(*rule)
	if !ok {
		return firewall.Rejected(firewall.OpAdd, firewall.CodeInvalidArg, errors.New("rule was not created by the windows firewall backend"))
	}
	v, err := oleutil.CallMethod(r.disp, "Add", nr.disp)
	if err != nil {
		return firewall.Rejected(firewall.OpAdd, statusCode(err), err)
	}
	_ = v.Clear()
	return nil
}

func (r *rules) Release() {
	r.disp.Release()
}

type rule struct {
	disp *ole.IDispatch
}

func (r *rule) put(op, property string, value interface{}) error {
	v, err := oleutil.PutProperty(r.disp, property, value)
	if err != nil {
		return firewall.Rejected(op, statusCode(err), err)
	}
	_ = v.Clear()
	return nil
}

func (r *rule) SetName(name string) error {
	return r.put(firewall.OpSetName, "Name", name)
}

func (r *rule) SetApplicationName(path string) error {
	return r.put(firewall.OpSetApplicationName, "ApplicationName", path)
}

func (r *rule) SetAction(action firewall.Action) error {
	return r.put(firewall.OpSetAction, "Action", int32(action))
}

func (r *rule) SetEnabled(enabled bool) error {
	return r.put(firewall.OpSetEnabled, "Enabled", enabled)
}

func (r *rule) SetDirection(direction firewall.Direction) error {
	return r.put(firewall.OpSetDirection, "Direction", int32(direction))
}

func (r *rule) Release() {
	r.disp.Release()
}
