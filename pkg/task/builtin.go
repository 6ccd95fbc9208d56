package task

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/docflow/pkg/domain"
)

// Built-in task names.
const (
	NameRequest         = "request"
	NameAcceptRequest   = "acceptRequest"
	NameRejectRequest   = "rejectRequest"
	NameCancelRequest   = "cancelRequest"
	NameObtainEditable  = "obtainEditable"
	NameCommitEditable  = "commitEditable"
	NameDisposeEditable = "disposeEditable"
	NameIsModified      = "isModified"
	NameCopyVariant     = "copyVariant"
	NamePublish         = "publish"
	NameDepublish       = "depublish"
	NameDelete          = "delete"
	NameSetHolder       = "setHolder"
	NameValue           = "value"
)

func registerBuiltins(r *Registry) {
	r.Register(NameRequest, newRequestTask)
	r.Register(NameAcceptRequest, newAcceptRequestTask)
	r.Register(NameRejectRequest, newRejectRequestTask)
	r.Register(NameCancelRequest, newCancelRequestTask)
	r.RegisterFunc(NameObtainEditable, obtainEditable)
	r.RegisterFunc(NameCommitEditable, commitEditable)
	r.RegisterFunc(NameDisposeEditable, disposeEditable)
	r.RegisterFunc(NameIsModified, isModified)
	r.Register(NameCopyVariant, newCopyVariantTask)
	r.RegisterFunc(NamePublish, publish)
	r.RegisterFunc(NameDepublish, depublish)
	r.RegisterFunc(NameDelete, deleteDocument)
	r.Register(NameSetHolder, newSetHolderTask)
	r.Register(NameValue, newValueTask)
}

type requestProps struct {
	Type          string
	ScheduledDate *time.Time
	Target        string
}

// newRequestTask records a new request. It returns the request id.
// On failure nothing is recorded.
func newRequestTask(props map[string]any) (Task, error) {
	var p requestProps
	if err := Decode(props, &p); err != nil {
		return nil, err
	}
	typ, ok := domain.ParseRequestType(p.Type)
	if !ok {
		return nil, fmt.Errorf("request: unknown type %q", p.Type)
	}
	return Func(func(_ context.Context, tc *Context) (any, error) {
		req, err := tc.Requests.Create(typ, tc.Identity, p.ScheduledDate)
		if err != nil {
			return nil, Fail(NameRequest, "cannot create request", false, err)
		}
		if p.Target != "" {
			req.Target = domain.VariantState(p.Target)
		}
		return req.ID, nil
	}), nil
}

type requestRefProps struct {
	ID     string
	Reason string
}

// newAcceptRequestTask resolves the given or active request and returns its type.
func newAcceptRequestTask(props map[string]any) (Task, error) {
	var p requestRefProps
	if err := Decode(props, &p); err != nil {
		return nil, err
	}
	return Func(func(_ context.Context, tc *Context) (any, error) {
		req, err := tc.Requests.Resolve(p.ID, tc.Identity)
		if err != nil {
			return nil, Fail(NameAcceptRequest, "cannot accept request", false, err)
		}
		return string(req.Type), nil
	}), nil
}

// newRejectRequestTask turns the given or active request into a zombie
// carrying the reason.
func newRejectRequestTask(props map[string]any) (Task, error) {
	var p requestRefProps
	if err := Decode(props, &p); err != nil {
		return nil, err
	}
	return Func(func(_ context.Context, tc *Context) (any, error) {
		req, err := tc.Requests.Reject(p.ID, p.Reason)
		if err != nil {
			return nil, Fail(NameRejectRequest, "cannot reject request", false, err)
		}
		return req.ID, nil
	}), nil
}

// newCancelRequestTask lets the requester withdraw the given or active request.
func newCancelRequestTask(props map[string]any) (Task, error) {
	var p requestRefProps
	if err := Decode(props, &p); err != nil {
		return nil, err
	}
	return Func(func(_ context.Context, tc *Context) (any, error) {
		req, err := tc.Requests.Cancel(p.ID, tc.Identity)
		if err != nil {
			return nil, Fail(NameCancelRequest, "cannot cancel request", false, err)
		}
		return req.ID, nil
	}), nil
}

type copyProps struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

func newCopyVariantTask(props map[string]any) (Task, error) {
	var p copyProps
	if err := Decode(props, &p); err != nil {
		return nil, err
	}
	from, to := domain.VariantState(p.From), domain.VariantState(p.To)
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("copyVariant: invalid variants %q -> %q", p.From, p.To)
	}
	return Func(func(_ context.Context, tc *Context) (any, error) {
		src := tc.Handle.Variant(from)
		if src == nil {
			return nil, Fail(NameCopyVariant, fmt.Sprintf("no %s variant", from), false, nil)
		}
		dst := src.Clone()
		dst.State = to
		dst.Holder = ""
		dst.LastModified = tc.Now
		dst.LastModifiedBy = tc.Identity
		tc.Handle.SetVariant(dst)
		return nil, nil
	}), nil
}

type holderProps struct {
	Holder string
}

// newSetHolderTask sets or clears the draft holder, for administrative unlocks.
func newSetHolderTask(props map[string]any) (Task, error) {
	var p holderProps
	if err := Decode(props, &p); err != nil {
		return nil, err
	}
	return Func(func(_ context.Context, tc *Context) (any, error) {
		draft := tc.Handle.Variant(domain.VariantDraft)
		if draft == nil {
			return nil, Fail(NameSetHolder, "no draft variant", false, nil)
		}
		draft.Holder = p.Holder
		return p.Holder, nil
	}), nil
}

// newValueTask returns its "value" property unchanged.
func newValueTask(props map[string]any) (Task, error) {
	v := props["value"]
	return Func(func(context.Context, *Context) (any, error) {
		return v, nil
	}), nil
}
