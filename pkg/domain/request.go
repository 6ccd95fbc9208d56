package domain

import "time"

// RequestType enumerates the persisted request kinds.
type RequestType string

const (
	RequestPublish            RequestType = "publish"
	RequestDepublish          RequestType = "depublish"
	RequestScheduledPublish   RequestType = "scheduledpublish"
	RequestScheduledDepublish RequestType = "scheduleddepublish"
	RequestDelete             RequestType = "delete"
	// RequestRejected is the type a request carries once rejected (a zombie).
	RequestRejected   RequestType = "rejected"
	RequestCollection RequestType = "collection"
)

// ParseRequestType validates a raw type string.
func ParseRequestType(s string) (RequestType, bool) {
	t := RequestType(s)
	switch t {
	case RequestPublish, RequestDepublish, RequestScheduledPublish,
		RequestScheduledDepublish, RequestDelete, RequestRejected, RequestCollection:
		return t, true
	}
	return "", false
}

// IsScheduled reports whether requests of this type carry a scheduled date.
func (t RequestType) IsScheduled() bool {
	return t == RequestScheduledPublish || t == RequestScheduledDepublish
}

// RequestStatus tracks where a request is in its lifecycle.
type RequestStatus string

const (
	RequestActive   RequestStatus = "active"
	RequestZombie   RequestStatus = "rejected"
	RequestResolved RequestStatus = "resolved"
)

// Request is an in-flight intention to change a document's lifecycle.
type Request struct {
	ID            string        `json:"id"`
	Type          RequestType   `json:"type"`
	Status        RequestStatus `json:"status"`
	Requester     string        `json:"requester"`
	RequestDate   time.Time     `json:"request_date"`
	ScheduledDate *time.Time    `json:"scheduled_date,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Target        VariantState  `json:"target,omitempty"`

	// PreviousType keeps the original type after a rejection rewrote Type.
	PreviousType RequestType `json:"previous_type,omitempty"`

	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
}

// IsActive reports whether the request is neither rejected nor resolved.
func (r *Request) IsActive() bool {
	return r != nil && r.Status == RequestActive
}

// IsZombie reports whether the request was rejected and kept for audit.
func (r *Request) IsZombie() bool {
	return r != nil && r.Status == RequestZombie
}

// IsDue reports whether a scheduled request should fire at now.
func (r *Request) IsDue(now time.Time) bool {
	return r.IsActive() && r.ScheduledDate != nil && !r.ScheduledDate.After(now)
}

// Clone returns a copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	next := *r
	if r.ScheduledDate != nil {
		at := *r.ScheduledDate
		next.ScheduledDate = &at
	}
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		next.ResolvedAt = &at
	}
	return &next
}
