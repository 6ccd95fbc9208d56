package domain

// Hint keys that are not event names.
const (
	HintState    = "state"
	HintInUseBy  = "inUseBy"
	HintRequests = "requests"
)

// IsHintKey reports whether name is one of the hint keys above. Such names
// cannot be used as events.
func IsHintKey(name string) bool {
	switch name {
	case HintState, HintInUseBy, HintRequests:
		return true
	}
	return false
}

// SystemIdentity is the identity used by the scheduler when it drives due requests.
const SystemIdentity = "system"

// VarDeleted is set on a handle whose variants were removed by the delete task.
const VarDeleted = "deleted"
