// Package actionlog records who did what to a compute instance, from where, and
// with what result.
//
// The package is invoked explicitly by the request dispatcher once the
// underlying compute operation has produced its response. It derives an actor
// identity from optional authentication signals, projects an action-specific
// detail string out of the request body, and appends one immutable
// InstanceActionLog to a Store. It never alters the response delivered to the
// original caller.
package actionlog

import "fmt"

// NotFound is written in place of any optional value that was not supplied.
const NotFound = "NOT-FOUND"

// Action identifies which mutating instance operation a record describes. The
// string value is stored verbatim in the action_kind column.
type Action string

const (
	ActionCreate               Action = "create"
	ActionDelete               Action = "delete"
	ActionRootPassword         Action = "root-password"
	ActionResize               Action = "resize"
	ActionRebuild              Action = "rebuild"
	ActionVolumeSnapshotCreate Action = "volume-snapshot-create"
	ActionReboot               Action = "reboot"
	ActionConfirmResize        Action = "confirm-resize"
	ActionRevertResize         Action = "revert-resize"
)

var vocabulary = []Action{
	ActionCreate,
	ActionDelete,
	ActionRootPassword,
	ActionResize,
	ActionRebuild,
	ActionVolumeSnapshotCreate,
	ActionReboot,
	ActionConfirmResize,
	ActionRevertResize,
}

// Actions returns the fixed action vocabulary in its canonical order.
func Actions() []Action {
	out := make([]Action, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// ParseAction converts a stored action_kind value back into an Action.
func ParseAction(s string) (Action, error) {
	for _, a := range vocabulary {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

func (a Action) String() string { return string(a) }
