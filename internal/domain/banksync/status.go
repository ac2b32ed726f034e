package banksync

import "bankconn/internal/domain/connection"

// StatusAction is what the engine does after observing an item status.
type StatusAction int

const (
	// ActionRefresh requests a refresh and then polls.
	ActionRefresh StatusAction = iota
	// ActionPollOnly polls without requesting a refresh; one is already running.
	ActionPollOnly
	// ActionSyncOnly goes straight to the ledger sync.
	ActionSyncOnly
	// ActionUserRequired stops: the user must relink or answer the bank.
	ActionUserRequired
)

func (a StatusAction) String() string {
	switch a {
	case ActionRefresh:
		return "refresh"
	case ActionPollOnly:
		return "poll_only"
	case ActionSyncOnly:
		return "sync_only"
	case ActionUserRequired:
		return "user_required"
	default:
		return "unknown"
	}
}

// Classify maps an observed item status to the engine's next step.
// UPDATED items are synced as-is unless refreshUpdated is set.
func Classify(status connection.ItemStatus, refreshUpdated bool) StatusAction {
	switch status.Normalize() {
	case connection.StatusUpdating:
		return ActionPollOnly
	case connection.StatusWaitingUserInput, connection.StatusLoginError:
		return ActionUserRequired
	case connection.StatusUpdated:
		if refreshUpdated {
			return ActionRefresh
		}
		return ActionSyncOnly
	default:
		return ActionRefresh
	}
}

// isTerminal reports whether polling can stop at this status.
func isTerminal(status connection.ItemStatus) bool {
	return status.Normalize() == connection.StatusUpdated || status.RequiresUserAction()
}
