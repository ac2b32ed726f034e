package banksync

import (
	"bankconn/internal/domain/connection"
	"bankconn/internal/domain/openfinance"
)

// OutcomeKind summarizes a sync run.
type OutcomeKind string

const (
	// OutcomeSuccess means every ledger step ran without error.
	OutcomeSuccess OutcomeKind = "SUCCESS"
	// OutcomeActionRequired means the user must act at the aggregator first.
	OutcomeActionRequired OutcomeKind = "ACTION_REQUIRED"
	// OutcomePartialFailure means some steps failed but something was synced.
	OutcomePartialFailure OutcomeKind = "PARTIAL_FAILURE"
	// OutcomeFailure means no ledger step succeeded.
	OutcomeFailure OutcomeKind = "FAILURE"
)

// Outcome is the merged result of every step of a sync run.
type Outcome struct {
	Kind         OutcomeKind                        `json:"kind"`
	ItemID       string                             `json:"itemId"`
	ItemStatus   connection.ItemStatus              `json:"itemStatus,omitempty"`
	Code         string                             `json:"code,omitempty"`
	Reason       string                             `json:"reason,omitempty"`
	Refreshed    bool                               `json:"refreshed"`
	PollAttempts int                                `json:"pollAttempts"`
	Transactions *openfinance.TransactionSyncResult `json:"transactions,omitempty"`
	Accounts     *openfinance.AccountSyncResult     `json:"accounts,omitempty"`
	Warnings     []string                           `json:"warnings,omitempty"`
	Errors       []string                           `json:"errors,omitempty"`

	ledgerOK int
}

// Success reports whether the run completed cleanly.
func (o *Outcome) Success() bool {
	return o.Kind == OutcomeSuccess
}

func (o *Outcome) addError(msg string) {
	o.Errors = append(o.Errors, msg)
}

func (o *Outcome) addWarning(msg string) {
	o.Warnings = append(o.Warnings, msg)
}

func (o *Outcome) requireAction(status connection.ItemStatus, code, reason string) {
	o.Kind = OutcomeActionRequired
	if status != "" {
		o.ItemStatus = status
	}
	if code == "" {
		code = openfinance.CodeForStatus(o.ItemStatus)
	}
	if code == "" {
		code = openfinance.CodeLoginRequired
	}
	o.Code = code
	o.Reason = reason
}

// finish derives the kind from the collected errors unless an earlier step
// already escalated.
func (o *Outcome) finish() {
	if o.Kind == OutcomeActionRequired {
		return
	}
	switch {
	case len(o.Errors) == 0:
		o.Kind = OutcomeSuccess
	case o.ledgerOK > 0:
		o.Kind = OutcomePartialFailure
	default:
		o.Kind = OutcomeFailure
	}
}
