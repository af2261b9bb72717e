package models

import "time"

// ChargeReason is the business reason recorded on a ledger entry
type ChargeReason string

// Debit reasons
const (
	ReasonResumeGeneration ChargeReason = "resume_generation"
	ReasonResumeImprove    ChargeReason = "resume_improve"
	ReasonCoverLetter      ChargeReason = "cover_letter"
	ReasonJobTailoring     ChargeReason = "job_tailoring"
	ReasonTranslation      ChargeReason = "translation"
)

// Credit reasons
const (
	ReasonSignupGrant ChargeReason = "signup_grant"
	ReasonAdminGrant  ChargeReason = "admin_grant"
	ReasonRefund      ChargeReason = "refund"
)

// IsDebit reports whether r is a reason a metered operation can be charged for
func (r ChargeReason) IsDebit() bool {
	switch r {
	case ReasonResumeGeneration, ReasonResumeImprove, ReasonCoverLetter,
		ReasonJobTailoring, ReasonTranslation:
		return true
	}
	return false
}

// IsCredit reports whether r is a reason credits can be granted for
func (r ChargeReason) IsCredit() bool {
	switch r {
	case ReasonSignupGrant, ReasonAdminGrant, ReasonRefund:
		return true
	}
	return false
}

// Valid reports whether r is a known reason
func (r ChargeReason) Valid() bool { return r.IsDebit() || r.IsCredit() }

// CreditTransaction is an immutable ledger entry
type CreditTransaction struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Delta     int64        `json:"delta"`
	Reason    ChargeReason `json:"reason"`
	RelatedID string       `json:"relatedId,omitempty"`
	CreatedAt time.Time    `json:"timestamp"`
}
