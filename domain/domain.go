// Package domain holds BonsCompte's persisted entities — Project,
// Participant, Payment, Contribution — and the invariants from spec §3.
// It replaces the teacher's types package, which modeled a fixed
// two-partner household (types.go's PartnerRegistrationRequest,
// TransferStatusResponse) with the general N-participant/pool model
// spec §9's design notes call for: "Pool semantics require a sum type
// for participant kind... implement as tagged variants".
package domain

import (
	"time"

	"bonscompte.example/bonscompte/bonserr"
	"bonscompte.example/bonscompte/calendar"
	"bonscompte.example/bonscompte/ledger"
	"bonscompte.example/bonscompte/money"
	"bonscompte.example/bonscompte/recurrence"
)

// AccountKind tags a Participant as an individual or a shared pool.
type AccountKind string

const (
	Person AccountKind = "PERSON"
	Pool   AccountKind = "POOL"
)

func (k AccountKind) ledgerKind() ledger.Kind {
	if k == Pool {
		return ledger.Pool
	}
	return ledger.Person
}

// WarningHorizon is one of the pool warning-horizon enumeration members
// from spec §6.
type WarningHorizon string

const (
	EndOfCurrentMonth WarningHorizon = "end_of_current_month"
	EndOfNextMonth    WarningHorizon = "end_of_next_month"
	ThreeMonths       WarningHorizon = "3_months"
	SixMonths         WarningHorizon = "6_months"
)

// ValidWarningHorizon reports whether s names a recognized horizon.
func ValidWarningHorizon(s WarningHorizon) bool {
	switch s {
	case EndOfCurrentMonth, EndOfNextMonth, ThreeMonths, SixMonths:
		return true
	}
	return false
}

// EndOfWindow resolves a warning horizon to a concrete calendar end date
// relative to today (spec §6: "calendar offsets from 'today'").
func (h WarningHorizon) EndOfWindow(today calendar.Date) calendar.Date {
	switch h {
	case EndOfCurrentMonth:
		return calendar.New(today.Year, today.Month, calendar.DaysInMonth(today.Year, today.Month))
	case EndOfNextMonth:
		next := calendar.AddMonths(today, 1)
		return calendar.New(next.Year, next.Month, calendar.DaysInMonth(next.Year, next.Month))
	case ThreeMonths:
		return calendar.AddMonths(today, 3)
	case SixMonths:
		return calendar.AddMonths(today, 6)
	default:
		return today
	}
}

// Project is the top-level grouping of participants and payments; spec
// §3's implicit scoping entity ("project_id" appears throughout §6).
type Project struct {
	ID   string
	Name string
}

// Participant is a PERSON or POOL within a Project (spec §3).
type Participant struct {
	ID            string
	ProjectID     string
	Name          string
	DefaultWeight float64
	Kind          AccountKind

	// LinkedUserID associates a PERSON participant with a login identity;
	// always empty for a POOL (spec §9: "LinkedUserCannotBePool").
	LinkedUserID string

	WarningHorizonAccount WarningHorizon // "" = unset
	WarningHorizonUsers   WarningHorizon // "" = unset
}

// Validate enforces the referential shape of spec §9's pool-warning and
// linked-identity rules.
func (p Participant) Validate() *bonserr.Error {
	if p.Kind == Pool && p.LinkedUserID != "" {
		return bonserr.New(bonserr.LinkedUserCannotBePool, "a pool participant cannot be linked to a login identity")
	}
	if p.WarningHorizonAccount != "" {
		if p.Kind != Pool {
			return bonserr.New(bonserr.PoolWarningOnlyForPools, "warning_horizon_account is only valid for a POOL participant")
		}
		if !ValidWarningHorizon(p.WarningHorizonAccount) {
			return bonserr.New(bonserr.InvalidWarningHorizon, string(p.WarningHorizonAccount))
		}
	}
	if p.WarningHorizonUsers != "" {
		if p.Kind != Pool {
			return bonserr.New(bonserr.PoolWarningOnlyForPools, "warning_horizon_users is only valid for a POOL participant")
		}
		if !ValidWarningHorizon(p.WarningHorizonUsers) {
			return bonserr.New(bonserr.InvalidWarningHorizon, string(p.WarningHorizonUsers))
		}
	}
	return nil
}

// Contribution is a (participant, weight) pair attached to a Payment
// (spec §3). The per-occurrence amount is always derived by allocator.Allocate,
// never persisted as authoritative (spec §9's open question on
// Contribution.amount).
type Contribution struct {
	ParticipantID string
	Weight        float64
}

// Payment is the canonical ledger entry (spec §3).
type Payment struct {
	ID          string
	ProjectID   string
	Amount      money.Cents
	Description string
	Date        calendar.Date

	// CategoryID is an optional, uninterpreted tag; the core engine never
	// reads it (spec §1's core boundary stays intact).
	CategoryID   string
	ReceiptImage []byte

	// PayerID/ReceiverAccountID are "" to represent ∅ (spec invariant P1).
	PayerID           string
	ReceiverAccountID string

	IsFinal bool

	AffectsBalance             bool
	AffectsPayerExpectation    bool
	AffectsReceiverExpectation bool

	// Recurrence is nil for a ONE_OFF payment.
	Recurrence *recurrence.Spec

	Contributions []Contribution

	CreatedAt time.Time
}

// Validate enforces invariants P1 and P2 from spec §3, plus the amount,
// contribution, dual-ledger flag and receipt-image checks below.
func (p Payment) Validate() *bonserr.Error {
	if p.PayerID == "" && p.ReceiverAccountID == "" {
		return bonserr.New(bonserr.InvalidPayer, "a payment must have a payer, a receiver, or both (never neither)")
	}
	if p.Amount < 0 {
		return bonserr.New(bonserr.AmountMustBePositive, "amount must be non-negative")
	}
	if len(p.Contributions) == 0 {
		return bonserr.New(bonserr.ContributionRequired, "a payment must carry at least one contribution")
	}
	if p.Amount > 0 {
		var totalWeight float64
		for _, c := range p.Contributions {
			totalWeight += c.Weight
		}
		if totalWeight <= 0 {
			return bonserr.New(bonserr.TotalWeightMustBePositive, "sum of contribution weights must be positive when amount > 0")
		}
	}
	if !p.AffectsBalance && !p.AffectsPayerExpectation && !p.AffectsReceiverExpectation {
		return bonserr.New(bonserr.InvalidInput, "a payment with all three dual-ledger flags false has no effect and is rejected")
	}
	if p.AffectsPayerExpectation && p.PayerID == "" {
		return bonserr.New(bonserr.InvalidInput, "affects_payer_expectation requires a non-empty payer")
	}
	if p.ReceiptImage != nil {
		if err := ValidateReceiptImage(p.ReceiptImage); err != nil {
			return err
		}
	}
	return nil
}

// maxReceiptImageBytes bounds the stored receipt blob; spec §7's
// IMAGE_TOO_LARGE exists for exactly this check.
const maxReceiptImageBytes = 8 * 1024 * 1024

// ValidateReceiptImage enforces spec §7's receipt-image error family: the
// blob must be non-empty, under the size cap, and a recognizable JPEG or
// PNG (sniffed by magic bytes). httpapi only base64-decodes the blob; this
// check runs when Payment.Validate sees a non-nil ReceiptImage.
func ValidateReceiptImage(data []byte) *bonserr.Error {
	if len(data) == 0 {
		return bonserr.New(bonserr.ImageEmpty, "receipt image must not be empty")
	}
	if len(data) > maxReceiptImageBytes {
		return bonserr.New(bonserr.ImageTooLarge, "receipt image exceeds the maximum allowed size")
	}
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF: // JPEG SOI marker
	case len(data) >= 8 && string(data[1:4]) == "PNG": // PNG signature
	default:
		return bonserr.New(bonserr.InvalidImageFormat, "receipt image must be a JPEG or PNG")
	}
	return nil
}

// IsRule reports whether p is a spec §3 P4 "rule": it never moves money,
// only sets an expectation.
func (p Payment) IsRule() bool {
	return !p.AffectsBalance && !p.AffectsPayerExpectation && p.AffectsReceiverExpectation
}

// ParticipantKinds builds the kind lookup ledger.Fold and horizon.Project
// need from a participant list.
func ParticipantKinds(participants []Participant) map[string]ledger.Kind {
	kinds := make(map[string]ledger.Kind, len(participants))
	for _, part := range participants {
		kinds[part.ID] = part.Kind.ledgerKind()
	}
	return kinds
}
