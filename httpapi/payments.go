package httpapi

import (
	"encoding/base64"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"bonscompte.example/bonscompte/bonserr"
	"bonscompte.example/bonscompte/calendar"
	"bonscompte.example/bonscompte/domain"
	"bonscompte.example/bonscompte/money"
	"bonscompte.example/bonscompte/recurrence"
	"bonscompte.example/bonscompte/store"
)

// recurrenceWire is the JSON shape of a payment's recurrence on the wire;
// nil/omitted means ONE_OFF (spec §6's recurrence type enumeration).
type recurrenceWire struct {
	Type      string  `json:"type"`
	Interval  int     `json:"interval"`
	Weekdays  [][]int `json:"weekdays,omitempty"`
	Monthdays []int   `json:"monthdays,omitempty"`
	Months    []int   `json:"months,omitempty"`
	EndDate   string  `json:"end_date,omitempty"`
	Count     *int    `json:"count,omitempty"`
}

type contributionWire struct {
	ParticipantID string  `json:"participant_id"`
	Weight        float64 `json:"weight"`
}

type paymentWire struct {
	ID                         string             `json:"id,omitempty"`
	Amount                     float64            `json:"amount"`
	Description                string             `json:"description"`
	CategoryID                 string             `json:"category_id,omitempty"`
	Date                       string             `json:"date"`
	PayerID                    string             `json:"payer_id,omitempty"`
	ReceiverAccountID          string             `json:"receiver_account_id,omitempty"`
	IsFinal                    bool               `json:"is_final"`
	AffectsBalance             bool               `json:"affects_balance"`
	AffectsPayerExpectation    bool               `json:"affects_payer_expectation"`
	AffectsReceiverExpectation bool               `json:"affects_receiver_expectation"`
	Recurrence                 *recurrenceWire    `json:"recurrence,omitempty"`
	Contributions              []contributionWire `json:"contributions"`

	// ReceiptImage is the blob base64-encoded, per spec §7's
	// INVALID_BASE64_IMAGE; "" means no receipt attached.
	ReceiptImage string `json:"receipt_image,omitempty"`
}

func (w paymentWire) toDomain() (domain.Payment, *bonserr.Error) {
	date, err := calendar.Parse(w.Date)
	if err != nil {
		return domain.Payment{}, bonserr.New(bonserr.InvalidDateFormat, "date must be YYYY-MM-DD")
	}
	if w.Amount < 0 || math.IsNaN(w.Amount) || math.IsInf(w.Amount, 0) {
		return domain.Payment{}, bonserr.New(bonserr.AmountMustBePositive, "amount must be a finite non-negative decimal")
	}
	amount, corrected := money.FromFloat(w.Amount)
	if corrected {
		slog.Warn("amount snapped to the nearest cent", "amount", w.Amount, "cents", int64(amount))
	}
	p := domain.Payment{
		ID: w.ID, Amount: amount, Description: w.Description, CategoryID: w.CategoryID, Date: date,
		PayerID: w.PayerID, ReceiverAccountID: w.ReceiverAccountID, IsFinal: w.IsFinal,
		AffectsBalance: w.AffectsBalance, AffectsPayerExpectation: w.AffectsPayerExpectation,
		AffectsReceiverExpectation: w.AffectsReceiverExpectation,
	}
	for _, c := range w.Contributions {
		p.Contributions = append(p.Contributions, domain.Contribution{ParticipantID: c.ParticipantID, Weight: c.Weight})
	}
	if w.ReceiptImage != "" {
		raw, err := base64.StdEncoding.DecodeString(w.ReceiptImage)
		if err != nil {
			return domain.Payment{}, bonserr.New(bonserr.InvalidBase64Image, "receipt_image must be valid base64")
		}
		p.ReceiptImage = raw
	}
	if w.Recurrence != nil {
		spec := &recurrence.Spec{
			Type: recurrence.Type(w.Recurrence.Type), Interval: w.Recurrence.Interval,
			Weekdays: w.Recurrence.Weekdays, Monthdays: w.Recurrence.Monthdays, Months: w.Recurrence.Months,
			Count: w.Recurrence.Count,
		}
		if w.Recurrence.EndDate != "" {
			end, err := calendar.Parse(w.Recurrence.EndDate)
			if err != nil {
				return domain.Payment{}, bonserr.New(bonserr.InvalidDateFormat, "recurrence.end_date must be YYYY-MM-DD")
			}
			spec.EndDate = &end
		}
		p.Recurrence = spec
	}
	return p, nil
}

func fromDomainPayment(p domain.Payment) paymentWire {
	wire := paymentWire{
		ID: p.ID, Amount: p.Amount.ToFloat(), Description: p.Description, CategoryID: p.CategoryID, Date: p.Date.String(),
		PayerID: p.PayerID, ReceiverAccountID: p.ReceiverAccountID, IsFinal: p.IsFinal,
		AffectsBalance: p.AffectsBalance, AffectsPayerExpectation: p.AffectsPayerExpectation,
		AffectsReceiverExpectation: p.AffectsReceiverExpectation,
	}
	for _, c := range p.Contributions {
		wire.Contributions = append(wire.Contributions, contributionWire{ParticipantID: c.ParticipantID, Weight: c.Weight})
	}
	if len(p.ReceiptImage) > 0 {
		wire.ReceiptImage = base64.StdEncoding.EncodeToString(p.ReceiptImage)
	}
	if p.Recurrence != nil {
		rw := &recurrenceWire{
			Type: string(p.Recurrence.Type), Interval: p.Recurrence.Interval,
			Weekdays: p.Recurrence.Weekdays, Monthdays: p.Recurrence.Monthdays, Months: p.Recurrence.Months,
			Count: p.Recurrence.Count,
		}
		if p.Recurrence.EndDate != nil {
			rw.EndDate = p.Recurrence.EndDate.String()
		}
		wire.Recurrence = rw
	}
	return wire
}

func handleCreatePayment(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("project_id")
		var wire paymentWire
		if berr := decodeJSON(r, &wire); berr != nil {
			writeError(w, http.StatusBadRequest, berr)
			return
		}
		draft, berr := wire.toDomain()
		if berr != nil {
			writeError(w, http.StatusBadRequest, berr)
			return
		}
		created, berr := st.CreatePayment(projectID, draft, actorFrom(r), uuid.NewString(), time.Now())
		if berr != nil {
			writeError(w, errStatusFor(berr), berr)
			return
		}
		writeJSON(w, http.StatusCreated, fromDomainPayment(created))
	}
}

type updatePaymentRequest struct {
	paymentWire
	SplitFrom string `json:"split_from,omitempty"`
}

func handleUpdatePayment(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("project_id")
		paymentID := r.PathValue("payment_id")
		var req updatePaymentRequest
		if berr := decodeJSON(r, &req); berr != nil {
			writeError(w, http.StatusBadRequest, berr)
			return
		}
		draft, berr := req.paymentWire.toDomain()
		if berr != nil {
			writeError(w, http.StatusBadRequest, berr)
			return
		}
		var splitFrom *calendar.Date
		if req.SplitFrom != "" {
			d, err := calendar.Parse(req.SplitFrom)
			if err != nil {
				writeError(w, http.StatusBadRequest, bonserr.New(bonserr.InvalidDateFormat, "split_from must be YYYY-MM-DD"))
				return
			}
			splitFrom = &d
		}
		updated, created, berr := st.UpdatePayment(projectID, paymentID, draft, splitFrom, actorFrom(r), uuid.NewString(), time.Now())
		if berr != nil {
			writeError(w, errStatusFor(berr), berr)
			return
		}
		resp := map[string]any{"updated": fromDomainPayment(updated)}
		if created != nil {
			resp["created"] = fromDomainPayment(*created)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleDeletePayment(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("project_id")
		paymentID := r.PathValue("payment_id")
		if berr := st.DeletePayment(projectID, paymentID, actorFrom(r), uuid.NewString(), time.Now()); berr != nil {
			writeError(w, errStatusFor(berr), berr)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleGetPayment(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("project_id")
		paymentID := r.PathValue("payment_id")
		payment, berr := st.GetPayment(projectID, paymentID)
		if berr != nil {
			writeError(w, errStatusFor(berr), berr)
			return
		}
		writeJSON(w, http.StatusOK, fromDomainPayment(payment))
	}
}

func handleListPayments(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("project_id")
		payments, berr := st.ListPayments(projectID)
		if berr != nil {
			writeError(w, errStatusFor(berr), berr)
			return
		}
		out := make([]paymentWire, len(payments))
		for i, p := range payments {
			out[i] = fromDomainPayment(p)
		}
		writeJSON(w, http.StatusOK, out)
	}
}
