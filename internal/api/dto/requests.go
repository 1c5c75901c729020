package dto

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags of a request body.
func Validate(req interface{}) error {
	return validate.Struct(req)
}

// ValidationFields flattens validator errors into field -> failed rule.
// Other errors yield nil.
func ValidationFields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Namespace()] = fe.Tag()
	}
	return fields
}

// EntryInput is one ledger entry in a load request. The amount may be sent
// either as integer minor units or as a decimal string such as "-12.50".
type EntryInput struct {
	ID          string `json:"id" validate:"required"`
	Kind        string `json:"kind" validate:"required"`
	AccountID   string `json:"account_id,omitempty"`
	Currency    string `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	AmountCents *int64 `json:"amount_cents,omitempty" validate:"required_without=Amount"`
	Amount      string `json:"amount,omitempty" validate:"required_without=AmountCents"`
	Description string `json:"description"`
}

// LoadEntriesRequest replaces or inserts a batch of entries.
type LoadEntriesRequest struct {
	Entries []EntryInput `json:"entries" validate:"required,min=1,dive"`
}

// ToEntry validates the input and converts it to a ledger entry.
func (in EntryInput) ToEntry() (ledger.Entry, error) {
	if in.ID == "" {
		return ledger.Entry{}, errors.New("entry id is required")
	}

	kind, err := ledger.ParseKind(in.Kind)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %s: %w", in.ID, err)
	}
	if kind == "" {
		return ledger.Entry{}, fmt.Errorf("entry %s: kind is required", in.ID)
	}

	date, err := time.Parse(dateLayout, in.Date)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %s: date must be YYYY-MM-DD", in.ID)
	}

	var amount int64
	switch {
	case in.AmountCents != nil:
		amount = *in.AmountCents
	case in.Amount != "":
		amount, err = ledger.ParseAmount(in.Amount)
		if err != nil {
			return ledger.Entry{}, fmt.Errorf("entry %s: %w", in.ID, err)
		}
	default:
		return ledger.Entry{}, fmt.Errorf("entry %s: amount is required", in.ID)
	}

	return ledger.Entry{
		ID:          in.ID,
		Kind:        kind,
		AccountID:   in.AccountID,
		Currency:    in.Currency,
		Date:        date,
		Amount:      amount,
		Description: in.Description,
	}, nil
}

// ToEntries converts the whole batch, failing on the first bad entry.
func (r LoadEntriesRequest) ToEntries() ([]ledger.Entry, error) {
	if len(r.Entries) == 0 {
		return nil, errors.New("entries must not be empty")
	}

	entries := make([]ledger.Entry, 0, len(r.Entries))
	for _, in := range r.Entries {
		entry, err := in.ToEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ReconcileRequest starts an auto-reconcile pass. Omitted fields fall back
// to the server's configured defaults.
type ReconcileRequest struct {
	MaxDateDeltaDays     *int     `json:"max_date_delta_days,omitempty"`
	MaxAmountDeltaRatio  *float64 `json:"max_amount_delta_ratio,omitempty"`
	AutoConfirmThreshold *float64 `json:"auto_confirm_threshold,omitempty"`
	Async                bool     `json:"async,omitempty"`
}

// Resolve fills unset fields from the given defaults.
func (r ReconcileRequest) Resolve(window ledger.Window, threshold float64) (ledger.Window, float64) {
	if r.MaxDateDeltaDays != nil {
		window.MaxDateDeltaDays = *r.MaxDateDeltaDays
	}
	if r.MaxAmountDeltaRatio != nil {
		window.MaxAmountDeltaRatio = *r.MaxAmountDeltaRatio
	}
	if r.AutoConfirmThreshold != nil {
		threshold = *r.AutoConfirmThreshold
	}
	return window, threshold
}

// ManualMatchRequest confirms a user-chosen group of entries.
type ManualMatchRequest struct {
	EntryIDs []string `json:"entry_ids" validate:"required,dive,required"`
}
