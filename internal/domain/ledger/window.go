package ledger

// Window bounds the candidates considered for an entry.
type Window struct {
	MaxDateDeltaDays    int     `json:"max_date_delta_days" yaml:"max_date_delta_days"`
	MaxAmountDeltaRatio float64 `json:"max_amount_delta_ratio" yaml:"max_amount_delta_ratio"`
}

// Defaults used when the caller does not configure a window
const (
	DefaultMaxDateDeltaDays     = 5
	DefaultMaxAmountDeltaRatio  = 0.01
	DefaultAutoConfirmThreshold = 0.85
)

// DefaultWindow returns the 5 day / 1% window
func DefaultWindow() Window {
	return Window{
		MaxDateDeltaDays:    DefaultMaxDateDeltaDays,
		MaxAmountDeltaRatio: DefaultMaxAmountDeltaRatio,
	}
}

// Validate rejects non-positive tolerances.
func (w Window) Validate() error {
	if w.MaxDateDeltaDays <= 0 {
		return &InvalidWindowError{Field: "max_date_delta_days", Value: float64(w.MaxDateDeltaDays)}
	}
	if w.MaxAmountDeltaRatio <= 0 {
		return &InvalidWindowError{Field: "max_amount_delta_ratio", Value: w.MaxAmountDeltaRatio}
	}
	return nil
}

// ValidateThreshold rejects thresholds outside (0, 1].
func ValidateThreshold(threshold float64) error {
	if threshold <= 0 || threshold > 1 {
		return &InvalidWindowError{Field: "auto_confirm_threshold", Value: threshold}
	}
	return nil
}
