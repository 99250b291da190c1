package fact

import "fmt"

// Money is a currency-normalized decimal amount. Amount is kept as a
// two-decimal string ("1234.56") so values survive JSON round-trips
// without float drift.
type Money struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency,omitempty"` // ISO 4217, optional
}

// Quantity is a numeric amount with an optional unit ("3", "2.5 kg").
type Quantity struct {
	Number float64 `json:"number"`
	Unit   string  `json:"unit,omitempty"`
}

// Value is the typed, normalized value of a synthesis. Exactly the field
// matching Type is set.
type Value struct {
	Type     ValueType `json:"type"`
	Money    *Money    `json:"money,omitempty"`
	Date     string    `json:"date,omitempty"` // YYYY-MM-DD
	Text     string    `json:"text,omitempty"`
	Quantity *Quantity `json:"quantity,omitempty"`
}

// String renders the value for CSV export and log lines.
func (v Value) String() string {
	switch v.Type {
	case TypeMoney:
		if v.Money == nil {
			return ""
		}
		if v.Money.Currency != "" {
			return v.Money.Currency + " " + v.Money.Amount
		}
		return v.Money.Amount
	case TypeDate:
		return v.Date
	case TypeText:
		return v.Text
	case TypeQuantity:
		if v.Quantity == nil {
			return ""
		}
		if v.Quantity.Unit != "" {
			return fmt.Sprintf("%g %s", v.Quantity.Number, v.Quantity.Unit)
		}
		return fmt.Sprintf("%g", v.Quantity.Number)
	default:
		return ""
	}
}

// Synthesis is a normalized, typed value extracted from one snippet for
// one category. Immutable after creation; validation status lives on the
// ValidationResult, not here.
type Synthesis struct {
	Category   CategoryID `json:"category"`
	RawSpan    Snippet    `json:"raw_span"`
	Value      Value      `json:"value"`
	Confidence float32    `json:"confidence"` // 0..1
}

// ValidationStatus is the validator's verdict for one synthesis.
type ValidationStatus string

const (
	StatusAccepted ValidationStatus = "accepted"
	StatusRejected ValidationStatus = "rejected"
	StatusFlagged  ValidationStatus = "flagged"
)

// ValidationResult carries the verdict and the reasons of the first
// failing check (checks short-circuit, so reasons never mix checks).
type ValidationResult struct {
	Synthesis Synthesis        `json:"synthesis"`
	Status    ValidationStatus `json:"status"`
	Reasons   []string         `json:"reasons,omitempty"`
}
