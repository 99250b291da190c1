package fact

// CategoryID names a recognized invoice fact type. The set of valid IDs
// is owned by the active category schema (internal/schema), not by this
// package; pipeline code treats the ID as opaque.
type CategoryID string

// CategoryNone marks a snippet for which no candidate category produced
// a type-valid value (a total synthesis failure, kept for audit).
const CategoryNone CategoryID = "none"

// ValueType is the declared value type of a category. The set is closed:
// a synthesized value failing to parse as its declared type is rejected
// before semantic validation.
type ValueType string

const (
	TypeMoney    ValueType = "money"
	TypeDate     ValueType = "date"
	TypeText     ValueType = "text"
	TypeQuantity ValueType = "quantity"
)

// Multiplicity says how many accepted syntheses of a category a digest
// may carry.
type Multiplicity string

const (
	SingleValued Multiplicity = "single"
	MultiValued  Multiplicity = "multi"
)
