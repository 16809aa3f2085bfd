package enums

// RecipientRole says whose copy of the receipt a slot produces.
type RecipientRole string

const (
	RecipientDebtor RecipientRole = "DEBTOR"
	RecipientPayer  RecipientRole = "PAYER"
)

// IsValid reports whether the value is a known RecipientRole.
func (r RecipientRole) IsValid() bool {
	return r == RecipientDebtor || r == RecipientPayer
}
