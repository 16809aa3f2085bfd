package templates

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/receipt-generator/pkg/bizevents"
	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/enums"
	"github.com/shopspring/decimal"
)

const (
	refTypeNotice = "codiceAvviso"
	refTypeIUV    = "IUV"

	timestampLayout = "02/01/2006 15:04:05"
)

var timestampInputs = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// MissingFieldError reports a mandatory template field absent from the events.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("template: missing mandatory field %s", e.Field)
}

// Build maps the events covered by slot into the template of its recipient.
// It performs no I/O.
func Build(events []bizevents.BizEvent, slot models.Outcome) (*Template, error) {
	if len(events) == 0 {
		return nil, &MissingFieldError{Field: "events"}
	}
	if len(slot.EventIndexes) == 0 {
		return nil, &MissingFieldError{Field: "slot.eventIndexes"}
	}

	covered := make([]bizevents.BizEvent, 0, len(slot.EventIndexes))
	for _, idx := range slot.EventIndexes {
		if idx < 0 || idx >= len(events) {
			return nil, fmt.Errorf("template: event index %d out of range (%d events)", idx, len(events))
		}
		covered = append(covered, events[idx])
	}
	first := covered[0]

	items, partial, err := buildItems(covered)
	if err != nil {
		return nil, err
	}

	transaction, err := buildTransaction(first, slot.Role, partial)
	if err != nil {
		return nil, err
	}

	user, err := buildUser(first, slot)
	if err != nil {
		return nil, err
	}

	return &Template{
		Transaction: transaction,
		User:        user,
		Cart: Cart{
			Items:         items,
			AmountPartial: formatAmount(partial),
		},
	}, nil
}

func buildItems(events []bizevents.BizEvent) ([]Item, decimal.Decimal, error) {
	items := make([]Item, 0, len(events))
	total := decimal.Zero
	for i, event := range events {
		amount, err := parseAmount(event.PaymentInfo.Amount, fmt.Sprintf("cart.items[%d].amount", i))
		if err != nil {
			return nil, decimal.Zero, err
		}

		ref := RefNumber{Type: refTypeNotice, Value: event.DebtorPosition.NoticeNumber}
		if ref.Value == "" {
			ref = RefNumber{Type: refTypeIUV, Value: event.DebtorPosition.Iuv}
		}
		if ref.Value == "" {
			return nil, decimal.Zero, &MissingFieldError{Field: fmt.Sprintf("cart.items[%d].refNumber", i)}
		}
		if event.Creditor.CompanyName == "" {
			return nil, decimal.Zero, &MissingFieldError{Field: fmt.Sprintf("cart.items[%d].payee.name", i)}
		}

		subject := event.PaymentInfo.Remittanceinformation
		if subject == "" {
			subject = event.PaymentInfo.Description
		}

		items = append(items, Item{
			RefNumber: ref,
			Debtor: UserData{
				FullName: event.Debtor.FullName,
				TaxCode:  event.DebtorFiscalCode(),
			},
			Payee: Payee{
				Name:    event.Creditor.CompanyName,
				TaxCode: event.Creditor.IdPA,
			},
			Subject: subject,
			Amount:  formatAmount(amount),
		})
		total = total.Add(amount)
	}
	return items, total, nil
}

func buildTransaction(event bizevents.BizEvent, role enums.RecipientRole, partial decimal.Decimal) (Transaction, error) {
	var tx *bizevents.Transaction
	var info *bizevents.Info
	if event.TransactionDetails != nil {
		tx = event.TransactionDetails.Transaction
		info = event.TransactionDetails.Info
	}

	timestamp := event.PaymentInfo.PaymentDateTime
	if tx != nil && tx.CreationDate != "" {
		timestamp = tx.CreationDate
	}
	if timestamp == "" {
		return Transaction{}, &MissingFieldError{Field: "transaction.timestamp"}
	}

	pspName := event.Psp.Psp
	if tx != nil && tx.Psp != nil && tx.Psp.BusinessName != "" {
		pspName = tx.Psp.BusinessName
	}
	if pspName == "" {
		return Transaction{}, &MissingFieldError{Field: "transaction.psp.name"}
	}

	fee, err := transactionFee(event, tx)
	if err != nil {
		return Transaction{}, err
	}

	amount := partial
	if role == enums.RecipientPayer {
		amount = partial.Add(fee)
		if tx != nil && tx.Grandtotal > 0 {
			amount = decimal.New(tx.Grandtotal, -2)
		}
	}

	out := Transaction{
		ID:                transactionID(event, tx),
		Timestamp:         formatTimestamp(timestamp),
		Amount:            formatAmount(amount),
		PSP:               PSP{Name: pspName, Fee: Fee{Amount: formatAmount(fee)}},
		RRN:               firstNonEmpty(rrn(tx), event.PaymentInfo.PaymentToken, event.PaymentInfo.IUR),
		PaymentMethod:     PaymentMethod{Name: event.PaymentInfo.PaymentMethod},
		RequestedByDebtor: role == enums.RecipientDebtor,
		ProcessedByPagoPA: tx != nil,
	}
	if tx != nil {
		out.AuthCode = tx.AuthorizationCode
	}
	if info != nil {
		out.PaymentMethod.Name = firstNonEmpty(info.PaymentMethodName, info.Brand, out.PaymentMethod.Name)
		out.PaymentMethod.Logo = info.BrandLogo
	}
	if role == enums.RecipientPayer {
		out.PaymentMethod.AccountHolder = event.PayerFullName()
	}
	return out, nil
}

func buildUser(event bizevents.BizEvent, slot models.Outcome) (User, error) {
	if !bizevents.IsKnownFiscalCode(slot.FiscalCode) {
		return User{}, &MissingFieldError{Field: "user.data.taxCode"}
	}

	user := User{Data: UserData{TaxCode: slot.FiscalCode}}
	switch slot.Role {
	case enums.RecipientPayer:
		user.Data.FullName = event.PayerFullName()
		if event.Payer != nil {
			user.Email = event.Payer.Email
		}
	default:
		user.Data.FullName = event.Debtor.FullName
		user.Email = event.Debtor.Email
	}
	return user, nil
}

func transactionFee(event bizevents.BizEvent, tx *bizevents.Transaction) (decimal.Decimal, error) {
	if tx != nil && tx.Fee > 0 {
		return decimal.New(tx.Fee, -2), nil
	}
	if strings.TrimSpace(event.PaymentInfo.Fee) == "" {
		return decimal.Zero, nil
	}
	return parseAmount(event.PaymentInfo.Fee, "transaction.psp.fee.amount")
}

func transactionID(event bizevents.BizEvent, tx *bizevents.Transaction) string {
	if tx != nil {
		if id := firstNonEmpty(tx.TransactionID, tx.IdTransaction); id != "" {
			return id
		}
	}
	return firstNonEmpty(event.PaymentInfo.IUR, event.ID)
}

func rrn(tx *bizevents.Transaction) string {
	if tx == nil {
		return ""
	}
	return tx.Rrn
}

func parseAmount(raw, field string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, &MissingFieldError{Field: field}
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("template: %s is not a number: %w", field, err)
	}
	return amount, nil
}

func formatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

func formatTimestamp(raw string) string {
	for _, layout := range timestampInputs {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.Format(timestampLayout)
		}
	}
	return raw
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
