package bizevents

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AnonymousFiscalCode marks a party that did not disclose its fiscal code.
const AnonymousFiscalCode = "ANONIMO"

// BizEvent is the payment notification consumed from the biz-events subscription.
type BizEvent struct {
	ID                 string              `json:"id" validate:"required"`
	Version            string              `json:"version,omitempty"`
	IdPaymentManager   string              `json:"idPaymentManager,omitempty"`
	Debtor             Debtor              `json:"debtor"`
	Payer              *Payer              `json:"payer,omitempty"`
	Creditor           Creditor            `json:"creditor"`
	Psp                Psp                 `json:"psp"`
	DebtorPosition     DebtorPosition      `json:"debtorPosition"`
	PaymentInfo        PaymentInfo         `json:"paymentInfo"`
	TransactionDetails *TransactionDetails `json:"transactionDetails,omitempty"`
	EventStatus        string              `json:"eventStatus,omitempty"`
}

type Debtor struct {
	FullName                    string `json:"fullName,omitempty"`
	EntityUniqueIdentifierType  string `json:"entityUniqueIdentifierType,omitempty"`
	EntityUniqueIdentifierValue string `json:"entityUniqueIdentifierValue,omitempty"`
	Email                       string `json:"eMail,omitempty"`
}

type Payer struct {
	FullName                    string `json:"fullName,omitempty"`
	EntityUniqueIdentifierType  string `json:"entityUniqueIdentifierType,omitempty"`
	EntityUniqueIdentifierValue string `json:"entityUniqueIdentifierValue,omitempty"`
	Email                       string `json:"eMail,omitempty"`
}

type Creditor struct {
	IdPA        string `json:"idPA,omitempty"`
	IdBrokerPA  string `json:"idBrokerPA,omitempty"`
	IdStation   string `json:"idStation,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	OfficeName  string `json:"officeName,omitempty"`
}

type Psp struct {
	IdPsp              string `json:"idPsp,omitempty"`
	IdBrokerPsp        string `json:"idBrokerPsp,omitempty"`
	IdChannel          string `json:"idChannel,omitempty"`
	Psp                string `json:"psp,omitempty"`
	PspFiscalCode      string `json:"pspFiscalCode,omitempty"`
	ChannelDescription string `json:"channelDescription,omitempty"`
}

type DebtorPosition struct {
	ModelType    string `json:"modelType,omitempty"`
	NoticeNumber string `json:"noticeNumber,omitempty"`
	Iuv          string `json:"iuv,omitempty"`
}

type PaymentInfo struct {
	PaymentDateTime       string `json:"paymentDateTime,omitempty"`
	ApplicationDate       string `json:"applicationDate,omitempty"`
	TransferDate          string `json:"transferDate,omitempty"`
	DueDate               string `json:"dueDate,omitempty"`
	PaymentToken          string `json:"paymentToken,omitempty"`
	Amount                string `json:"amount,omitempty"`
	Fee                   string `json:"fee,omitempty"`
	TotalNotice           string `json:"totalNotice,omitempty"`
	PaymentMethod         string `json:"paymentMethod,omitempty"`
	Touchpoint            string `json:"touchpoint,omitempty"`
	Remittanceinformation string `json:"remittanceInformation,omitempty"`
	Description           string `json:"description,omitempty"`
	IUR                   string `json:"IUR,omitempty"`
}

type TransactionDetails struct {
	User        *User        `json:"user,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
	Info        *Info        `json:"info,omitempty"`
}

type User struct {
	FullName          string `json:"fullName,omitempty"`
	Type              string `json:"type,omitempty"`
	FiscalCode        string `json:"fiscalCode,omitempty"`
	Notificationemail string `json:"notificationEmail,omitempty"`
	UserID            string `json:"userId,omitempty"`
	UserStatus        string `json:"userStatus,omitempty"`
	Name              string `json:"name,omitempty"`
	Surname           string `json:"surname,omitempty"`
}

// Transaction amounts are expressed in euro cents.
type Transaction struct {
	IdTransaction     string          `json:"idTransaction,omitempty"`
	TransactionID     string          `json:"transactionId,omitempty"`
	Grandtotal        int64           `json:"grandTotal,omitempty"`
	Amount            int64           `json:"amount,omitempty"`
	Fee               int64           `json:"fee,omitempty"`
	TransactionStatus string          `json:"transactionStatus,omitempty"`
	AuthorizationCode string          `json:"authorizationCode,omitempty"`
	Rrn               string          `json:"rrn,omitempty"`
	CreationDate      string          `json:"creationDate,omitempty"`
	NumAut            string          `json:"numAut,omitempty"`
	Psp               *TransactionPsp `json:"psp,omitempty"`
	Origin            string          `json:"origin,omitempty"`
}

type TransactionPsp struct {
	IdChannel    string `json:"idChannel,omitempty"`
	BusinessName string `json:"businessName,omitempty"`
	ServiceName  string `json:"serviceName,omitempty"`
}

type Info struct {
	Brand             string `json:"brand,omitempty"`
	BrandLogo         string `json:"brandLogo,omitempty"`
	ClientID          string `json:"clientId,omitempty"`
	PaymentMethodName string `json:"paymentMethodName,omitempty"`
	Type              string `json:"type,omitempty"`
}

// Decode parses a raw queue payload into a BizEvent.
func Decode(data []byte) (BizEvent, error) {
	var event BizEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return BizEvent{}, fmt.Errorf("decode biz event: %w", err)
	}
	if strings.TrimSpace(event.ID) == "" {
		return BizEvent{}, fmt.Errorf("decode biz event: id is required")
	}
	return event, nil
}

// TotalNotices returns the declared number of cart items. Missing or malformed
// values count as a single payment.
func (e BizEvent) TotalNotices() int {
	raw := strings.TrimSpace(e.PaymentInfo.TotalNotice)
	if raw == "" {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// IsCart reports whether the event is one item of a multi-payment cart.
func (e BizEvent) IsCart() bool {
	return e.TotalNotices() > 1
}

// CartID returns the transaction identifier shared by every event of a cart.
func (e BizEvent) CartID() string {
	if e.TransactionDetails == nil || e.TransactionDetails.Transaction == nil {
		return ""
	}
	tx := e.TransactionDetails.Transaction
	if tx.TransactionID != "" {
		return tx.TransactionID
	}
	return tx.IdTransaction
}

// DebtorFiscalCode returns the debtor's fiscal code, upper-cased.
func (e BizEvent) DebtorFiscalCode() string {
	return normalizeFiscalCode(e.Debtor.EntityUniqueIdentifierValue)
}

// PayerFiscalCode prefers the authenticated checkout user over the payer block.
func (e BizEvent) PayerFiscalCode() string {
	if e.TransactionDetails != nil && e.TransactionDetails.User != nil {
		if code := normalizeFiscalCode(e.TransactionDetails.User.FiscalCode); code != "" {
			return code
		}
	}
	if e.Payer != nil {
		return normalizeFiscalCode(e.Payer.EntityUniqueIdentifierValue)
	}
	return ""
}

// PayerFullName mirrors PayerFiscalCode for the display name.
func (e BizEvent) PayerFullName() string {
	if e.TransactionDetails != nil && e.TransactionDetails.User != nil {
		user := e.TransactionDetails.User
		if user.FullName != "" {
			return user.FullName
		}
		if name := strings.TrimSpace(user.Name + " " + user.Surname); name != "" {
			return name
		}
	}
	if e.Payer != nil {
		return e.Payer.FullName
	}
	return ""
}

// IsKnownFiscalCode reports whether code identifies a real recipient.
func IsKnownFiscalCode(code string) bool {
	code = normalizeFiscalCode(code)
	return code != "" && code != AnonymousFiscalCode
}

func normalizeFiscalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
