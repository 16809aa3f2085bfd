package templates

// Template is the rendering-engine input for one recipient document.
type Template struct {
	Transaction Transaction `json:"transaction"`
	User        User        `json:"user"`
	Cart        Cart        `json:"cart"`
}

type Transaction struct {
	ID                string        `json:"id"`
	Timestamp         string        `json:"timestamp"`
	Amount            string        `json:"amount"`
	PSP               PSP           `json:"psp"`
	RRN               string        `json:"rrn"`
	PaymentMethod     PaymentMethod `json:"paymentMethod"`
	AuthCode          string        `json:"authCode,omitempty"`
	RequestedByDebtor bool          `json:"requestedByDebtor"`
	ProcessedByPagoPA bool          `json:"processedByPagoPA"`
}

type PSP struct {
	Name string `json:"name"`
	Fee  Fee    `json:"fee"`
}

type Fee struct {
	Amount string `json:"amount"`
}

type PaymentMethod struct {
	Name          string `json:"name,omitempty"`
	Logo          string `json:"logo,omitempty"`
	AccountHolder string `json:"accountHolder,omitempty"`
}

type User struct {
	Data  UserData `json:"data"`
	Email string   `json:"email,omitempty"`
}

type UserData struct {
	FullName string `json:"fullName,omitempty"`
	TaxCode  string `json:"taxCode"`
}

type Cart struct {
	Items         []Item `json:"items"`
	AmountPartial string `json:"amountPartial"`
}

type Item struct {
	RefNumber RefNumber `json:"refNumber"`
	Debtor    UserData  `json:"debtor"`
	Payee     Payee     `json:"payee"`
	Subject   string    `json:"subject"`
	Amount    string    `json:"amount"`
}

type RefNumber struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type Payee struct {
	Name    string `json:"name"`
	TaxCode string `json:"taxCode"`
}
