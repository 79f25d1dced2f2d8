package enums

// Currency is the settlement currency quoted to the payment gateway.
type Currency string

const (
	CurrencyINR Currency = "INR"
	CurrencyUSD Currency = "USD"
)

var currencies = newSet("currency", CurrencyINR, CurrencyUSD)

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool { return currencies.has(c) }

func ParseCurrency(value string) (Currency, error) { return currencies.parse(value) }
