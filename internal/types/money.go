// README: Common money value object used across modules.
package types

const DefaultCurrency = "TZS"

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func TZS(amount int64) Money {
	return Money{Amount: amount, Currency: DefaultCurrency}
}
