package models

type Currency struct {
	ID           int    `json:"id" example:"1"`
	CurrencyName string `json:"currency_name" example:"US Dollar"`
	CurrencyCode string `json:"currency_code" example:"USD"`
	Symbol       string `json:"symbol" example:"$"`
}
