package domain

// PaymentMethod платежный метод клиента в платежном шлюзе
type PaymentMethod struct {
	Ref       string `json:"ref"`
	Brand     string `json:"brand,omitempty"`
	Last4     string `json:"last4,omitempty"`
	ExpMonth  int64  `json:"exp_month,omitempty"`
	ExpYear   int64  `json:"exp_year,omitempty"`
	IsDefault bool   `json:"is_default"`
}
