package mercadopago

import (
	"encoding/json"
	"errors"
	"strings"
)

type PaymentStatus string

const (
	PaymentStatusApproved   PaymentStatus = "approved"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusInProcess  PaymentStatus = "in_process"
	PaymentStatusRejected   PaymentStatus = "rejected"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusChargeBack PaymentStatus = "charged_back"
)

// IsSettled reports whether the payment can be turned into an order.
func (s PaymentStatus) IsSettled() bool {
	return s == PaymentStatusApproved || s == PaymentStatusCompleted
}

// Payment is the subset of GET /v1/payments/{id} the marketplace reads.
type Payment struct {
	ID                json.Number    `json:"id"`
	Status            PaymentStatus  `json:"status"`
	StatusDetail      string         `json:"status_detail,omitempty"`
	TransactionAmount float64        `json:"transaction_amount"`
	CurrencyID        string         `json:"currency_id,omitempty"`
	ExternalReference string         `json:"external_reference"`
	AdditionalInfo    AdditionalInfo `json:"additional_info"`
}

type AdditionalInfo struct {
	Items []Item `json:"items"`
}

type Item struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity,omitempty"`
	UnitPrice float64 `json:"unit_price"`
}

// UnmarshalJSON accepts item ids and quantities sent either as strings or numbers.
func (i *Item) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        json.RawMessage `json:"id"`
		Title     string          `json:"title"`
		Quantity  json.RawMessage `json:"quantity"`
		UnitPrice float64         `json:"unit_price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	i.Title = raw.Title
	i.UnitPrice = raw.UnitPrice
	if id := string(raw.ID); id != "null" {
		i.ID = strings.Trim(id, `"`)
	}
	if len(raw.Quantity) > 0 {
		var q json.Number
		if err := json.Unmarshal([]byte(strings.Trim(string(raw.Quantity), `"`)), &q); err == nil {
			if n, err := q.Int64(); err == nil {
				i.Quantity = int(n)
			}
		}
	}
	return nil
}

func (p *Payment) Validate() error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if p.Status == "" {
		return errors.New("status is required")
	}
	return nil
}
