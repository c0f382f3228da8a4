package dto

import "encoding/json"

// PaystackWebhook is the envelope Paystack posts to the webhook endpoint.
type PaystackWebhook struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type PaystackChargeData struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}
