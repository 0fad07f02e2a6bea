package domain

import "time"

// Payment is an immutable captured transaction attached to a device.
type Payment struct {
	ID         string    `json:"id" bson:"_id"`
	DeviceCode string    `json:"device_code" bson:"device_code"`
	Sender     string    `json:"sender" bson:"sender"`
	Amount     float64   `json:"amount" bson:"amount"`
	Content    string    `json:"content" bson:"content"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}

// PaymentView is a payment together with the resolved owner label.
type PaymentView struct {
	Payment
	Owner string `json:"owner"`
}
