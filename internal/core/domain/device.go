package domain

import "time"

// DeviceStatus is the approval gate for viewing a device's captured payments.
type DeviceStatus string

const (
	DevicePending  DeviceStatus = "pending"
	DeviceApproved DeviceStatus = "approved"
	DeviceRejected DeviceStatus = "rejected"
)

// Valid reports whether s is one of the known device states.
func (s DeviceStatus) Valid() bool {
	switch s {
	case DevicePending, DeviceApproved, DeviceRejected:
		return true
	}
	return false
}

// LinkedAccount is the denormalized copy of the account assigned to a device.
// Capture clients only read device records, so the copy must track the
// account's mutable fields.
type LinkedAccount struct {
	Username  string        `json:"username" bson:"username"`
	Password  string        `json:"-" bson:"password"`
	Status    AccountStatus `json:"status" bson:"status"`
	Active    bool          `json:"active" bson:"active"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at"`
}

// Device is a physical capture endpoint identified by its code.
type Device struct {
	Code          string         `json:"code" bson:"_id"`
	Model         string         `json:"model" bson:"model"`
	Manufacturer  string         `json:"manufacturer" bson:"manufacturer"`
	Status        DeviceStatus   `json:"status" bson:"status"`
	LinkedAccount *LinkedAccount `json:"linked_account,omitempty" bson:"linked_account,omitempty"`
	CreatedAt     time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" bson:"updated_at"`
}

// Linked reports whether an account snapshot is embedded in the device.
func (d *Device) Linked() bool {
	return d.LinkedAccount != nil
}

// Available reports whether the device can be offered for a new account.
func (d *Device) Available() bool {
	return d.Status == DeviceApproved && d.LinkedAccount == nil
}
