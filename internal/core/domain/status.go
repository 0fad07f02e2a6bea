package domain

// DeviceStatusFor maps an account's lifecycle state to the approval state its
// linked device must reflect. Unknown states map to pending.
func DeviceStatusFor(s AccountStatus) DeviceStatus {
	switch s {
	case AccountActive:
		return DeviceApproved
	case AccountSuspended:
		return DeviceRejected
	default:
		return DevicePending
	}
}

// AccountStatusFor is the inverse of DeviceStatusFor.
func AccountStatusFor(s DeviceStatus) AccountStatus {
	switch s {
	case DeviceApproved:
		return AccountActive
	case DeviceRejected:
		return AccountSuspended
	default:
		return AccountInactive
	}
}
