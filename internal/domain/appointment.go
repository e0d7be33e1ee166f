package domain

type AppointmentID string

// AppointmentStatus mirrors the booking record's state machine. Only a subset
// of statuses allows a live session to be joined.
type AppointmentStatus string

const (
	AppointmentConfirmed  AppointmentStatus = "confirmed"
	AppointmentInProgress AppointmentStatus = "in_progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
	AppointmentDeclined   AppointmentStatus = "declined"
)

// Joinable reports whether the appointment is in a state that admits a live
// participant.
func (s AppointmentStatus) Joinable() bool {
	return s == AppointmentConfirmed || s == AppointmentInProgress
}

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentComped  PaymentStatus = "comped"
	PaymentWaived  PaymentStatus = "waived"
	PaymentPending PaymentStatus = "pending"
	PaymentFailed  PaymentStatus = "failed"
)

// Confirmed reports whether the payment precondition for joining is met.
func (p PaymentStatus) Confirmed() bool {
	return p == PaymentPaid || p == PaymentComped || p == PaymentWaived
}

// Snapshot is a fresh, per-join read of an appointment's parties, status,
// payment state and room binding. It is never cached across joins.
type Snapshot struct {
	AppointmentID AppointmentID     `json:"appointmentId"`
	ClientID      UserID            `json:"clientId"`
	TherapistID   UserID            `json:"therapistId"`
	Status        AppointmentStatus `json:"status"`
	Payment       PaymentStatus     `json:"paymentStatus"`
	RoomID        RoomID            `json:"roomId"`
}

// Authorizes reports whether the identity is a party to the appointment or an
// administrative observer.
func (s Snapshot) Authorizes(id Identity) bool {
	if id.Role == RoleAdmin {
		return true
	}
	return id.UserID == s.ClientID || id.UserID == s.TherapistID
}
