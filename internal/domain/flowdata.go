package domain

import "time"

// FlowData carries the in-progress draft of the current wizard. At most one
// draft is meaningful at a time: the one owned by the current flow's family.
type FlowData struct {
	Login        *LoginDraft        `json:"login,omitempty"`
	Registration *RegistrationDraft `json:"registration,omitempty"`
	Voucher      *VoucherDraft      `json:"voucher,omitempty"`
	Withdraw     *WithdrawDraft     `json:"withdraw,omitempty"`
	Assignment   *AssignmentDraft   `json:"assignment,omitempty"`
	Availability *AvailabilityDraft `json:"availability,omitempty"`
	Admin        *AdminSession      `json:"admin,omitempty"`
}

type LoginDraft struct {
	Email          string `json:"email,omitempty"`
	FailedAttempts int    `json:"failedAttempts,omitempty"`
}

// RegistrationDraft never holds the password: it is collected in the last
// step and submitted without being persisted.
type RegistrationDraft struct {
	Role  Role   `json:"role,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type VoucherDraft struct {
	IsGift         bool   `json:"isGift,omitempty"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
	Amount         int    `json:"amount,omitempty"`
}

type WithdrawDraft struct {
	Amount int `json:"amount,omitempty"`
}

type AssignmentDraft struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
}

type AvailabilityDraft struct {
	Days []string `json:"days,omitempty"`
}

// AdminSession is embedded in the flow data for the whole admin family. The
// sub-wizard fields are cleared when the admin returns to the admin menu.
type AdminSession struct {
	SessionStart     time.Time `json:"adminSessionStart"`
	BroadcastMessage string    `json:"broadcastMessage,omitempty"`
	TargetUserID     string    `json:"targetUserId,omitempty"`
	TargetLabel      string    `json:"targetLabel,omitempty"`
}

// Expired reports whether the admin session started more than timeout ago.
// A missing session counts as expired.
func (a *AdminSession) Expired(now time.Time, timeout time.Duration) bool {
	if a == nil || a.SessionStart.IsZero() {
		return true
	}
	return now.Sub(a.SessionStart) > timeout
}

// IsEmpty reports whether no draft is set.
func (d FlowData) IsEmpty() bool {
	return d.Login == nil && d.Registration == nil && d.Voucher == nil &&
		d.Withdraw == nil && d.Assignment == nil && d.Availability == nil && d.Admin == nil
}

// For returns a copy of d holding only the draft owned by flow's family.
// Idle, menus and unknown flows own nothing.
func (d FlowData) For(flow FlowName) FlowData {
	var out FlowData
	switch flow.Family() {
	case FamilyLogin:
		out.Login = cloneLogin(d.Login)
	case FamilyRegistration:
		out.Registration = cloneRegistration(d.Registration)
	case FamilyVoucher:
		out.Voucher = cloneVoucher(d.Voucher)
	case FamilyWithdraw:
		out.Withdraw = cloneWithdraw(d.Withdraw)
	case FamilyAssignment:
		out.Assignment = cloneAssignment(d.Assignment)
	case FamilyAvailability:
		out.Availability = cloneAvailability(d.Availability)
	case FamilyAdmin:
		out.Admin = cloneAdmin(d.Admin)
	}
	return out
}

// Clone returns a deep copy of d.
func (d FlowData) Clone() FlowData {
	return FlowData{
		Login:        cloneLogin(d.Login),
		Registration: cloneRegistration(d.Registration),
		Voucher:      cloneVoucher(d.Voucher),
		Withdraw:     cloneWithdraw(d.Withdraw),
		Assignment:   cloneAssignment(d.Assignment),
		Availability: cloneAvailability(d.Availability),
		Admin:        cloneAdmin(d.Admin),
	}
}

func cloneLogin(v *LoginDraft) *LoginDraft {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneRegistration(v *RegistrationDraft) *RegistrationDraft {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneVoucher(v *VoucherDraft) *VoucherDraft {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneWithdraw(v *WithdrawDraft) *WithdrawDraft {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneAssignment(v *AssignmentDraft) *AssignmentDraft {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneAvailability(v *AvailabilityDraft) *AvailabilityDraft {
	if v == nil {
		return nil
	}
	c := AvailabilityDraft{Days: append([]string(nil), v.Days...)}
	return &c
}

func cloneAdmin(v *AdminSession) *AdminSession {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
