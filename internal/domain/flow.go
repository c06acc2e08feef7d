package domain

import "slices"

// FlowName is the name of the step a conversation is currently in.
type FlowName string

const (
	FlowIdle FlowName = "idle"

	FlowLoginEmail    FlowName = "login_email"
	FlowLoginPassword FlowName = "login_password"

	FlowRegisterRole     FlowName = "register_role"
	FlowRegisterName     FlowName = "register_name"
	FlowRegisterEmail    FlowName = "register_email"
	FlowRegisterPassword FlowName = "register_password"
	FlowRegisterConfirm  FlowName = "register_confirm"

	FlowLinkCode FlowName = "link_code"

	FlowStudentMenu    FlowName = "student_menu"
	FlowTeacherMenu    FlowName = "teacher_menu"
	FlowFreelancerMenu FlowName = "freelancer_menu"

	FlowVoucherType      FlowName = "voucher_type"
	FlowVoucherRecipient FlowName = "voucher_recipient"
	FlowVoucherAmount    FlowName = "voucher_amount"
	FlowVoucherConfirm   FlowName = "voucher_confirm"

	FlowWithdrawAmount  FlowName = "withdraw_amount"
	FlowWithdrawConfirm FlowName = "withdraw_confirm"

	FlowUpgradeConfirm FlowName = "upgrade_confirm"

	FlowAssignmentTitle       FlowName = "assignment_title"
	FlowAssignmentDescription FlowName = "assignment_description"
	FlowAssignmentDue         FlowName = "assignment_due"
	FlowAssignmentConfirm     FlowName = "assignment_confirm"

	FlowAvailabilityDays  FlowName = "availability_days"
	FlowAvailabilityHours FlowName = "availability_hours"

	FlowAdminMenu             FlowName = "admin_menu"
	FlowAdminBroadcastMessage FlowName = "admin_broadcast_message"
	FlowAdminBroadcastConfirm FlowName = "admin_broadcast_confirm"
	FlowAdminLookupTarget     FlowName = "admin_lookup_target"
	FlowAdminDeleteTarget     FlowName = "admin_delete_target"
	FlowAdminDeleteConfirm    FlowName = "admin_delete_confirm"
)

// FlowFamily groups flows that share one draft in FlowData.
type FlowFamily string

const (
	FamilyNone         FlowFamily = ""
	FamilyLogin        FlowFamily = "login"
	FamilyRegistration FlowFamily = "registration"
	FamilyLink         FlowFamily = "link"
	FamilyMenu         FlowFamily = "menu"
	FamilyVoucher      FlowFamily = "voucher"
	FamilyWithdraw     FlowFamily = "withdraw"
	FamilyUpgrade      FlowFamily = "upgrade"
	FamilyAssignment   FlowFamily = "assignment"
	FamilyAvailability FlowFamily = "availability"
	FamilyAdmin        FlowFamily = "admin"
)

var flowFamilies = map[FlowName]FlowFamily{
	FlowIdle: FamilyNone,

	FlowLoginEmail:    FamilyLogin,
	FlowLoginPassword: FamilyLogin,

	FlowRegisterRole:     FamilyRegistration,
	FlowRegisterName:     FamilyRegistration,
	FlowRegisterEmail:    FamilyRegistration,
	FlowRegisterPassword: FamilyRegistration,
	FlowRegisterConfirm:  FamilyRegistration,

	FlowLinkCode: FamilyLink,

	FlowStudentMenu:    FamilyMenu,
	FlowTeacherMenu:    FamilyMenu,
	FlowFreelancerMenu: FamilyMenu,

	FlowVoucherType:      FamilyVoucher,
	FlowVoucherRecipient: FamilyVoucher,
	FlowVoucherAmount:    FamilyVoucher,
	FlowVoucherConfirm:   FamilyVoucher,

	FlowWithdrawAmount:  FamilyWithdraw,
	FlowWithdrawConfirm: FamilyWithdraw,

	FlowUpgradeConfirm: FamilyUpgrade,

	FlowAssignmentTitle:       FamilyAssignment,
	FlowAssignmentDescription: FamilyAssignment,
	FlowAssignmentDue:         FamilyAssignment,
	FlowAssignmentConfirm:     FamilyAssignment,

	FlowAvailabilityDays:  FamilyAvailability,
	FlowAvailabilityHours: FamilyAvailability,

	FlowAdminMenu:             FamilyAdmin,
	FlowAdminBroadcastMessage: FamilyAdmin,
	FlowAdminBroadcastConfirm: FamilyAdmin,
	FlowAdminLookupTarget:     FamilyAdmin,
	FlowAdminDeleteTarget:     FamilyAdmin,
	FlowAdminDeleteConfirm:    FamilyAdmin,
}

// Known reports whether f is a flow this build understands. Anything else read
// from storage is treated as corruption.
func (f FlowName) Known() bool {
	_, ok := flowFamilies[f]
	return ok
}

// Family returns the draft family that owns data for flow f.
func (f FlowName) Family() FlowFamily {
	return flowFamilies[f]
}

// IsAdmin reports whether f belongs to the privileged admin sub-session.
func (f FlowName) IsAdmin() bool {
	return f.Family() == FamilyAdmin
}

// IsWizard reports whether f is a step of a multi-field wizard, where CANCEL
// returns to the menu.
func (f FlowName) IsWizard() bool {
	switch f.Family() {
	case FamilyNone, FamilyMenu:
		return false
	}
	return f != FlowAdminMenu
}

// CarriesCredential reports whether free text in f is a user credential that
// must not be treated as anything else.
func (f FlowName) CarriesCredential() bool {
	return f == FlowLoginPassword || f == FlowRegisterPassword
}

// KnownFlows returns every flow name this build understands, sorted.
func KnownFlows() []FlowName {
	out := make([]FlowName, 0, len(flowFamilies))
	for f := range flowFamilies {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}
