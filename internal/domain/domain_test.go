package domain

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"15551230001", "15551230001"},
		{"+1 (555) 123-0001", "15551230001"},
		{"whatsapp:+44 7700 900123", "447700900123"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizeAddress(tc.in), "in=%q", tc.in)
	}
}

func TestFlowName_KnownAndFamily(t *testing.T) {
	require.True(t, FlowIdle.Known())
	require.True(t, FlowAdminDeleteConfirm.IsAdmin())
	require.False(t, FlowStudentMenu.IsAdmin())
	require.False(t, FlowName("voucher_amout").Known())
	require.Equal(t, FamilyVoucher, FlowVoucherConfirm.Family())

	flows := KnownFlows()
	require.Contains(t, flows, FlowIdle)
	require.Contains(t, flows, FlowAdminDeleteConfirm)
	require.True(t, slices.IsSorted(flows))
}

func TestFlowName_IsWizard(t *testing.T) {
	require.True(t, FlowRegisterEmail.IsWizard())
	require.True(t, FlowAdminDeleteConfirm.IsWizard())
	require.False(t, FlowAdminMenu.IsWizard())
	require.False(t, FlowTeacherMenu.IsWizard())
	require.False(t, FlowIdle.IsWizard())
}

func TestFlowData_ForKeepsOnlyOwnedDraft(t *testing.T) {
	d := FlowData{
		Voucher:      &VoucherDraft{IsGift: true, RecipientEmail: "a@b.com"},
		Registration: &RegistrationDraft{Name: "stale"},
	}

	got := d.For(FlowVoucherAmount)
	require.NotNil(t, got.Voucher)
	require.Nil(t, got.Registration)
	require.Equal(t, "a@b.com", got.Voucher.RecipientEmail)

	got.Voucher.Amount = 50
	require.Zero(t, d.Voucher.Amount, "For must copy drafts")

	require.True(t, d.For(FlowIdle).IsEmpty())
	require.True(t, d.For(FlowStudentMenu).IsEmpty())
}

func TestFlowState_NormalizeUnknownFlow(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s, reset := FlowState{Flow: "legacy_wizard", Data: FlowData{Login: &LoginDraft{Email: "x@y.z"}}, LastActivity: ts}.Normalize()
	require.True(t, reset)
	require.Equal(t, FlowIdle, s.Flow)
	require.True(t, s.Data.IsEmpty())
	require.Equal(t, ts, s.LastActivity)
}

func TestAdminSession_Expired(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := &AdminSession{SessionStart: start}
	require.False(t, a.Expired(start.Add(15*time.Minute), 15*time.Minute))
	require.True(t, a.Expired(start.Add(15*time.Minute+time.Second), 15*time.Minute))

	var missing *AdminSession
	require.True(t, missing.Expired(start, 15*time.Minute))
}

func TestInboundEvent_CommandAndInput(t *testing.T) {
	text := InboundEvent{Kind: EventText, Text: "  menu "}
	require.Equal(t, "MENU", text.Command())
	require.Equal(t, "menu", text.Input())

	choice := InboundEvent{Kind: EventList, ChoiceID: "voucher_50"}
	require.Equal(t, "", choice.Command())
	require.Equal(t, "voucher_50", choice.Input())
}
