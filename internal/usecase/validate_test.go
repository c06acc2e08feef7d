package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

func TestValidEmail(t *testing.T) {
	cases := map[string]bool{
		"sam@example.com":         true,
		"  Sam.Lee@Example.co.uk": true,
		"sam@localhost":           false,
		"Sam <sam@example.com>":   false,
		"sam example.com":         false,
		"":                        false,
	}
	for in, want := range cases {
		_, ok := validEmail(in)
		require.Equal(t, want, ok, in)
	}
	got, _ := validEmail("Sam@Example.com")
	require.Equal(t, "sam@example.com", got)
}

func TestValidPassword(t *testing.T) {
	require.True(t, validPassword("abcdefg1"))
	require.False(t, validPassword("abcdefgh"))
	require.False(t, validPassword("12345678"))
	require.False(t, validPassword("abc1"))
}

func TestParseAmount(t *testing.T) {
	n, ok := parseAmount(" $25 ", 5, 500)
	require.True(t, ok)
	require.Equal(t, 25, n)

	for _, in := range []string{"4", "501", "12.50", "ten", ""} {
		_, ok := parseAmount(in, 5, 500)
		require.False(t, ok, in)
	}
}

func TestValidDueDate(t *testing.T) {
	now := time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)

	got, ok := validDueDate("2026-03-02", now)
	require.True(t, ok)
	require.Equal(t, "2026-03-02", got)

	_, ok = validDueDate("2026-03-01", now)
	require.False(t, ok)
	_, ok = validDueDate("03/09/2026", now)
	require.False(t, ok)
}

func TestParseWeekdays(t *testing.T) {
	days, ok := parseWeekdays("sun; Tue/tuesday, THU")
	require.True(t, ok)
	require.Equal(t, []string{"Tue", "Thu", "Sun"}, days)

	_, ok = parseWeekdays("someday")
	require.False(t, ok)
	_, ok = parseWeekdays(" , ")
	require.False(t, ok)
}

func TestParseHours(t *testing.T) {
	from, to, ok := parseHours("08:15-12:00")
	require.True(t, ok)
	require.Equal(t, "08:15", from)
	require.Equal(t, "12:00", to)

	for _, in := range []string{"12:00-12:00", "25:00-26:00", "8-12", "09:00"} {
		_, _, ok := parseHours(in)
		require.False(t, ok, in)
	}
}

func TestCancelAndConfirmRecognition(t *testing.T) {
	require.True(t, isCancel(domain.InboundEvent{Kind: domain.EventText, Text: " Cancel "}))
	require.True(t, isCancel(domain.InboundEvent{Kind: domain.EventButton, ChoiceID: "cancel"}))
	require.False(t, isCancel(domain.InboundEvent{Kind: domain.EventButton, ChoiceID: "CANCEL"}))
	require.True(t, isConfirm(domain.InboundEvent{Kind: domain.EventText, Text: "yes"}))
	require.True(t, isConfirm(domain.InboundEvent{Kind: domain.EventList, ChoiceID: "confirm"}))
	require.False(t, isConfirm(domain.InboundEvent{Kind: domain.EventText, Text: "confirmed?"}))
}
