package usecase

import (
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

const (
	minNameLen = 2
	maxNameLen = 80

	minPasswordLen = 8

	minTitleLen       = 3
	maxTitleLen       = 120
	maxDescriptionLen = 1000
	maxBroadcastLen   = 900

	minVoucherAmount = 5
	maxVoucherAmount = 500

	dueDateLayout = "2006-01-02"
)

var (
	linkCodePattern = regexp.MustCompile(`^[0-9]{6}$`)
	hoursPattern    = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])\s*-\s*([01][0-9]|2[0-3]):([0-5][0-9])$`)
)

var weekdays = map[string]string{
	"mon": "Mon", "monday": "Mon",
	"tue": "Tue", "tues": "Tue", "tuesday": "Tue",
	"wed": "Wed", "wednesday": "Wed",
	"thu": "Thu", "thur": "Thu", "thurs": "Thu", "thursday": "Thu",
	"fri": "Fri", "friday": "Fri",
	"sat": "Sat", "saturday": "Sat",
	"sun": "Sun", "sunday": "Sun",
}

var weekdayOrder = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func isCancel(ev domain.InboundEvent) bool {
	if ev.IsChoice() {
		return ev.ChoiceID == choiceCancel
	}
	return ev.Command() == "CANCEL"
}

func isConfirm(ev domain.InboundEvent) bool {
	if ev.IsChoice() {
		return ev.ChoiceID == choiceConfirm
	}
	switch ev.Command() {
	case "YES", "Y", "CONFIRM", "OK":
		return true
	}
	return false
}

// validEmail accepts a bare address only, no display name.
func validEmail(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " <>") {
		return "", false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", false
	}
	at := strings.LastIndexByte(s, '@')
	if !strings.Contains(s[at+1:], ".") {
		return "", false
	}
	return strings.ToLower(s), true
}

func validName(s string) (string, bool) {
	s = strings.Join(strings.Fields(s), " ")
	n := utf8.RuneCountInString(s)
	return s, n >= minNameLen && n <= maxNameLen
}

func validPassword(s string) bool {
	if utf8.RuneCountInString(s) < minPasswordLen {
		return false
	}
	var letter, digit bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}

func validLinkCode(s string) bool {
	return linkCodePattern.MatchString(strings.TrimSpace(s))
}

// parseAmount accepts a whole amount, optionally prefixed with "$".
func parseAmount(s string, lo, hi int) (int, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

func validDueDate(s string, now time.Time) (string, bool) {
	s = strings.TrimSpace(s)
	d, err := time.Parse(dueDateLayout, s)
	if err != nil {
		return "", false
	}
	today := now.UTC().Truncate(24 * time.Hour)
	if d.Before(today) {
		return "", false
	}
	return d.Format(dueDateLayout), true
}

// parseWeekdays returns the distinct weekdays in s in calendar order.
func parseWeekdays(s string) ([]string, bool) {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ',' || r == ' ' || r == ';' || r == '/'
	})
	if len(fields) == 0 {
		return nil, false
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		day, ok := weekdays[f]
		if !ok {
			return nil, false
		}
		seen[day] = true
	}
	out := make([]string, 0, len(seen))
	for _, day := range weekdayOrder {
		if seen[day] {
			out = append(out, day)
		}
	}
	return out, true
}

func parseHours(s string) (from, to string, ok bool) {
	m := hoursPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", "", false
	}
	from = m[1] + ":" + m[2]
	to = m[3] + ":" + m[4]
	if from >= to {
		return "", "", false
	}
	return from, to, true
}
