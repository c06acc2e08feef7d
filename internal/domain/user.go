package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInsufficientFunds  = errors.New("insufficient funds")
)

type Role string

const (
	RoleStudent    Role = "student"
	RoleTeacher    Role = "teacher"
	RoleFreelancer Role = "freelancer"
)

// Valid reports whether r is one of the roles a party can register as.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleFreelancer:
		return true
	}
	return false
}

// MenuFlow returns the role menu flow for r.
func (r Role) MenuFlow() FlowName {
	switch r {
	case RoleTeacher:
		return FlowTeacherMenu
	case RoleFreelancer:
		return FlowFreelancerMenu
	default:
		return FlowStudentMenu
	}
}

// User is the platform account linked to a conversation.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Role     Role   `json:"role"`
	IsAdmin  bool   `json:"isAdmin"`
	IsActive bool   `json:"isActive"`
}

type Course struct {
	Title    string `json:"title"`
	Progress int    `json:"progress"`
}

type Booking struct {
	Title    string `json:"title"`
	With     string `json:"with"`
	StartsAt string `json:"startsAt"`
}

type Voucher struct {
	Code   string `json:"code"`
	Amount int    `json:"amount"`
}

type Withdrawal struct {
	Reference string `json:"reference"`
	Amount    int    `json:"amount"`
}

type PlatformStats struct {
	Users       int `json:"users"`
	ActiveToday int `json:"activeToday"`
	Revenue     int `json:"revenue"`
}
