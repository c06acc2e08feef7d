package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

// Choice ids echoed back by the provider.
const (
	choiceConfirm = "confirm"
	choiceCancel  = "cancel"

	choiceMenuMain     = "menu_main"
	choiceMenuLogin    = "menu_login"
	choiceMenuRegister = "menu_register"
	choiceMenuLink     = "menu_link"

	itemLogout = "logout"

	itemStudentCourses  = "student_courses"
	itemStudentBookings = "student_bookings"
	itemStudentWallet   = "student_wallet"
	itemStudentVoucher  = "student_voucher"
	itemStudentUpgrade  = "student_upgrade"

	itemTeacherBookings     = "teacher_bookings"
	itemTeacherWallet       = "teacher_wallet"
	itemTeacherWithdraw     = "teacher_withdraw"
	itemTeacherAssignment   = "teacher_assignment"
	itemTeacherAvailability = "teacher_availability"

	itemFreelancerBookings = "freelancer_bookings"
	itemFreelancerWallet   = "freelancer_wallet"
	itemFreelancerVoucher  = "freelancer_voucher"
	itemFreelancerWithdraw = "freelancer_withdraw"
)

var (
	confirmButtons = []domain.Button{
		{ID: choiceConfirm, Title: "Confirm"},
		{ID: choiceCancel, Title: "Cancel"},
	}

	anonymousMenu = []domain.Button{
		{ID: choiceMenuLogin, Title: "Log in"},
		{ID: choiceMenuRegister, Title: "Register"},
		{ID: choiceMenuLink, Title: "Link account"},
	}

	logoutRow = domain.ListRow{ID: itemLogout, Title: "Log out"}

	roleMenus = map[domain.Role][]domain.ListRow{
		domain.RoleStudent: {
			{ID: itemStudentCourses, Title: "My courses", Description: "Enrolled courses and progress"},
			{ID: itemStudentBookings, Title: "My bookings", Description: "Upcoming lessons"},
			{ID: itemStudentWallet, Title: "Wallet balance"},
			{ID: itemStudentVoucher, Title: "Buy a voucher", Description: "For yourself or as a gift"},
			{ID: itemStudentUpgrade, Title: "Become a freelancer"},
			logoutRow,
		},
		domain.RoleTeacher: {
			{ID: itemTeacherBookings, Title: "My bookings", Description: "Upcoming lessons"},
			{ID: itemTeacherWallet, Title: "Wallet balance"},
			{ID: itemTeacherWithdraw, Title: "Withdraw earnings"},
			{ID: itemTeacherAssignment, Title: "New assignment"},
			{ID: itemTeacherAvailability, Title: "Set availability"},
			logoutRow,
		},
		domain.RoleFreelancer: {
			{ID: itemFreelancerBookings, Title: "My bookings", Description: "Upcoming sessions"},
			{ID: itemFreelancerWallet, Title: "Wallet balance"},
			{ID: itemFreelancerVoucher, Title: "Buy a voucher", Description: "For yourself or as a gift"},
			{ID: itemFreelancerWithdraw, Title: "Withdraw earnings"},
			logoutRow,
		},
	}
)

// isRoleMenuItem reports whether id belongs to one of the role menus.
func isRoleMenuItem(id string) bool {
	return id == itemLogout ||
		strings.HasPrefix(id, string(domain.RoleStudent)+"_") ||
		strings.HasPrefix(id, string(domain.RoleTeacher)+"_") ||
		strings.HasPrefix(id, string(domain.RoleFreelancer)+"_")
}

// sendMenu shows the menu for the party and returns the flow it belongs to:
// the anonymous menu lives in idle, role menus in their own flow.
func (x *Executor) sendMenu(ctx context.Context, t *Turn) (domain.FlowName, error) {
	u, ok, err := t.User(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		if err := t.Buttons(ctx, msgWelcome, anonymousMenu...); err != nil {
			return "", err
		}
		return domain.FlowIdle, nil
	}
	rows, found := roleMenus[u.Role]
	if !found {
		rows = roleMenus[domain.RoleStudent]
	}
	section := domain.ListSection{Title: "Menu", Rows: rows}
	if err := t.List(ctx, fmt.Sprintf(msgMenuGreeting, firstName(u.Name)), msgMenuButton, section); err != nil {
		return "", err
	}
	return u.Role.MenuFlow(), nil
}

func (x *Executor) idle(ctx context.Context, t *Turn) (Outcome, error) {
	return Menu(), nil
}

func (x *Executor) roleMenu(ctx context.Context, t *Turn) (Outcome, error) {
	u, ok, err := t.User(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if !ok || !t.Event.IsChoice() {
		return Menu(), nil
	}
	item := t.Event.ChoiceID
	if item == itemLogout {
		return x.logout(ctx, t)
	}
	if !menuHasItem(u.Role, item) {
		x.log.Info("menu item not available for role", "address", t.Address(), "item", item, "role", u.Role)
		return Menu(), nil
	}

	switch item {
	case itemStudentWallet, itemTeacherWallet, itemFreelancerWallet:
		return x.showBalance(ctx, t, u)
	case itemStudentCourses:
		return x.showCourses(ctx, t, u)
	case itemStudentBookings, itemTeacherBookings, itemFreelancerBookings:
		return x.showBookings(ctx, t, u)
	case itemStudentVoucher, itemFreelancerVoucher:
		return x.startVoucher(ctx, t)
	case itemTeacherWithdraw, itemFreelancerWithdraw:
		return x.startWithdraw(ctx, t, u)
	case itemStudentUpgrade:
		return x.startUpgrade(ctx, t)
	case itemTeacherAssignment:
		return x.startAssignment(ctx, t)
	case itemTeacherAvailability:
		return x.startAvailability(ctx, t)
	}
	return Menu(), nil
}

func menuHasItem(role domain.Role, item string) bool {
	for _, row := range roleMenus[role] {
		if row.ID == item {
			return true
		}
	}
	return false
}

func (x *Executor) showBalance(ctx context.Context, t *Turn, u domain.User) (Outcome, error) {
	balance, err := x.wallet.Balance(ctx, u.ID)
	if err != nil {
		return Outcome{}, newError(ErrorUpstream, "wallet_balance", err)
	}
	if err := t.Text(ctx, fmt.Sprintf(msgWalletBalance, balance)); err != nil {
		return Outcome{}, err
	}
	return Idle(), nil
}

func (x *Executor) showCourses(ctx context.Context, t *Turn, u domain.User) (Outcome, error) {
	courses, err := x.classroom.Courses(ctx, u.ID)
	if err != nil {
		return Outcome{}, newError(ErrorUpstream, "courses", err)
	}
	body := msgNoCourses
	if len(courses) > 0 {
		var b strings.Builder
		b.WriteString(msgCoursesHeader)
		for _, c := range courses {
			fmt.Fprintf(&b, "\n- %s (%d%%)", c.Title, c.Progress)
		}
		body = b.String()
	}
	if err := t.Text(ctx, body); err != nil {
		return Outcome{}, err
	}
	return Idle(), nil
}

func (x *Executor) showBookings(ctx context.Context, t *Turn, u domain.User) (Outcome, error) {
	bookings, err := x.classroom.Bookings(ctx, u.ID)
	if err != nil {
		return Outcome{}, newError(ErrorUpstream, "bookings", err)
	}
	body := msgNoBookings
	if len(bookings) > 0 {
		var b strings.Builder
		b.WriteString(msgBookingsHeader)
		for _, bk := range bookings {
			fmt.Fprintf(&b, "\n- %s with %s, %s", bk.Title, bk.With, bk.StartsAt)
		}
		body = b.String()
	}
	if err := t.Text(ctx, body); err != nil {
		return Outcome{}, err
	}
	return Idle(), nil
}

func firstName(name string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return "there"
}
