package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

func (x *Executor) startAssignment(ctx context.Context, t *Turn) (Outcome, error) {
	if err := t.Text(ctx, msgAssignmentTitlePrompt); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowAssignmentTitle, domain.FlowData{Assignment: &domain.AssignmentDraft{}}), nil
}

func (x *Executor) assignmentTitle(ctx context.Context, t *Turn) (Outcome, error) {
	title := strings.TrimSpace(t.Event.Text)
	if n := utf8.RuneCountInString(title); t.Event.IsChoice() || n < minTitleLen || n > maxTitleLen {
		return Stay(), t.Text(ctx, msgInvalidTitle)
	}
	if err := t.Text(ctx, msgAssignmentDescriptionPrompt); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowAssignmentDescription, domain.FlowData{Assignment: &domain.AssignmentDraft{Title: title}}), nil
}

func (x *Executor) assignmentDescription(ctx context.Context, t *Turn) (Outcome, error) {
	desc := strings.TrimSpace(t.Event.Text)
	if n := utf8.RuneCountInString(desc); t.Event.IsChoice() || n == 0 || n > maxDescriptionLen {
		return Stay(), t.Text(ctx, msgInvalidDescription)
	}
	data := t.Data()
	if data.Assignment == nil || data.Assignment.Title == "" {
		return x.startAssignment(ctx, t)
	}
	data.Assignment.Description = desc
	if err := t.Text(ctx, msgAssignmentDuePrompt); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowAssignmentDue, data), nil
}

func (x *Executor) assignmentDue(ctx context.Context, t *Turn) (Outcome, error) {
	due, ok := validDueDate(t.Event.Input(), t.Now)
	if !ok {
		return Stay(), t.Text(ctx, msgInvalidDueDate)
	}
	data := t.Data()
	if data.Assignment == nil || data.Assignment.Description == "" {
		return x.startAssignment(ctx, t)
	}
	data.Assignment.DueDate = due
	if err := x.askAssignmentConfirm(ctx, t, data.Assignment); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowAssignmentConfirm, data), nil
}

func (x *Executor) askAssignmentConfirm(ctx context.Context, t *Turn, d *domain.AssignmentDraft) error {
	return t.Buttons(ctx, fmt.Sprintf(msgAssignmentConfirm, d.Title, d.DueDate), confirmButtons...)
}

func (x *Executor) assignmentConfirm(ctx context.Context, t *Turn) (Outcome, error) {
	data := t.Data()
	if data.Assignment == nil || data.Assignment.DueDate == "" {
		return x.startAssignment(ctx, t)
	}
	if !isConfirm(t.Event) {
		return Stay(), x.askAssignmentConfirm(ctx, t, data.Assignment)
	}
	u, ok, err := x.linkedUser(ctx, t)
	if err != nil || !ok {
		return Menu(), err
	}
	ref, err := x.classroom.CreateAssignment(ctx, u.ID, *data.Assignment)
	if err != nil {
		return Outcome{}, newError(ErrorUpstream, "create_assignment", err)
	}
	x.log.Info("assignment created", "address", t.Address(), "user_id", u.ID, "ref", ref)
	return Idle(), t.Text(ctx, fmt.Sprintf(msgAssignmentCreated, ref))
}

func (x *Executor) startAvailability(ctx context.Context, t *Turn) (Outcome, error) {
	if err := t.Text(ctx, msgAvailabilityDaysPrompt); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowAvailabilityDays, domain.FlowData{Availability: &domain.AvailabilityDraft{}}), nil
}

func (x *Executor) availabilityDays(ctx context.Context, t *Turn) (Outcome, error) {
	days, ok := parseWeekdays(t.Event.Input())
	if !ok {
		return Stay(), t.Text(ctx, msgInvalidDays)
	}
	if err := t.Text(ctx, msgAvailabilityHoursPrompt); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowAvailabilityHours, domain.FlowData{Availability: &domain.AvailabilityDraft{Days: days}}), nil
}

func (x *Executor) availabilityHours(ctx context.Context, t *Turn) (Outcome, error) {
	from, to, ok := parseHours(t.Event.Input())
	if !ok {
		return Stay(), t.Text(ctx, msgInvalidHours)
	}
	data := t.Data()
	if data.Availability == nil || len(data.Availability.Days) == 0 {
		return x.startAvailability(ctx, t)
	}
	u, ok, err := x.linkedUser(ctx, t)
	if err != nil || !ok {
		return Menu(), err
	}
	if err := x.classroom.SetAvailability(ctx, u.ID, data.Availability.Days, from, to); err != nil {
		return Outcome{}, newError(ErrorUpstream, "set_availability", err)
	}
	days := strings.Join(data.Availability.Days, ", ")
	return Idle(), t.Text(ctx, fmt.Sprintf(msgAvailabilitySaved, days, from, to))
}
