package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

const voucherChoicePrefix = "voucher_"

var (
	voucherTypeButtons = []domain.Button{
		{ID: "voucher_self", Title: "For me"},
		{ID: "voucher_gift", Title: "As a gift"},
		{ID: choiceCancel, Title: "Cancel"},
	}

	voucherAmounts = domain.ListSection{
		Title: "Amounts",
		Rows: []domain.ListRow{
			{ID: "voucher_10", Title: "$10"},
			{ID: "voucher_25", Title: "$25"},
			{ID: "voucher_50", Title: "$50"},
			{ID: "voucher_100", Title: "$100"},
		},
	}
)

// linkedUser returns the linked account, or tells the party to log in.
func (x *Executor) linkedUser(ctx context.Context, t *Turn) (domain.User, bool, error) {
	u, ok, err := t.User(ctx)
	if err != nil {
		return domain.User{}, false, err
	}
	if !ok {
		return domain.User{}, false, t.Text(ctx, msgNotLinked)
	}
	return u, true, nil
}

func (x *Executor) startVoucher(ctx context.Context, t *Turn) (Outcome, error) {
	if err := t.Buttons(ctx, msgVoucherTypePrompt, voucherTypeButtons...); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowVoucherType, domain.FlowData{Voucher: &domain.VoucherDraft{}}), nil
}

func (x *Executor) voucherType(ctx context.Context, t *Turn) (Outcome, error) {
	switch strings.ToLower(t.Event.Input()) {
	case "voucher_self", "me", "self":
		if err := x.askVoucherAmount(ctx, t); err != nil {
			return Outcome{}, err
		}
		return Goto(domain.FlowVoucherAmount, domain.FlowData{Voucher: &domain.VoucherDraft{}}), nil
	case "voucher_gift", "gift":
		if err := t.Text(ctx, msgVoucherRecipientPrompt); err != nil {
			return Outcome{}, err
		}
		return Goto(domain.FlowVoucherRecipient, domain.FlowData{Voucher: &domain.VoucherDraft{IsGift: true}}), nil
	}
	return Stay(), t.Buttons(ctx, msgVoucherTypePrompt, voucherTypeButtons...)
}

func (x *Executor) voucherRecipient(ctx context.Context, t *Turn) (Outcome, error) {
	email, ok := validEmail(t.Event.Input())
	if !ok {
		return Stay(), t.Text(ctx, msgInvalidEmail)
	}
	data := t.Data()
	if data.Voucher == nil {
		data.Voucher = &domain.VoucherDraft{}
	}
	data.Voucher.IsGift = true
	data.Voucher.RecipientEmail = email
	if err := x.askVoucherAmount(ctx, t); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowVoucherAmount, data), nil
}

func (x *Executor) askVoucherAmount(ctx context.Context, t *Turn) error {
	body := fmt.Sprintf(msgVoucherAmountPrompt, minVoucherAmount, maxVoucherAmount)
	return t.List(ctx, body, "Amounts", voucherAmounts)
}

func (x *Executor) voucherAmount(ctx context.Context, t *Turn) (Outcome, error) {
	input := t.Event.Input()
	if t.Event.IsChoice() {
		input = strings.TrimPrefix(input, voucherChoicePrefix)
	}
	amount, ok := parseAmount(input, minVoucherAmount, maxVoucherAmount)
	if !ok {
		return Stay(), x.askVoucherAmount(ctx, t)
	}
	data := t.Data()
	if data.Voucher == nil {
		return x.startVoucher(ctx, t)
	}
	data.Voucher.Amount = amount
	if err := x.askVoucherConfirm(ctx, t, data.Voucher); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowVoucherConfirm, data), nil
}

func (x *Executor) askVoucherConfirm(ctx context.Context, t *Turn, d *domain.VoucherDraft) error {
	body := fmt.Sprintf(msgVoucherConfirmSelf, d.Amount)
	if d.IsGift {
		body = fmt.Sprintf(msgVoucherConfirmGift, d.Amount, d.RecipientEmail)
	}
	return t.Buttons(ctx, body, confirmButtons...)
}

func (x *Executor) voucherConfirm(ctx context.Context, t *Turn) (Outcome, error) {
	data := t.Data()
	if data.Voucher == nil || data.Voucher.Amount == 0 {
		return x.startVoucher(ctx, t)
	}
	if !isConfirm(t.Event) {
		return Stay(), x.askVoucherConfirm(ctx, t, data.Voucher)
	}
	u, ok, err := x.linkedUser(ctx, t)
	if err != nil || !ok {
		return Menu(), err
	}

	v, err := x.wallet.PurchaseVoucher(ctx, u.ID, *data.Voucher)
	if errors.Is(err, domain.ErrInsufficientFunds) {
		return Idle(), t.Text(ctx, msgInsufficientFunds)
	}
	if err != nil {
		return Outcome{}, newError(ErrorUpstream, "purchase_voucher", err)
	}
	x.log.Info("voucher purchased", "address", t.Address(), "user_id", u.ID, "amount", v.Amount, "gift", data.Voucher.IsGift)

	body := fmt.Sprintf(msgVoucherCreated, v.Code)
	if data.Voucher.IsGift {
		body = fmt.Sprintf(msgVoucherGifted, v.Code, data.Voucher.RecipientEmail)
	}
	return Idle(), t.Text(ctx, body)
}

func (x *Executor) startWithdraw(ctx context.Context, t *Turn, u domain.User) (Outcome, error) {
	balance, err := x.wallet.Balance(ctx, u.ID)
	if err != nil {
		return Outcome{}, newError(ErrorUpstream, "wallet_balance", err)
	}
	if balance <= 0 {
		return Idle(), t.Text(ctx, msgWithdrawEmpty)
	}
	if err := t.Text(ctx, fmt.Sprintf(msgWithdrawPrompt, balance)); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowWithdrawAmount, domain.FlowData{Withdraw: &domain.WithdrawDraft{}}), nil
}

func (x *Executor) withdrawAmount(ctx context.Context, t *Turn) (Outcome, error) {
	u, ok, err := x.linkedUser(ctx, t)
	if err != nil || !ok {
		return Menu(), err
	}
	balance, err := x.wallet.Balance(ctx, u.ID)
	if err != nil {
		return Outcome{}, newError(ErrorUpstream, "wallet_balance", err)
	}
	if balance <= 0 {
		return Idle(), t.Text(ctx, msgWithdrawEmpty)
	}
	amount, ok := parseAmount(t.Event.Input(), 1, balance)
	if !ok {
		return Stay(), t.Text(ctx, fmt.Sprintf(msgWithdrawInvalid, balance))
	}
	if err := t.Buttons(ctx, fmt.Sprintf(msgWithdrawConfirm, amount), confirmButtons...); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowWithdrawConfirm, domain.FlowData{Withdraw: &domain.WithdrawDraft{Amount: amount}}), nil
}

func (x *Executor) withdrawConfirm(ctx context.Context, t *Turn) (Outcome, error) {
	data := t.Data()
	if data.Withdraw == nil || data.Withdraw.Amount <= 0 {
		return Idle(), t.Text(ctx, msgGenericError)
	}
	if !isConfirm(t.Event) {
		return Stay(), t.Buttons(ctx, fmt.Sprintf(msgWithdrawConfirm, data.Withdraw.Amount), confirmButtons...)
	}
	u, ok, err := x.linkedUser(ctx, t)
	if err != nil || !ok {
		return Menu(), err
	}

	w, err := x.wallet.Withdraw(ctx, u.ID, data.Withdraw.Amount)
	if errors.Is(err, domain.ErrInsufficientFunds) {
		return Idle(), t.Text(ctx, msgInsufficientFunds)
	}
	if err != nil {
		return Outcome{}, newError(ErrorUpstream, "withdraw", err)
	}
	x.log.Info("withdrawal requested", "address", t.Address(), "user_id", u.ID, "amount", w.Amount)
	return Idle(), t.Text(ctx, fmt.Sprintf(msgWithdrawDone, w.Amount, w.Reference))
}

func (x *Executor) startUpgrade(ctx context.Context, t *Turn) (Outcome, error) {
	if err := t.Buttons(ctx, msgUpgradePrompt, confirmButtons...); err != nil {
		return Outcome{}, err
	}
	return Goto(domain.FlowUpgradeConfirm, domain.FlowData{}), nil
}

func (x *Executor) upgradeConfirm(ctx context.Context, t *Turn) (Outcome, error) {
	if !isConfirm(t.Event) {
		return Stay(), t.Buttons(ctx, msgUpgradePrompt, confirmButtons...)
	}
	u, ok, err := x.linkedUser(ctx, t)
	if err != nil || !ok {
		return Menu(), err
	}
	upgraded, err := x.accounts.UpgradeToFreelancer(ctx, u.ID)
	if err != nil {
		return Outcome{}, newError(ErrorUpstream, "upgrade", err)
	}
	t.setUser(upgraded)
	x.log.Info("account upgraded", "address", t.Address(), "user_id", u.ID, "role", upgraded.Role)
	if err := t.Text(ctx, msgUpgradeDone); err != nil {
		return Outcome{}, err
	}
	return Menu(), nil
}

