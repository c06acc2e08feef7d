package usecase

// User-facing copy. Every failure message ends with a way out.
const (
	msgWelcome       = "Welcome to Filiova! What would you like to do?"
	msgMenuGreeting  = "Hi %s, what would you like to do?"
	msgMenuButton    = "Menu"
	msgListFooter    = "Type MENU at any time to come back here."
	msgCancelled     = "Cancelled."
	msgGenericError  = "Something went wrong. Type MENU to start again."
	msgLockedOut     = "Too many attempts. Please try again later."
	msgAccessDenied  = "Access denied. Type MENU to continue."
	msgAlreadyLinked = "You're already logged in as %s."
	msgLoggedOut     = "You have been logged out."
	msgNotLinked     = "Please log in first."

	msgLoginEmailPrompt    = "Please enter the email address of your Filiova account, or type CANCEL."
	msgLoginPasswordPrompt = "Now enter your password."
	msgLoginFailed         = "Incorrect email or password. Try again or type CANCEL."
	msgLoginLocked         = "Too many failed attempts. Type LOGIN to try again."
	msgLoginWelcome        = "Welcome back, %s!"

	msgRegisterRolePrompt     = "Which best describes you?"
	msgRegisterNamePrompt     = "What's your full name?"
	msgRegisterEmailPrompt    = "What's your email address?"
	msgRegisterConfirmPrompt  = "Please confirm your details:\nName: %s\nEmail: %s\nRole: %s"
	msgRegisterPasswordPrompt = "Finally, choose a password (at least 8 characters, with a letter and a number)."
	msgRegisterEmailTaken     = "An account with that email already exists. Enter a different email, or type LOGIN."
	msgRegisterWelcome        = "Welcome, %s! Your account is ready."

	msgLinkPrompt   = "Enter the 6-digit code shown under Settings > WhatsApp on the Filiova website."
	msgLinkNotFound = "That code is invalid or has expired. Try again or type CANCEL."
	msgLinkWelcome  = "Your WhatsApp is now linked to %s's account."

	msgInvalidEmail    = "That doesn't look like a valid email address. Try again or type CANCEL."
	msgInvalidName     = "Please enter a name between 2 and 80 characters."
	msgInvalidPassword = "Your password needs at least 8 characters, including a letter and a number."
	msgChooseOption    = "Please choose one of the options below."

	msgWalletBalance  = "Your wallet balance is $%d."
	msgNoCourses      = "You're not enrolled in any courses yet."
	msgCoursesHeader  = "Your courses:"
	msgNoBookings     = "You have no upcoming bookings."
	msgBookingsHeader = "Your upcoming bookings:"

	msgVoucherTypePrompt      = "Who is this voucher for?"
	msgVoucherRecipientPrompt = "Enter the email address of the person receiving the voucher."
	msgVoucherAmountPrompt    = "Choose an amount, or type a whole amount between $%d and $%d."
	msgVoucherConfirmSelf     = "Buy a $%d voucher for yourself?"
	msgVoucherConfirmGift     = "Buy a $%d voucher as a gift for %s?"
	msgVoucherCreated         = "Done! Your voucher code is %s."
	msgVoucherGifted          = "Done! Voucher %s has been sent to %s."
	msgInsufficientFunds      = "Your wallet balance is too low for this. Type MENU to continue."

	msgWithdrawEmpty   = "Your wallet is empty, there is nothing to withdraw."
	msgWithdrawPrompt  = "Your balance is $%d. How much would you like to withdraw?"
	msgWithdrawInvalid = "Please enter a whole amount between $1 and $%d."
	msgWithdrawConfirm = "Withdraw $%d to your registered payout account?"
	msgWithdrawDone    = "Withdrawal of $%d requested. Reference: %s."

	msgUpgradePrompt = "Upgrade your account to freelancer? You'll be able to offer services and receive payments."
	msgUpgradeDone   = "You're now a freelancer!"

	msgAssignmentTitlePrompt       = "What's the assignment title?"
	msgAssignmentDescriptionPrompt = "Describe the assignment."
	msgAssignmentDuePrompt         = "When is it due? Use YYYY-MM-DD."
	msgAssignmentConfirm           = "Create this assignment?\n%s\nDue %s"
	msgAssignmentCreated           = "Assignment created (ref %s)."
	msgInvalidTitle                = "Please enter a title between 3 and 120 characters."
	msgInvalidDescription          = "Please enter a description of at most 1000 characters."
	msgInvalidDueDate              = "Please enter a date in YYYY-MM-DD format, today or later."

	msgAvailabilityDaysPrompt  = "Which days are you available? For example: Mon, Wed, Fri"
	msgAvailabilityHoursPrompt = "What hours? For example: 09:00-17:00"
	msgAvailabilitySaved       = "Availability saved: %s, %s-%s."
	msgInvalidDays             = "Please list weekdays such as Mon, Tue, Wed."
	msgInvalidHours            = "Please enter hours as HH:MM-HH:MM, with the start before the end."

	msgAdminWelcome         = "Admin session started. It expires after 15 minutes."
	msgAdminMenu            = "Admin menu"
	msgAdminExpired         = "Your admin session has expired. Type MENU to continue."
	msgAdminStats           = "Users: %d\nActive today: %d\nRevenue: $%d"
	msgAdminBroadcastPrompt = "Type the message to broadcast to all users."
	msgAdminBroadcastBad    = "The message must be between 1 and 900 characters."
	msgAdminBroadcastAsk    = "Send this to all users?\n\n%s"
	msgAdminBroadcastSent   = "Broadcast sent to %d users."
	msgAdminTargetPrompt    = "Enter the user's email or phone number."
	msgAdminTargetNotFound  = "No user found for %q. Try again or type CANCEL."
	msgAdminUserDetails     = "%s\nEmail: %s\nPhone: %s\nRole: %s\nActive: %t\nAdmin: %t"
	msgAdminDeleteAsk       = "Deactivate %s? They will no longer be able to log in."
	msgAdminDeleteSelf      = "You can't deactivate your own account. Enter another user, or type CANCEL."
	msgAdminDeleted         = "%s has been deactivated."
	msgAdminExit            = "Admin session closed."
)
