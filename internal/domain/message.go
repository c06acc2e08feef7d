package domain

// Button is one reply button of an interactive message.
type Button struct {
	ID    string
	Title string
}

// ListRow is one selectable row of a list message.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups rows under a title.
type ListSection struct {
	Title string
	Rows  []ListRow
}
