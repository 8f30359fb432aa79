package domain

import "time"

// Reminder is a one-shot or recurring delivery owned by a user.
type Reminder struct {
	ID          int64
	OwnerID     int64
	ChannelID   int64 // chat the reminder is delivered to
	CreatedAt   time.Time
	FireAt      time.Time // UTC
	Content     string
	MessageID   int64  // message that created the reminder
	MessageLink string //
	Repeat      Repeat
}

// Done reports whether the target instant has passed.
func (r Reminder) Done(now time.Time) bool {
	return now.After(r.FireAt)
}

// Draft carries the caller-supplied part of a new reminder.
type Draft struct {
	OwnerID     int64
	ChannelID   int64
	FireAt      time.Time
	Content     string
	MessageID   int64
	MessageLink string
	Repeat      Repeat
}
