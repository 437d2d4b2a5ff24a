package domain

import "time"

// Entry is one recorded authentication event.
type Entry struct {
	ID        string
	AccountID string
	Action    string
	Origin    string
	Device    string
	Detail    string
	CreatedAt time.Time
}
