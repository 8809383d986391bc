package api

import "time"

// Credentials is the identity token pair for an authenticated session.
// It is owned by the session coordinator; every other component treats
// it as read-only. A non-nil Credentials always carries a session key.
type Credentials struct {
	AccountID  string `json:"account_id" toml:"account_id"`
	SessionKey string `json:"session_key" toml:"session_key"`
}

// User is a service account as seen by other users.
type User struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Profile is the editable portion of the authenticated user's account.
type Profile struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
}

// CalendarEntry is a single scheduled item.
type CalendarEntry struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Calendar is the periodically refreshed calendar/profile view.
type Calendar struct {
	Profile Profile         `json:"profile"`
	Entries []CalendarEntry `json:"entries"`
}

// ThreadMessage is one message inside a thread.
type ThreadMessage struct {
	ID     string    `json:"id"`
	Sender string    `json:"sender"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

// Thread is a message thread between the authenticated user and one or
// more correspondents, newest state first in refresh responses.
type Thread struct {
	ID           string          `json:"id"`
	Subject      string          `json:"subject"`
	Participants []string        `json:"participants"`
	Messages     []ThreadMessage `json:"messages"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewThread is the payload for starting a thread.
type NewThread struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

// NewAccount is the payload for account creation.
type NewAccount struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// PhotoUpdate is a remote notification that a user's photo changed.
type PhotoUpdate struct {
	Username  string    `json:"username"`
	UpdatedAt time.Time `json:"updated_at"`
}
