package types

// Mode selects how a conversation is captured
type Mode string

const (
	// ModeText decodes mounted messages into an HTML text log
	ModeText Mode = "text"
	// ModeScreenshot captures the thread as numbered image files
	ModeScreenshot Mode = "screenshot"
)

// Valid reports whether m is a known export mode
func (m Mode) Valid() bool {
	return m == ModeText || m == ModeScreenshot
}

// Target is one conversation partner whose thread is exported
type Target struct {
	ID  string `json:"id"`  // profile id or vanity name, used for the artifact name
	URL string `json:"url"` // raw input the id was parsed from
}

// Record is one decoded message
type Record struct {
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

// Credentials are the account used to log in
type Credentials struct {
	Email    string
	Password string
}
