package domain

// SessionRequirement is the next step a caller must take before an upstream
// session key can be used.
type SessionRequirement string

const (
	RequiresNothing        SessionRequirement = "nothing"
	RequiresSpecifyClient  SessionRequirement = "specify_client"
	RequiresOTPCode        SessionRequirement = "otp_code"
	RequiresAnswerQuestion SessionRequirement = "answer_question"
)

// Client is one of the accounts (clients) a corporate bank login has access to.
type Client struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session is the outcome of an upstream login.
type Session struct {
	Key      string             `json:"key"`
	Requires SessionRequirement `json:"requires"`
	Clients  []Client           `json:"clients,omitempty"`
}

// Ready reports whether the key can be used for data operations as is.
func (s Session) Ready() bool {
	return s.Requires == RequiresNothing
}
