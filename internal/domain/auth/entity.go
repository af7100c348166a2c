// internal/domain/auth/entity.go
package auth

// UserRecord is the immutable user snapshot carried in auth responses. It is
// replaced wholesale on every successful authentication, never patched.
type UserRecord struct {
	ID                 string   `json:"id"`
	Email              string   `json:"email"`
	FirstName          string   `json:"firstName"`
	LastName           string   `json:"lastName"`
	CompanyName        string   `json:"companyName,omitempty"`
	IsBlock            bool     `json:"isBlock"`
	LanguageSetByAdmin []string `json:"languageSetByAdmin,omitempty"`
}

// FullName joins first and last name for display.
func (u *UserRecord) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// ChallengeStatus is the lifecycle state of a BankID order.
type ChallengeStatus string

const (
	ChallengePending ChallengeStatus = "pending"
	ChallengeSuccess ChallengeStatus = "success"
	ChallengeFailed  ChallengeStatus = "failed"
)

// BankIDChallenge correlates an initiated BankID order with its polled
// status. It exists from order initiation until a terminal status or
// user cancellation.
type BankIDChallenge struct {
	QRPayload     string
	OrderRef      string
	QRStartToken  string
	QRStartSecret string
	Status        ChallengeStatus
}

// Active reports whether the challenge may still be polled.
func (c *BankIDChallenge) Active() bool {
	return c != nil && c.OrderRef != "" && c.Status == ChallengePending
}

// BankID login modes accepted by the backend.
const (
	ModeSameDevice  = "sameDevice"
	ModeOtherDevice = "otherDevice"
)
