package domain

import "strings"

// SessionMode is the state of the client session state machine.
type SessionMode int

const (
	ModeAnonymousLogin SessionMode = iota
	ModeAnonymousSignup
	ModeAuthenticating
	ModeAuthenticated
)

func (m SessionMode) String() string {
	switch m {
	case ModeAnonymousLogin:
		return "ANONYMOUS_LOGIN"
	case ModeAnonymousSignup:
		return "ANONYMOUS_SIGNUP"
	case ModeAuthenticating:
		return "AUTHENTICATING"
	case ModeAuthenticated:
		return "AUTHENTICATED"
	default:
		return "UNKNOWN"
	}
}

// Anonymous reports whether the mode is one of the two logged-out modes.
func (m SessionMode) Anonymous() bool {
	return m == ModeAnonymousLogin || m == ModeAnonymousSignup
}

// Section is one of the mutually exclusive top-level views of the app.
type Section string

const (
	SectionNone     Section = ""
	SectionBalance  Section = "BALANCE"
	SectionTransfer Section = "TRANSFER"
	SectionSearch   Section = "SEARCH"
	SectionRequest  Section = "REQUEST"
	SectionRequests Section = "REQUESTS"
	SectionHistory  Section = "HISTORY"
	SectionCredit   Section = "CREDIT"
)

// Sections lists every navigable section in menu order.
var Sections = []Section{
	SectionBalance,
	SectionTransfer,
	SectionSearch,
	SectionRequest,
	SectionRequests,
	SectionHistory,
	SectionCredit,
}

// ParseSection resolves a section identifier, ignoring case and surrounding
// whitespace. Unknown identifiers yield an *ErrNavigation.
func ParseSection(id string) (Section, error) {
	want := Section(strings.ToUpper(strings.TrimSpace(id)))
	for _, s := range Sections {
		if s == want {
			return s, nil
		}
	}
	return SectionNone, &ErrNavigation{Section: id}
}

// SignupForm holds the signup fields as entered by the user.
type SignupForm struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	PasswordConfirm string
}

// LoginForm holds the login fields as entered by the user.
type LoginForm struct {
	Email    string
	Password string
}
