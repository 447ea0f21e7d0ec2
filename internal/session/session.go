// Package session holds the per-visitor state of the sign-in portal and the
// stores that persist it between requests.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/phillip-england/openhouse/internal/security"
)

// Page is the screen a session is on. Values other than the two constants are
// kept as-is so the controller can detect and reset them.
type Page string

const (
	PageLogin  Page = "login"
	PageIntake Page = "customer_input"
)

// Realtor answers "Do you need a realtor?".
type Realtor string

const (
	RealtorYes Realtor = "Yes"
	RealtorNo  Realtor = "No"
)

// ParseRealtor maps form input onto a Realtor. Anything that is not "No"
// (case-insensitive) is Yes, the default answer.
func ParseRealtor(raw string) Realtor {
	if strings.EqualFold(strings.TrimSpace(raw), string(RealtorNo)) {
		return RealtorNo
	}
	return RealtorYes
}

// Bag keys. They match the keys written by earlier releases of the portal.
const (
	KeyPage            = "page"
	KeyAgent           = "authenticated_agent"
	KeySelectedAddress = "selected_house_address"
	KeyVisitorName     = "visitor_name"
	KeyEmail           = "email"
	KeyPhone           = "phone"
	KeyNeedRealtor     = "need_realtor"
	KeyCurrentAddress  = "current_address"
	KeyComments        = "comments"
	KeyCSRFToken       = "csrf_token"
	KeyFlashError      = "flash_error"
	KeyFlashWarning    = "flash_warning"
	KeyFlashNotice     = "flash_notice"
)

const tokenLength = 32

// Draft is the visitor form as typed so far.
type Draft struct {
	Name           string
	Email          string
	Phone          string
	NeedsRealtor   Realtor
	CurrentAddress string
	Comments       string
}

func NewDraft() Draft {
	return Draft{NeedsRealtor: RealtorYes}
}

// Flashes are one-shot messages shown on the next render.
type Flashes struct {
	Error   string
	Warning string
	Notice  string
}

type Session struct {
	ID              string
	Page            Page
	Agent           string
	SelectedAddress string
	Draft           Draft
	CSRFToken       string
	Flash           Flashes
	ExpiresAt       time.Time
}

// New starts an unauthenticated session on the login page.
func New(ttl time.Duration) (*Session, error) {
	id, err := security.NewToken(tokenLength)
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	csrf, err := security.NewToken(tokenLength)
	if err != nil {
		return nil, fmt.Errorf("generate csrf token: %w", err)
	}
	return &Session{
		ID:        id,
		Page:      PageLogin,
		Draft:     NewDraft(),
		CSRFToken: csrf,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (s *Session) Authenticated() bool {
	return s.Agent != ""
}

// ResetDraft clears the visitor form. The selected address is kept.
func (s *Session) ResetDraft() {
	s.Draft = NewDraft()
}

// Logout drops everything but the session identity.
func (s *Session) Logout() {
	s.Page = PageLogin
	s.Agent = ""
	s.SelectedAddress = ""
	s.Draft = NewDraft()
	s.Flash = Flashes{}
}

// TakeFlashes returns the pending messages and clears them.
func (s *Session) TakeFlashes() Flashes {
	f := s.Flash
	s.Flash = Flashes{}
	return f
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Touch extends the session by ttl from now.
func (s *Session) Touch(now time.Time, ttl time.Duration) {
	s.ExpiresAt = now.Add(ttl)
}

// Values flattens the session into its key-value bag. Empty optional entries
// are omitted.
func (s *Session) Values() map[string]string {
	values := map[string]string{
		KeyPage:           string(s.Page),
		KeyVisitorName:    s.Draft.Name,
		KeyEmail:          s.Draft.Email,
		KeyPhone:          s.Draft.Phone,
		KeyNeedRealtor:    string(s.Draft.NeedsRealtor),
		KeyCurrentAddress: s.Draft.CurrentAddress,
		KeyComments:       s.Draft.Comments,
		KeyCSRFToken:      s.CSRFToken,
	}
	optional := map[string]string{
		KeyAgent:           s.Agent,
		KeySelectedAddress: s.SelectedAddress,
		KeyFlashError:      s.Flash.Error,
		KeyFlashWarning:    s.Flash.Warning,
		KeyFlashNotice:     s.Flash.Notice,
	}
	for k, v := range optional {
		if v != "" {
			values[k] = v
		}
	}
	return values
}

// FromValues rebuilds a session from its bag. A missing page means the login
// page; an invalid realtor answer reads as Yes.
func FromValues(id string, values map[string]string, expiresAt time.Time) *Session {
	page := Page(values[KeyPage])
	if _, ok := values[KeyPage]; !ok {
		page = PageLogin
	}
	return &Session{
		ID:              id,
		Page:            page,
		Agent:           values[KeyAgent],
		SelectedAddress: values[KeySelectedAddress],
		Draft: Draft{
			Name:           values[KeyVisitorName],
			Email:          values[KeyEmail],
			Phone:          values[KeyPhone],
			NeedsRealtor:   ParseRealtor(values[KeyNeedRealtor]),
			CurrentAddress: values[KeyCurrentAddress],
			Comments:       values[KeyComments],
		},
		CSRFToken: values[KeyCSRFToken],
		Flash: Flashes{
			Error:   values[KeyFlashError],
			Warning: values[KeyFlashWarning],
			Notice:  values[KeyFlashNotice],
		},
		ExpiresAt: expiresAt,
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	return &c
}
