package signin

import (
	"context"
	"errors"
	"log"

	"github.com/phillip-england/openhouse/internal/session"
	"github.com/phillip-england/openhouse/internal/sheets"
)

type ActionKind int

const (
	ActionView ActionKind = iota
	ActionLogin
	ActionSelectAddress
	ActionSubmit
	ActionLogout
)

func (k ActionKind) String() string {
	switch k {
	case ActionView:
		return "view"
	case ActionLogin:
		return "login"
	case ActionSelectAddress:
		return "select-address"
	case ActionSubmit:
		return "submit"
	case ActionLogout:
		return "logout"
	default:
		return "unknown"
	}
}

// Action is one user interaction.
type Action struct {
	Kind     ActionKind
	Username string
	Password string
	Address  string
	Draft    session.Draft
}

func View() Action { return Action{Kind: ActionView} }

func Login(username, password string) Action {
	return Action{Kind: ActionLogin, Username: username, Password: password}
}

func SelectAddress(address string) Action {
	return Action{Kind: ActionSelectAddress, Address: address}
}

func Submit(address string, draft session.Draft) Action {
	return Action{Kind: ActionSubmit, Address: address, Draft: draft}
}

func Logout() Action { return Action{Kind: ActionLogout} }

// Screen is what the portal renders after a dispatch.
type Screen struct {
	Page            session.Page
	Agent           string
	Addresses       []string
	SelectedAddress string
	Draft           session.Draft
	Flash           session.Flashes

	// Halted is set when the intake page cannot show its form until an admin
	// fixes the agent's spreadsheet or the secrets file.
	Halted bool

	// Recorded is the row appended by a successful submit.
	Recorded *VisitorRecord
}

// Controller routes each action to the flow of the session's current page.
type Controller struct {
	auth   *Authenticator
	intake *IntakeFlow
}

func NewController(auth *Authenticator, intake *IntakeFlow) *Controller {
	return &Controller{auth: auth, intake: intake}
}

// Dispatch applies one action to sess and returns the screen to render. It
// guarantees sess.Page == PageIntake only with an authenticated agent.
func (c *Controller) Dispatch(ctx context.Context, sess *session.Session, action Action) Screen {
	if action.Kind == ActionLogout {
		sess.Logout()
		return c.loginScreen(sess)
	}

	if sess.Page != session.PageLogin && !sess.Authenticated() {
		sess.Page = session.PageLogin
		sess.Flash.Error = MsgMustLogIn
		return c.loginScreen(sess)
	}

	switch sess.Page {
	case session.PageLogin:
		if action.Kind != ActionLogin {
			return c.loginScreen(sess)
		}
		if _, err := c.auth.Login(sess, action.Username, action.Password); err != nil {
			var cfgErr *ConfigurationError
			if errors.As(err, &cfgErr) {
				log.Printf("login %q: %v", action.Username, err)
			}
			c.flash(sess, err)
			return c.loginScreen(sess)
		}
		log.Printf("agent %q signed in", sess.Agent)
		return c.intakeScreen(ctx, sess, View())
	case session.PageIntake:
		return c.intakeScreen(ctx, sess, action)
	default:
		log.Printf("session %s on unknown page %q", sess.ID, sess.Page)
		sess.Logout()
		sess.Flash.Error = MsgPageNotFound
		return c.loginScreen(sess)
	}
}

func (c *Controller) flash(sess *session.Session, err error) {
	msg, severity := UserMessage(err)
	if severity == SeverityWarning {
		sess.Flash.Warning = msg
		return
	}
	sess.Flash.Error = msg
}

func (c *Controller) loginScreen(sess *session.Session) Screen {
	return Screen{
		Page:  session.PageLogin,
		Flash: sess.TakeFlashes(),
	}
}

func (c *Controller) intakeScreen(ctx context.Context, sess *session.Session, action Action) Screen {
	screen := Screen{Page: session.PageIntake, Agent: sess.Agent}

	ss, addresses, err := c.prepare(ctx, sess.Agent)
	if err != nil {
		log.Printf("prepare intake for %q: %v", sess.Agent, err)
		c.flash(sess, err)
		screen.Halted = SessionFatal(err)
		screen.Draft = sess.Draft
		screen.SelectedAddress = sess.SelectedAddress
		screen.Flash = sess.TakeFlashes()
		return screen
	}

	if !contains(addresses, sess.SelectedAddress) {
		sess.SelectedAddress = addresses[0]
	}

	switch action.Kind {
	case ActionSelectAddress:
		if contains(addresses, action.Address) {
			sess.SelectedAddress = action.Address
		}
	case ActionSubmit:
		sess.Draft = action.Draft
		if action.Address != "" && !contains(addresses, action.Address) {
			log.Printf("submit for %q at unlisted address %q", sess.Agent, action.Address)
			c.flash(sess, &WorksheetError{Address: action.Address, Err: sheets.ErrWorksheetNotFound})
			break
		}
		if action.Address != "" {
			sess.SelectedAddress = action.Address
		}
		record, err := c.intake.Submit(ctx, sess, ss)
		if err != nil {
			log.Printf("submit for %q at %q: %v", sess.Agent, sess.SelectedAddress, err)
			c.flash(sess, err)
			break
		}
		sess.Flash.Notice = MsgRecorded
		screen.Recorded = &record
	}

	screen.Addresses = addresses
	screen.SelectedAddress = sess.SelectedAddress
	screen.Draft = sess.Draft
	screen.Flash = sess.TakeFlashes()
	return screen
}

// prepare resolves the agent's spreadsheet, reads the address list and makes
// sure each address has its worksheet.
func (c *Controller) prepare(ctx context.Context, agent string) (sheets.Spreadsheet, []string, error) {
	ss, err := c.intake.ResolveAgentSpreadsheet(ctx, agent)
	if err != nil {
		return nil, nil, err
	}
	addresses, err := c.intake.LoadAddresses(ctx, ss)
	if err != nil {
		return nil, nil, err
	}
	if err := c.intake.EnsureWorksheets(ctx, ss, addresses); err != nil {
		return nil, nil, err
	}
	return ss, addresses, nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
