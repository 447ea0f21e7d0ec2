package signin

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrMissingAgentMapping  = errors.New("no spreadsheet configured for agent")
	ErrMissingAddressSheet  = errors.New("address worksheet is missing")
	ErrEmptyAddressList     = errors.New("address list is empty")
	ErrMissingRequiredField = errors.New("required field is empty")
	ErrWorksheetNotFound    = errors.New("worksheet for address is missing")
	ErrNoAddressSelected    = errors.New("no house address selected")
	ErrWorksheetClash       = errors.New("addresses share a worksheet title")
)

// User-facing messages.
const (
	MsgMustLogIn        = "You must log in first."
	MsgPageNotFound     = "Page not found. Please log in again."
	MsgSessionExpired   = "Your session expired. Please log in again."
	MsgInvalidLogin     = "Invalid username or password."
	MsgConfiguration    = "Login is not configured correctly. Please contact the admin."
	MsgMissingAddresses = "The 'Address' sheet is missing in the spreadsheet. Please contact the admin."
	MsgEmptyAddresses   = "No house addresses found. Please add addresses to the 'Address' sheet and try again."
	MsgRequiredFields   = "Please fill in all required fields."
	MsgGateway          = "The spreadsheet service is unavailable. Please try again."
	MsgRecorded         = "Thank you for signing in!"
)

// ConfigurationError reports a credential store that is missing or malformed.
// ConfigurationError reports a credential store that is missing or malformed.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// MappingError names the agent without a spreadsheet.
type MappingError struct {
	Agent string
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingAgentMapping, e.Agent)
}

func (e *MappingError) Is(target error) bool { return target == ErrMissingAgentMapping }

func (e *MappingError) Unwrap() error { return e.Err }

// WorksheetError names the address whose worksheet disappeared.
type WorksheetError struct {
	Address string
	Err     error
}

func (e *WorksheetError) Error() string {
	return fmt.Sprintf("%v: %q", ErrWorksheetNotFound, e.Address)
}

func (e *WorksheetError) Is(target error) bool { return target == ErrWorksheetNotFound }

func (e *WorksheetError) Unwrap() error { return e.Err }

// WorksheetClashError names two listed addresses whose worksheet titles are
// equal ignoring case.
type WorksheetClashError struct {
	Address string
	Other   string
	Title   string
}

func (e *WorksheetClashError) Error() string {
	return fmt.Sprintf("%v: %q and %q both map to %q", ErrWorksheetClash, e.Other, e.Address, e.Title)
}

func (e *WorksheetClashError) Is(target error) bool { return target == ErrWorksheetClash }

// MissingFieldError lists the required draft fields that were empty.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingRequiredField, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingRequiredField }

// GatewayError wraps a failure of the spreadsheet service.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("spreadsheet %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Severity says how a message is shown.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// UserMessage maps an error onto the text shown to the agent. Internal detail
// never leaks; unknown errors read as a spreadsheet outage.
func UserMessage(err error) (string, Severity) {
	var (
		cfgErr     *ConfigurationError
		mappingErr *MappingError
		wsErr      *WorksheetError
		clashErr   *WorksheetClashError
	)
	switch {
	case err == nil:
		return "", SeverityError
	case errors.As(err, &cfgErr):
		return MsgConfiguration, SeverityError
	case errors.Is(err, ErrInvalidCredentials):
		return MsgInvalidLogin, SeverityError
	case errors.As(err, &mappingErr):
		return fmt.Sprintf("No spreadsheet is configured for %s. Please contact the admin.", mappingErr.Agent), SeverityError
	case errors.Is(err, ErrMissingAddressSheet):
		return MsgMissingAddresses, SeverityError
	case errors.Is(err, ErrEmptyAddressList):
		return MsgEmptyAddresses, SeverityError
	case errors.Is(err, ErrMissingRequiredField), errors.Is(err, ErrNoAddressSelected):
		return MsgRequiredFields, SeverityWarning
	case errors.As(err, &clashErr):
		return fmt.Sprintf("The addresses '%s' and '%s' would share a worksheet. Please contact the admin.", clashErr.Other, clashErr.Address), SeverityError
	case errors.As(err, &wsErr):
		return fmt.Sprintf("Worksheet for '%s' is missing. Please contact the admin.", wsErr.Address), SeverityError
	default:
		return MsgGateway, SeverityError
	}
}

// SessionFatal reports errors that stop the intake page until an admin fixes
// the spreadsheet or secrets.
func SessionFatal(err error) bool {
	var cfgErr *ConfigurationError
	return errors.Is(err, ErrMissingAgentMapping) ||
		errors.Is(err, ErrMissingAddressSheet) ||
		errors.Is(err, ErrEmptyAddressList) ||
		errors.Is(err, ErrWorksheetClash) ||
		errors.As(err, &cfgErr)
}
