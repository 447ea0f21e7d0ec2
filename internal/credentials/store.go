// Package credentials loads agent logins, agent spreadsheet mappings and the
// spreadsheet service account from a secrets file.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/phillip-england/openhouse/internal/security"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownUser    = errors.New("unknown user")
	ErrNoSpreadsheet  = errors.New("no spreadsheet mapped")
	ErrNoServiceAcct  = errors.New("no service account configured")
	errUnsupportedExt = errors.New("unsupported secrets file extension")
)

// User is one login entry.
type User struct {
	Password string `toml:"password" yaml:"password"`
	Name     string `toml:"name" yaml:"name"`
}

type connections struct {
	GSheets map[string]any `toml:"gsheets" yaml:"gsheets"`
}

type secretsFile struct {
	Credentials  map[string]User   `toml:"credentials" yaml:"credentials"`
	AgentMapping map[string]string `toml:"agent_mapping" yaml:"agent_mapping"`
	Connections  connections       `toml:"connections" yaml:"connections"`
}

// Store is immutable once loaded.
type Store struct {
	users          map[string]User
	agentSheets    map[string]string
	serviceAccount map[string]any
}

// New builds a store from in-memory maps and validates it.
func New(users map[string]User, agentSheets map[string]string) (*Store, error) {
	s := &Store{
		users:       make(map[string]User, len(users)),
		agentSheets: make(map[string]string, len(agentSheets)),
	}
	for k, v := range users {
		s.users[k] = v
	}
	for k, v := range agentSheets {
		s.agentSheets[k] = v
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads a secrets file. Files ending in .yaml or .yml are parsed as YAML,
// everything else as TOML (the .streamlit/secrets.toml layout).
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets %s: %w", path, err)
	}

	var raw secretsFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse secrets %s: %w", path, err)
		}
	case ".toml", "":
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("parse secrets %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedExt, path)
	}

	if raw.Credentials == nil {
		return nil, &Error{Section: "credentials", Reason: "section is missing"}
	}
	s, err := New(raw.Credentials, raw.AgentMapping)
	if err != nil {
		return nil, err
	}
	s.serviceAccount = raw.Connections.GSheets
	return s, nil
}

func (s *Store) validate() error {
	for username, user := range s.users {
		if err := security.CheckSecret(user.Password); err != nil {
			return &Error{Section: "credentials." + username, Reason: "password: " + err.Error()}
		}
		if strings.TrimSpace(user.Name) == "" {
			return &Error{Section: "credentials." + username, Reason: "name is missing"}
		}
	}
	for agent, id := range s.agentSheets {
		if strings.TrimSpace(id) == "" {
			return &Error{Section: "agent_mapping." + agent, Reason: "spreadsheet identifier is empty"}
		}
	}
	return nil
}

// Lookup returns the login entry for username. No normalization is applied.
func (s *Store) Lookup(username string) (User, error) {
	if s == nil || s.users == nil {
		return User{}, &Error{Section: "credentials", Reason: "store is not loaded"}
	}
	user, ok := s.users[username]
	if !ok {
		return User{}, ErrUnknownUser
	}
	if user.Name == "" || user.Password == "" {
		return User{}, &Error{Section: "credentials." + username, Reason: "entry is incomplete"}
	}
	return user, nil
}

// SpreadsheetFor returns the spreadsheet identifier mapped to an agent's display name.
func (s *Store) SpreadsheetFor(agent string) (string, error) {
	if s == nil {
		return "", &Error{Section: "agent_mapping", Reason: "store is not loaded"}
	}
	id, ok := s.agentSheets[agent]
	if !ok || strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w for agent %q", ErrNoSpreadsheet, agent)
	}
	return strings.TrimSpace(id), nil
}

// Agents lists the display names that have a spreadsheet, sorted.
func (s *Store) Agents() []string {
	names := make([]string, 0, len(s.agentSheets))
	for name := range s.agentSheets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServiceAccountJSON re-encodes the [connections.gsheets] table as the JSON
// key file the Google client expects.
func (s *Store) ServiceAccountJSON() ([]byte, error) {
	if s == nil || len(s.serviceAccount) == 0 {
		return nil, ErrNoServiceAcct
	}
	data, err := json.Marshal(s.serviceAccount)
	if err != nil {
		return nil, fmt.Errorf("encode service account: %w", err)
	}
	return data, nil
}

// Error reports a secrets file that is missing keys or has unusable values.
type Error struct {
	Section string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("secrets [%s]: %s", e.Section, e.Reason)
}
