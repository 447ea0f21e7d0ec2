package portalapp

import (
	"bytes"
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/phillip-england/openhouse/internal/credentials"
	"github.com/phillip-england/openhouse/internal/events"
	"github.com/phillip-england/openhouse/internal/middleware"
	"github.com/phillip-england/openhouse/internal/session"
	"github.com/phillip-england/openhouse/internal/signin"
	"github.com/phillip-england/openhouse/internal/telemetry"
)

const (
	csrfHeaderName    = "X-CSRF-Token"
	csrfFormField     = "csrf_token"
	sessionCookieName = "openhouse_session"

	purgeInterval = 10 * time.Minute
)

//go:embed templates/login.html templates/intake.html assets/app.css
var templatesFS embed.FS

type server struct {
	sessions   session.Store
	controller *signin.Controller
	ttl        time.Duration
	secure     bool
	locks      *sessionLocks
	now        func() time.Time
	loginTmpl  *template.Template
	intakeTmpl *template.Template
}

type pageData struct {
	CSRF            string
	Agent           string
	Addresses       []string
	SelectedAddress string
	Draft           session.Draft
	RealtorNo       bool
	Error           string
	Warning         string
	Notice          string
	Halted          bool
}

// HandlerConfig holds what the portal handler needs once the backends are open.
type HandlerConfig struct {
	Sessions      session.Store
	Controller    *signin.Controller
	SessionTTL    time.Duration
	SecureCookies bool
}

// NewHandler returns the portal's routes wrapped in the middleware stack.
func NewHandler(cfg HandlerConfig) http.Handler {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	s := &server{
		sessions:   cfg.Sessions,
		controller: cfg.Controller,
		ttl:        ttl,
		secure:     cfg.SecureCookies,
		locks:      newSessionLocks(),
		now:        time.Now,
		loginTmpl:  template.Must(template.ParseFS(templatesFS, "templates/login.html")),
		intakeTmpl: template.Must(template.ParseFS(templatesFS, "templates/intake.html")),
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.HandlerFunc(s.indexPage))
	mux.Handle("/login", http.HandlerFunc(s.login))
	mux.Handle("/address", http.HandlerFunc(s.selectAddress))
	mux.Handle("/visitors", http.HandlerFunc(s.submitVisitor))
	mux.Handle("/logout", http.HandlerFunc(s.logout))
	mux.Handle("/assets/app.css", http.HandlerFunc(s.appCSSFile))
	mux.Handle("/healthz", http.HandlerFunc(s.healthz))

	csp := strings.Join([]string{
		"default-src 'self'",
		"style-src 'self'",
		"img-src 'self' data:",
		"form-action 'self'",
		"frame-ancestors 'none'",
	}, "; ")

	handler := middleware.Chain(
		mux,
		middleware.RequestLog,
		middleware.Recover,
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{ContentSecurityPolicy: csp}),
	)
	return otelhttp.NewHandler(handler, "portal")
}

func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	// A broken secrets file must not keep the portal down: logins report the
	// configuration problem until it is fixed.
	creds, err := credentials.Load(cfg.SecretsPath)
	if err != nil {
		log.Printf("secrets %s: %v", cfg.SecretsPath, err)
		creds = nil
	}

	gateway, err := OpenGateway(ctx, cfg, creds)
	if err != nil {
		if creds != nil {
			return err
		}
		log.Printf("sheets backend unavailable without secrets: %v", err)
		gateway, err = OpenGateway(ctx, Config{SheetsBackend: BackendMemory}, nil)
		if err != nil {
			return fmt.Errorf("fallback sheets backend: %w", err)
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	publisher, err := events.NewPublisher(cfg.NATSURL)
	if err != nil {
		return err
	}
	defer publisher.Close()

	store, closeStore, err := openSessionStore(cfg.SessionDBPath)
	if err != nil {
		return err
	}
	defer closeStore()

	intake := signin.NewIntakeFlow(gateway, creds, signin.WithPublisher(publisher), signin.WithLocation(loc))
	controller := signin.NewController(signin.NewAuthenticator(creds), intake)

	handler := NewHandler(HandlerConfig{
		Sessions:      store,
		Controller:    controller,
		SessionTTL:    cfg.SessionTTL,
		SecureCookies: cfg.SecureCookies,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	go purgeSessions(ctx, store)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("portal listening on http://localhost%s (%s backend)", cfg.Addr, cfg.SheetsBackend)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func openSessionStore(path string) (session.Store, func(), error) {
	if strings.TrimSpace(path) == "" {
		return session.NewMemoryStore(), func() {}, nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}
	store, err := session.OpenSQLite(path)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

type purger interface {
	Purge(ctx context.Context) (int64, error)
}

func purgeSessions(ctx context.Context, store session.Store) {
	p, ok := store.(purger)
	if !ok {
		return
	}
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Purge(ctx)
			if err != nil {
				log.Printf("purge sessions: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("purged %d expired sessions", n)
			}
		}
	}
}

func (s *server) indexPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.withSession(w, r, func(sess *session.Session, _ bool) {
		screen := s.controller.Dispatch(r.Context(), sess, signin.View())
		s.render(w, r, sess, screen)
	})
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	s.post(w, r, func(r *http.Request) signin.Action {
		return signin.Login(r.PostFormValue("username"), r.PostFormValue("password"))
	})
}

func (s *server) selectAddress(w http.ResponseWriter, r *http.Request) {
	s.post(w, r, func(r *http.Request) signin.Action {
		return signin.SelectAddress(r.PostFormValue("address"))
	})
}

func (s *server) submitVisitor(w http.ResponseWriter, r *http.Request) {
	s.post(w, r, func(r *http.Request) signin.Action {
		return signin.Submit(r.PostFormValue("address"), session.Draft{
			Name:           r.PostFormValue("name"),
			Email:          r.PostFormValue("email"),
			Phone:          r.PostFormValue("phone"),
			NeedsRealtor:   session.ParseRealtor(r.PostFormValue("needs_realtor")),
			CurrentAddress: r.PostFormValue("current_address"),
			Comments:       r.PostFormValue("comments"),
		})
	})
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}
	s.withSession(w, r, func(sess *session.Session, _ bool) {
		if !s.validCSRF(r, sess) {
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		s.controller.Dispatch(r.Context(), sess, signin.Logout())
		if err := s.sessions.Delete(r.Context(), sess.ID); err != nil {
			log.Printf("delete session: %v", err)
		}
		s.clearCookie(w)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
}

// post dispatches a form action, keeps its flashes for the next page view and
// redirects there.
func (s *server) post(w http.ResponseWriter, r *http.Request, action func(*http.Request) signin.Action) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}
	s.withSession(w, r, func(sess *session.Session, fresh bool) {
		if !s.validCSRF(r, sess) {
			// A login form posted after its session expired.
			if fresh && r.URL.Path == "/login" {
				sess.Flash.Error = signin.MsgSessionExpired
				if s.save(w, r, sess) {
					http.Redirect(w, r, "/", http.StatusSeeOther)
				}
				return
			}
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		screen := s.controller.Dispatch(r.Context(), sess, action(r))
		sess.Flash = screen.Flash
		if !s.save(w, r, sess) {
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
}

// withSession loads the cookie's session, or starts a fresh one, and holds
// its lock while fn runs.
func (s *server) withSession(w http.ResponseWriter, r *http.Request, fn func(sess *session.Session, fresh bool)) {
	var id string
	if c, err := r.Cookie(sessionCookieName); err == nil {
		id = c.Value
	}

	if id != "" {
		unlock := s.locks.lock(id)
		defer unlock()
		sess, err := s.sessions.Load(r.Context(), id)
		if err == nil {
			fn(sess, false)
			return
		}
		if !errors.Is(err, session.ErrNotFound) {
			log.Printf("load session: %v", err)
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}
	}

	sess, err := session.New(s.ttl)
	if err != nil {
		log.Printf("new session: %v", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	unlock := s.locks.lock(sess.ID)
	defer unlock()
	s.setCookie(w, sess)
	fn(sess, true)
}

func (s *server) save(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	sess.Touch(s.now(), s.ttl)
	if err := s.sessions.Save(r.Context(), sess); err != nil {
		log.Printf("save session: %v", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return false
	}
	s.setCookie(w, sess)
	return true
}

func (s *server) validCSRF(r *http.Request, sess *session.Session) bool {
	token := r.PostFormValue(csrfFormField)
	if token == "" {
		token = r.Header.Get(csrfHeaderName)
	}
	if token == "" || sess.CSRFToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(sess.CSRFToken)) == 1
}

func (s *server) setCookie(w http.ResponseWriter, sess *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *server) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *server) render(w http.ResponseWriter, r *http.Request, sess *session.Session, screen signin.Screen) {
	if !s.save(w, r, sess) {
		return
	}
	data := pageData{
		CSRF:            sess.CSRFToken,
		Agent:           screen.Agent,
		Addresses:       screen.Addresses,
		SelectedAddress: screen.SelectedAddress,
		Draft:           screen.Draft,
		RealtorNo:       screen.Draft.NeedsRealtor == session.RealtorNo,
		Error:           screen.Flash.Error,
		Warning:         screen.Flash.Warning,
		Notice:          screen.Flash.Notice,
		Halted:          screen.Halted,
	}
	tmpl := s.loginTmpl
	if screen.Page == session.PageIntake {
		tmpl = s.intakeTmpl
	}
	if err := renderHTMLTemplate(w, tmpl, data); err != nil {
		http.Error(w, "template render failed", http.StatusInternalServerError)
		log.Printf("%s template render failed: %v", screen.Page, err)
	}
}

func (s *server) appCSSFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, err := templatesFS.ReadFile("assets/app.css")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write(data)
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func renderHTMLTemplate(w http.ResponseWriter, tmpl *template.Template, data pageData) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, err := w.Write(buf.Bytes())
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// sessionLocks serializes requests that share a session id.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

func (l *sessionLocks) lock(id string) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &sessionLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
