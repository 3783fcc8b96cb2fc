package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/classmark/internal/roster"
)

const (
	loginCookieName = "classmark_session"
	loginDuration   = 24 * time.Hour
)

// Login roles.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Login is one authenticated browser session. For students, Cohort carries
// the cohort their dashboard is scoped to; for teachers it is zero.
type Login struct {
	ID        string        `json:"-"`
	Role      string        `json:"role"`
	UserID    string        `json:"user_id"` // teacher id or roll number
	Name      string        `json:"name"`
	Cohort    roster.Cohort `json:"cohort,omitzero"`
	CreatedAt time.Time     `json:"-"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// LoginManager handles login session creation and validation. Sessions live
// in memory; the cookie carries only an HMAC-signed session id.
type LoginManager struct {
	secret []byte
	logins map[string]*Login
	mu     sync.RWMutex
}

// NewLoginManager creates a new login manager.
func NewLoginManager(secret string) *LoginManager {
	// Use a default secret if none provided (for development)
	if secret == "" {
		secret = "classmark-dev-secret-change-in-production"
	}
	return &LoginManager{
		secret: []byte(secret),
		logins: make(map[string]*Login),
	}
}

// CreateLogin creates a new login session.
func (lm *LoginManager) CreateLogin(role, userID, name string, cohort roster.Cohort) (*Login, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, err
	}

	login := &Login{
		ID:        base64.URLEncoding.EncodeToString(idBytes),
		Role:      role,
		UserID:    userID,
		Name:      name,
		Cohort:    cohort,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(loginDuration),
	}

	lm.mu.Lock()
	lm.logins[login.ID] = login
	lm.mu.Unlock()

	return login, nil
}

// GetLogin retrieves a login by id, expiring it lazily.
func (lm *LoginManager) GetLogin(loginID string) *Login {
	lm.mu.RLock()
	login, ok := lm.logins[loginID]
	lm.mu.RUnlock()
	if !ok {
		return nil
	}

	if time.Now().After(login.ExpiresAt) {
		lm.DeleteLogin(loginID)
		return nil
	}

	return login
}

// DeleteLogin removes a login session.
func (lm *LoginManager) DeleteLogin(loginID string) {
	lm.mu.Lock()
	delete(lm.logins, loginID)
	lm.mu.Unlock()
}

// SetLoginCookie sets the signed login cookie on the response.
func (lm *LoginManager) SetLoginCookie(w http.ResponseWriter, login *Login) {
	signature := lm.sign(login.ID)
	http.SetCookie(w, &http.Cookie{
		Name:     loginCookieName,
		Value:    login.ID + "." + signature,
		Path:     "/",
		HttpOnly: true,
		Secure:   false, // Set to true in production with HTTPS
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(loginDuration.Seconds()),
	})
}

// ClearLoginCookie removes the login cookie.
func (lm *LoginManager) ClearLoginCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     loginCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetLoginFromRequest extracts a verified login from the request cookie or
// a bearer token.
func (lm *LoginManager) GetLoginFromRequest(r *http.Request) *Login {
	cookie, err := r.Cookie(loginCookieName)
	if err == nil {
		parts := strings.SplitN(cookie.Value, ".", 2)
		if len(parts) == 2 && lm.verify(parts[0], parts[1]) {
			if login := lm.GetLogin(parts[0]); login != nil {
				return login
			}
		}
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		loginID := strings.TrimPrefix(authHeader, "Bearer ")
		if login := lm.GetLogin(loginID); login != nil {
			return login
		}
	}

	return nil
}

// sign creates an HMAC signature for data.
func (lm *LoginManager) sign(data string) string {
	h := hmac.New(sha256.New, lm.secret)
	h.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

// verify checks an HMAC signature.
func (lm *LoginManager) verify(data, signature string) bool {
	expected := lm.sign(data)
	return hmac.Equal([]byte(signature), []byte(expected))
}
