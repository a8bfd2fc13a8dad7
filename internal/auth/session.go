package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const sessionName = "fleetwatch-session"

var sessionStore *sessions.CookieStore

// InitSessionStore initializes the session store with a secret key
func InitSessionStore(secretKey string) {
	sessionStore = sessions.NewCookieStore([]byte(secretKey))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   false, // Set to true if using HTTPS
		SameSite: http.SameSiteLaxMode,
	}
}

// CreateSession creates a new authenticated session for the user
func CreateSession(w http.ResponseWriter, r *http.Request, userID int64) error {
	session, _ := sessionStore.Get(r, sessionName)
	session.Values["user_id"] = userID
	return session.Save(r, w)
}

// DestroySession destroys the current session
func DestroySession(w http.ResponseWriter, r *http.Request) error {
	session, _ := sessionStore.Get(r, sessionName)
	delete(session.Values, "user_id")
	session.Options.MaxAge = -1 // Delete cookie
	return session.Save(r, w)
}

// SessionUserID returns the authenticated user's id, or false when the
// request carries no valid session
func SessionUserID(r *http.Request) (int64, bool) {
	session, _ := sessionStore.Get(r, sessionName)
	userID, ok := session.Values["user_id"].(int64)
	return userID, ok
}
