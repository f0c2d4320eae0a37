package auth

import (
	"net/http"
	"time"
)

const sessionCookieName = "session_id"

// SetSessionCookie writes the session id as an HttpOnly cookie. Secure is
// only set in production so local HTTP development keeps working.
func SetSessionCookie(w http.ResponseWriter, sessionID string, isProduction bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie on the client.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// GetSessionFromCookie returns the session id from the request cookie, or
// http.ErrNoCookie when absent.
func GetSessionFromCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
