package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ferrolog/oauth-server/identity"
)

const sessionCookie = "authserver_session"

// cookieSessions is an HMAC-signed cookie session. The signing key is
// generated per process, so sessions do not survive a restart; good enough
// for a single-binary deployment without a session store.
type cookieSessions struct {
	key    []byte
	users  *identity.Directory
	logger *slog.Logger
}

func newCookieSessions(users *identity.Directory, logger *slog.Logger) *cookieSessions {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return &cookieSessions{key: key, users: users, logger: logger}
}

func (s *cookieSessions) sign(userID string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(userID))
	return userID + "." + hex.EncodeToString(mac.Sum(nil))
}

// CurrentUser implements oauthserver.SessionReader.
func (s *cookieSessions) CurrentUser(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	i := strings.LastIndex(c.Value, ".")
	if i < 1 {
		return ""
	}
	userID := c.Value[:i]
	if !hmac.Equal([]byte(s.sign(userID)), []byte(c.Value)) {
		s.logger.Warn("Rejected session cookie with bad signature")
		return ""
	}
	return userID
}

const loginPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Sign in</title>
</head>
<body>
    <h1>Sign in</h1>
    {{if .Error}}<p>{{.Error}}</p>{{end}}
    <form method="POST">
        <input type="hidden" name="next" value="{{.Next}}">
        <label>Username or email <input type="text" name="username" autofocus></label>
        <label>Password <input type="password" name="password"></label>
        <button type="submit">Sign in</button>
    </form>
</body>
</html>`

var loginTmpl = template.Must(template.New("login").Parse(loginPage))

type loginData struct {
	Next  string
	Error string
}

// ServeLogin renders the login form and establishes a session on valid
// credentials, then resumes the flow the next parameter points at.
func (s *cookieSessions) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse request", http.StatusBadRequest)
		return
	}
	next := safeNext(r.Form.Get("next"))

	if r.Method != http.MethodPost {
		s.renderLogin(w, loginData{Next: next})
		return
	}

	userID, err := s.users.VerifyCredentials(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"))
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidCredentials) {
			s.logger.Error("Credential verification failed", "error", err)
		}
		s.renderLogin(w, loginData{Next: next, Error: "Incorrect username or password"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.sign(userID),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, next, http.StatusFound)
}

func (s *cookieSessions) renderLogin(w http.ResponseWriter, data loginData) {
	var buf bytes.Buffer
	if err := loginTmpl.Execute(&buf, data); err != nil {
		s.logger.Error("Failed to render login page", "error", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// safeNext restricts the post-login destination to a local path, so the
// login form can never be used as an open redirector.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/"
	}
	return next
}
