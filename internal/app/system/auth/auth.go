// Package auth reads the web app's cookie session so a browser that is
// already signed in can open a realtime connection without a bearer token.
package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/travelsync/internal/app/system/tokenauth"
	"github.com/gorilla/sessions"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	isAuthKey = "is_authenticated"
	userIDKey = "user_id"
)

// SessionManager wraps the cookie store shared with the web app.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	log   *zap.Logger
}

// NewSessionManager builds a cookie store from sessionKey. The `secure` flag
// controls whether cookies are marked Secure and which SameSite mode is used:
// Secure + SameSite=None in production, Lax for local http.
func NewSessionManager(sessionKey, sessionName, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if sessionName == "" {
		return nil, fmt.Errorf("session name is empty")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	} else {
		opts.SameSite = http.SameSiteLaxMode
	}
	store.Options = opts

	logger.Info("session store initialized",
		zap.String("name", sessionName),
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: sessionName, log: logger}, nil
}

// Authenticate returns the signed-in user. A request with no session, or an
// anonymous one, yields tokenauth.ErrMissingToken so a verifier chain can fall
// through to other credentials.
func (sm *SessionManager) Authenticate(r *http.Request) (primitive.ObjectID, error) {
	if _, err := r.Cookie(sm.name); err != nil {
		return primitive.NilObjectID, tokenauth.ErrMissingToken
	}

	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		// Cookie present but not decodable with our key.
		return primitive.NilObjectID, fmt.Errorf("%w: session cookie: %v", tokenauth.ErrInvalidToken, err)
	}
	if isAuth, _ := sess.Values[isAuthKey].(bool); !isAuth {
		return primitive.NilObjectID, tokenauth.ErrMissingToken
	}

	raw, _ := sess.Values[userIDKey].(string)
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: session user id", tokenauth.ErrInvalidToken)
	}
	return id, nil
}

// SignIn writes an authenticated session for userID.
func (sm *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, userID primitive.ObjectID) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = userID.Hex()
	return sess.Save(r, w)
}

// Name returns the cookie name.
func (sm *SessionManager) Name() string { return sm.name }
