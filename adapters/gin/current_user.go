package authgin

import (
	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/accesskit/adapters/ginutil"
)

// UserView is a unified view of the caller for handlers.
type UserView struct {
	UserID       string   `json:"user_id"`
	Email        string   `json:"email,omitempty"`
	Roles        []string `json:"roles,omitempty"`
	SessionID    string   `json:"session_id,omitempty"`
	IsNewSession bool     `json:"is_new_session"`
	// Degraded means the session store was unreachable and only the
	// credential was checked.
	Degraded bool `json:"degraded,omitempty"`

	Source string `json:"source"` // "session" | "none"
}

// CurrentUser returns the caller as seen by RequireSession, or false when
// the request is unauthenticated.
func CurrentUser(c *gin.Context) (UserView, bool) {
	uid := ginutil.UserID(c)
	if uid == "" {
		return UserView{Source: "none"}, false
	}
	v := UserView{
		UserID:       uid,
		SessionID:    ginutil.SessionID(c),
		IsNewSession: c.GetBool(ginutil.KeyNewSession),
		Degraded:     c.GetBool(ginutil.KeyDegraded),
		Source:       "session",
	}
	if cl, ok := ginutil.Claims(c); ok {
		v.Email = cl.Email
		v.Roles = cl.Roles
	}
	return v, true
}
