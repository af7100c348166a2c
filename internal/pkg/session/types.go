// internal/pkg/session/types.go
package session

import (
	"physioportal-client/internal/domain/auth"
)

// Session is the durable client session: the bearer token, the user snapshot
// from the last successful auth response, and the billing customer id.
type Session struct {
	Token      string           `json:"token,omitempty"`
	User       *auth.UserRecord `json:"user,omitempty"`
	CustomerID string           `json:"customer_id,omitempty"`
}

// Empty reports whether the session holds no credentials at all.
func (s Session) Empty() bool {
	return s.Token == "" && s.User == nil && s.CustomerID == ""
}
