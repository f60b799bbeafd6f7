package model

import (
    "fmt"
    "strings"
)

// PrincipalKind distinguishes authenticated users from anonymous guest
// checkout sessions.
type PrincipalKind string

const (
    PrincipalUser  PrincipalKind = "user"
    PrincipalGuest PrincipalKind = "guest"
)

// Principal identifies whoever owns a hold: either User(id) or
// Guest(sessionId).  The zero value means "nobody".
type Principal struct {
    Kind PrincipalKind `json:"kind"`
    ID   string        `json:"id"`
}

// User returns the principal of an authenticated user.
func User(id string) Principal { return Principal{Kind: PrincipalUser, ID: id} }

// Guest returns the principal of an anonymous checkout session.
func Guest(sessionID string) Principal { return Principal{Kind: PrincipalGuest, ID: sessionID} }

// IsZero reports whether p identifies nobody.
func (p Principal) IsZero() bool { return p.Kind == "" || p.ID == "" }

// String renders the principal as "user:<id>" or "guest:<id>".
func (p Principal) String() string {
    if p.IsZero() {
        return ""
    }
    return string(p.Kind) + ":" + p.ID
}

// ParsePrincipal is the inverse of Principal.String.
func ParsePrincipal(s string) (Principal, error) {
    kind, id, ok := strings.Cut(s, ":")
    if !ok || id == "" {
        return Principal{}, fmt.Errorf("invalid principal %q", s)
    }
    switch PrincipalKind(kind) {
    case PrincipalUser, PrincipalGuest:
        return Principal{Kind: PrincipalKind(kind), ID: id}, nil
    }
    return Principal{}, fmt.Errorf("invalid principal kind %q", kind)
}
