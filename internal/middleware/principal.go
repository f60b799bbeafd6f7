package middleware

import (
    "regexp"
    "strings"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-seat-hold/internal/apperror"
    "github.com/iliyamo/bus-seat-hold/internal/model"
)

// HeaderGuestSession carries the anonymous checkout session id.
const HeaderGuestSession = "X-Guest-Session"

// context keys
const (
    ctxPrincipal = "principal"
    ctxRole      = "role"
    ctxUserID    = "user_id"
)

var guestSessionRe = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// Identity resolves the caller.  A Bearer access token yields User(sub)
// and its role claim; otherwise a valid X-Guest-Session header yields
// Guest(session).  Requests with neither pass through anonymously, while a
// malformed token or session header is rejected.
func Identity(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if auth := c.Request().Header.Get(echo.HeaderAuthorization); auth != "" {
                if !strings.HasPrefix(auth, "Bearer ") {
                    return apperror.Unauthorized("authorization header must be a bearer token")
                }
                sub, role, err := parseAccessToken(strings.TrimPrefix(auth, "Bearer "), secret)
                if err != nil {
                    return apperror.Unauthorized("invalid access token")
                }
                c.Set(ctxPrincipal, model.User(sub))
                c.Set(ctxUserID, sub)
                c.Set(ctxRole, role)
                return next(c)
            }

            if session := c.Request().Header.Get(HeaderGuestSession); session != "" {
                if !guestSessionRe.MatchString(session) {
                    return apperror.Unauthorized("X-Guest-Session must be 8-64 characters of [A-Za-z0-9_-]")
                }
                c.Set(ctxPrincipal, model.Guest(session))
            }
            return next(c)
        }
    }
}

// parseAccessToken verifies an HS256 token and returns its sub and role
// claims.
func parseAccessToken(raw, secret string) (string, string, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, echo.ErrUnauthorized
        }
        return []byte(secret), nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
    if err != nil || !tok.Valid {
        return "", "", echo.ErrUnauthorized
    }
    claims, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return "", "", echo.ErrUnauthorized
    }
    sub, err := claims.GetSubject()
    if err != nil || sub == "" {
        return "", "", echo.ErrUnauthorized
    }
    role, _ := claims["role"].(string)
    return sub, role, nil
}

// RequirePrincipal rejects anonymous requests with 401.
func RequirePrincipal() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if _, ok := PrincipalFrom(c); !ok {
                return apperror.Unauthorized("a bearer token or X-Guest-Session header is required")
            }
            return next(c)
        }
    }
}

// PrincipalFrom returns the caller resolved by Identity.
func PrincipalFrom(c echo.Context) (model.Principal, bool) {
    p, ok := c.Get(ctxPrincipal).(model.Principal)
    if !ok || p.IsZero() {
        return model.Principal{}, false
    }
    return p, true
}

// RoleFrom returns the role claim of an authenticated user, or "".
func RoleFrom(c echo.Context) string {
    role, _ := c.Get(ctxRole).(string)
    return role
}
