package utils // package utils provides helpers shared by the server and its tests

import (
    "time"

    "github.com/golang-jwt/jwt/v5"
)

// NewAccessToken builds and signs an HS256 JWT.  Tokens are issued by the
// identity service in production; this helper mirrors its claim layout
// (sub, role, exp, iat) so operators and tests can mint compatible tokens.
func NewAccessToken(secret, userID, role string, ttl time.Duration) (string, error) {
    now := time.Now().UTC()
    claims := jwt.MapClaims{
        "sub":  userID,
        "role": role,
        "exp":  now.Add(ttl).Unix(),
        "iat":  now.Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    return t.SignedString([]byte(secret))
}
