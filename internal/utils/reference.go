package utils

import (
    "crypto/rand"
    "strings"
)

// Crockford-style alphabet without I, L, O and U so references survive
// being read out over the phone.
const referenceAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewBookingReference returns a reference such as "BK-7Q2M9XKD".
func NewBookingReference() (string, error) {
    buf := make([]byte, 8)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    var sb strings.Builder
    sb.WriteString("BK-")
    for _, b := range buf {
        sb.WriteByte(referenceAlphabet[int(b)%len(referenceAlphabet)])
    }
    return sb.String(), nil
}
