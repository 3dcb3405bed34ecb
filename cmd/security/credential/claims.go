package credential

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryFromCredential extracts the expiry instant from a JWT-shaped bearer
// credential without verifying its signature.
//
// Verification is not this core's job: the credential was already accepted by
// the issuing layer. The expiry claim is only used to bound how long a
// revocation entry must be retained.
//
// Returns ok=false when the credential is not a parseable JWT or carries no
// "exp" claim. Callers must then apply a retention cap instead of trusting an
// absent expiry (a never-expiring credential must never fall out of the
// revocation set by TTL alone).
func ExpiryFromCredential(cred string) (exp time.Time, ok bool) {
	cred = strings.TrimSpace(cred)
	if cred == "" {
		return time.Time{}, false
	}

	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(cred, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}

	numeric, err := token.Claims.GetExpirationTime()
	if err != nil || numeric == nil {
		return time.Time{}, false
	}
	return numeric.Time.UTC(), true
}

// EffectiveExpiry resolves the retention deadline for a credential: its exp
// claim when present, otherwise now+retentionCap.
func EffectiveExpiry(cred string, now time.Time, retentionCap time.Duration) time.Time {
	if exp, ok := ExpiryFromCredential(cred); ok {
		return exp
	}
	return now.Add(retentionCap)
}
