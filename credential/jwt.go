package credential

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// SubjectClaim is the registered JWT claim that carries the subject ID.
const SubjectClaim = "sub"

// SubjectFromToken extracts a subject ID from a JWT without verifying its
// signature. The broker and the REST backend verify the token; the client only
// needs the identity to name its private topic.
//
// Parameters:
//   - token: Compact-serialized JWT
//   - claim: Claim to read; empty means SubjectClaim
//
// Returns:
//   - string: Claim value; numeric claims are formatted without exponent
//   - error: ErrInvalidToken if the token is malformed or the claim is missing
func SubjectFromToken(token, claim string) (string, error) {
	if claim == "" {
		claim = SubjectClaim
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claim == SubjectClaim {
		sub, err := claims.GetSubject()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		if sub == "" {
			return "", fmt.Errorf("%w: claim %q missing", ErrInvalidToken, claim)
		}

		return sub, nil
	}

	switch v := claims[claim].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}

	return "", fmt.Errorf("%w: claim %q missing", ErrInvalidToken, claim)
}
