package artifacts

import (
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

const tokenBytes = 32

// Token is the opaque capability naming a stored artifact. Holding it grants
// read and validate access; it has no relation to any filesystem path.
type Token string

// NewToken returns a fresh token with 256 bits of entropy.
func NewToken() (Token, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return Token(base58.Encode(buf)), nil
}

// ParseToken accepts only well-formed tokens. Anything else is reported as
// not found so malformed and unknown tokens are indistinguishable.
func ParseToken(s string) (Token, error) {
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != tokenBytes {
		return "", fmt.Errorf("%w: malformed token", ErrArtifactNotFound)
	}
	return Token(s), nil
}

func (t Token) String() string { return string(t) }
