package chat

import (
	"github.com/TienThuan29/FreelanceIT-App-sub003/tools/errs"
	"github.com/TienThuan29/FreelanceIT-App-sub003/tools/security"
)

// JWTVerifier is the production TokenVerifier: HMAC-signed marketplace
// session tokens.
type JWTVerifier struct {
	opts security.Options
}

func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{opts: security.DefaultOptions(secret)}
}

func (v *JWTVerifier) Verify(token string) (*security.Identity, error) {
	if token == "" {
		return nil, errs.ErrAuthFailed.WithDetail("missing token")
	}
	return security.Verify(v.opts, token)
}
