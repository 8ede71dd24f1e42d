package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
)

// buildUserInfo assembles a UserInfo from a flat profile document.
// A missing email is not an error here; resolution decides what to do.
func buildUserInfo(p Provider, raw json.RawMessage, subjectKey, nameKey string) (*UserInfo, error) {
	m, err := decodeProfile(raw)
	if err != nil {
		return nil, err
	}
	subject := claimString(m, subjectKey)
	if subject == "" {
		return nil, fmt.Errorf("%w: profile has no %q", ErrUserInfoFailed, subjectKey)
	}

	info := &UserInfo{
		ProviderUserID: subject,
		DisplayName:    normalizeName(claimString(m, nameKey)),
		RawProfile:     raw,
	}
	email, verified, err := p.ExtractPrimaryEmail(raw)
	switch {
	case err == nil:
		info.Email, info.EmailVerified = email, verified
	case !errors.Is(err, ErrNoEmailAvailable):
		return nil, err
	}
	return info, nil
}
