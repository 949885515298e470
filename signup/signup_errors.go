package signup

import "errors"

var (
	ErrUnsupportedIdentityType   = errors.New("unsupported identity type for signup")
	ErrIdentityAlreadyRegistered = errors.New("identity already registered")
	ErrUsernameTaken             = errors.New("username taken")
	ErrInvalidToken              = errors.New("invalid signup token")
	ErrInvalidOtp                = errors.New("invalid otp")
	ErrInvalidContext            = errors.New("invalid otp context")
	ErrCorruptMetadata           = errors.New("corrupt signup metadata")
)
