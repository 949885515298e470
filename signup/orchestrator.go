// Package signup implements the OTP-gated tenant signup state machine.
//
// Starting a signup never creates a tenant row: the unverified account data
// (with the password encrypted at rest) lives in the one-time-code record
// until the code is confirmed, so uniqueness guarantees in the tenant
// directory are never polluted by abandoned signups.
package signup

import (
	"context"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tenauth/go-identity-server/notifier"
	"github.com/tenauth/go-identity-server/otp"
	"github.com/tenauth/go-identity-server/secrets"
	"github.com/tenauth/go-identity-server/tenants"
)

// Context tags one-time codes that belong to the tenant signup flow,
// guarding against token confusion with other OTP use-cases sharing the
// same store.
const Context = "TENANT_SIGNUP"

const (
	metaIdentity     = "identity"
	metaIdentityType = "identityType"
	metaUsername     = "username"
	metaPassword     = "password"
)

// pendingSignup is the typed view of the OTP metadata bag, validated at
// the boundary.
type pendingSignup struct {
	Identity          string
	IdentityType      tenants.IdentityType
	Username          string
	EncryptedPassword string
}

// Deps holds the collaborators of the Orchestrator.
type Deps struct {
	Tenants  tenants.Repo
	OtpStore otp.Store
	Notifier notifier.Notifier
	Cipher   *secrets.Cipher
}

// Orchestrator runs the two-step signup flow.
type Orchestrator struct {
	deps      Deps
	otpLength int
	otpTTL    time.Duration
	nowTime   func() time.Time
	logger    zerolog.Logger
}

// Option modifies an Orchestrator.
type Option func(*Orchestrator)

// WithOtpPolicy overrides the generated code length and lifetime.
func WithOtpPolicy(length int, ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.otpLength = length
		o.otpTTL = ttl
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(o *Orchestrator) { o.nowTime = nowFunc }
}

// New creates a signup Orchestrator with required dependencies.
func New(deps Deps, options ...Option) (*Orchestrator, error) {
	if deps.Tenants == nil {
		return nil, pkgerrors.New("[signup.New] Tenants repo is required")
	}
	if deps.OtpStore == nil {
		return nil, pkgerrors.New("[signup.New] OtpStore is required")
	}
	if deps.Notifier == nil {
		return nil, pkgerrors.New("[signup.New] Notifier is required")
	}
	if deps.Cipher == nil {
		return nil, pkgerrors.New("[signup.New] Cipher is required")
	}

	o := &Orchestrator{
		deps:      deps,
		otpLength: 4,
		otpTTL:    300 * time.Second,
		nowTime:   time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(o)
	}
	return o, nil
}

// Start validates the request, stores the pending signup under a fresh
// one-time code, and sends the code out-of-band. It returns the opaque
// signup token the caller must present to Complete.
//
// Only EMAIL identities are open for self-service signup.
func (o *Orchestrator) Start(ctx context.Context, identityType tenants.IdentityType, identity, username, password string) (string, error) {
	if identityType != tenants.IdentityTypeEmail {
		return "", ErrUnsupportedIdentityType
	}

	if _, err := o.deps.Tenants.GetByIdentity(ctx, identityType, identity); err == nil {
		return "", ErrIdentityAlreadyRegistered
	} else if !pkgerrors.Is(err, tenants.ErrTenantNotFound) {
		return "", pkgerrors.Wrap(err, "[Orchestrator.Start] Tenants.GetByIdentity")
	}

	if _, err := o.deps.Tenants.GetByUsername(ctx, username); err == nil {
		return "", ErrUsernameTaken
	} else if !pkgerrors.Is(err, tenants.ErrTenantNotFound) {
		return "", pkgerrors.Wrap(err, "[Orchestrator.Start] Tenants.GetByUsername")
	}

	// The raw password must not be stored in plaintext during the OTP
	// window.
	encryptedPassword, err := o.deps.Cipher.Encrypt(password)
	if err != nil {
		return "", pkgerrors.Wrap(err, "[Orchestrator.Start] Cipher.Encrypt")
	}

	record, err := otp.Generate(ctx, o.deps.OtpStore, otp.Params{
		Kind:    otp.KindNumeric,
		Length:  o.otpLength,
		TTL:     o.otpTTL,
		Context: Context,
		Metadata: map[string]string{
			metaIdentity:     identity,
			metaIdentityType: string(identityType),
			metaUsername:     username,
			metaPassword:     encryptedPassword,
		},
	})
	if err != nil {
		return "", pkgerrors.Wrap(err, "[Orchestrator.Start] otp.Generate")
	}

	// Delivery is best-effort: a failed notification is an operator
	// concern, not a signup failure.
	err = o.deps.Notifier.Send(ctx, notifier.ChannelEmail, identity,
		"Your verification code",
		"Your verification code to create your account is: "+record.Code)
	if err != nil {
		o.logger.Error().Err(err).Str("identity", identity).Msg("signup notification failed")
	}

	return record.ID, nil
}

// Complete verifies the code for the given signup token and provisions the
// tenant. The pending signup is consumed exactly once: a second Complete
// with the same token fails with ErrInvalidToken, even concurrently.
func (o *Orchestrator) Complete(ctx context.Context, signupToken, code string) error {
	if code == "" {
		return ErrInvalidOtp
	}

	record, err := o.deps.OtpStore.Get(ctx, signupToken)
	if pkgerrors.Is(err, otp.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return pkgerrors.Wrap(err, "[Orchestrator.Complete] OtpStore.Get")
	}

	if record.Code != code {
		return ErrInvalidOtp
	}
	if record.Context != Context {
		return ErrInvalidContext
	}

	pending, err := parsePending(record.Metadata)
	if err != nil {
		return err
	}

	password, err := o.deps.Cipher.Decrypt(pending.EncryptedPassword)
	if err != nil {
		return pkgerrors.Wrap(err, "[Orchestrator.Complete] Cipher.Decrypt")
	}

	// The atomic compare-and-delete is the single consumption point: of
	// two concurrent completions, only one reaches tenant creation.
	if _, err := o.deps.OtpStore.Consume(ctx, signupToken, code); err != nil {
		if pkgerrors.Is(err, otp.ErrNotFound) {
			return ErrInvalidToken
		}
		if pkgerrors.Is(err, otp.ErrCodeMismatch) {
			return ErrInvalidOtp
		}
		return pkgerrors.Wrap(err, "[Orchestrator.Complete] OtpStore.Consume")
	}

	passwordHash, err := tenants.HashPassword(password)
	if err != nil {
		return pkgerrors.Wrap(err, "[Orchestrator.Complete] HashPassword")
	}

	now := o.nowTime()
	tenant := &tenants.Tenant{
		ID:           uuid.New().String(),
		Username:     pending.Username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.deps.Tenants.Create(ctx, tenant); err != nil {
		if pkgerrors.Is(err, tenants.ErrUsernameTaken) {
			return ErrUsernameTaken
		}
		return pkgerrors.Wrap(err, "[Orchestrator.Complete] Tenants.Create")
	}

	identity := &tenants.Identity{
		ID:           uuid.New().String(),
		TenantID:     tenant.ID,
		IdentityType: pending.IdentityType,
		Identity:     pending.Identity,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.deps.Tenants.AddIdentity(ctx, identity); err != nil {
		if pkgerrors.Is(err, tenants.ErrIdentityTaken) {
			return ErrIdentityAlreadyRegistered
		}
		return pkgerrors.Wrap(err, "[Orchestrator.Complete] Tenants.AddIdentity")
	}

	o.logger.Info().Str("tenant_id", tenant.ID).Str("username", tenant.Username).Msg("tenant provisioned")
	return nil
}

func parsePending(metadata map[string]string) (*pendingSignup, error) {
	if metadata == nil {
		return nil, ErrCorruptMetadata
	}
	for _, key := range []string{metaIdentity, metaIdentityType, metaUsername, metaPassword} {
		if metadata[key] == "" {
			return nil, ErrCorruptMetadata
		}
	}
	identityType := tenants.IdentityType(metadata[metaIdentityType])
	if !identityType.Valid() {
		return nil, ErrCorruptMetadata
	}
	return &pendingSignup{
		Identity:          metadata[metaIdentity],
		IdentityType:      identityType,
		Username:          metadata[metaUsername],
		EncryptedPassword: metadata[metaPassword],
	}, nil
}
