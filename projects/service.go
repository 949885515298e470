package projects

import (
	"context"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tenauth/go-identity-server/notifier"
	"github.com/tenauth/go-identity-server/otp"
	"github.com/tenauth/go-identity-server/tenants"
)

// Context tags one-time codes issued for project-user identity verification.
const Context = "PROJECT_USER_IDENTITY"

const (
	metaProjectID    = "projectId"
	metaUserID       = "userId"
	metaIdentity     = "identity"
	metaIdentityType = "identityType"
)

// Deps holds the collaborators of the Service.
type Deps struct {
	Repo     Repo
	OtpStore otp.Store
	Notifier notifier.Notifier
}

// Service manages projects and their end users for a tenant.
type Service struct {
	deps      Deps
	otpPolicy otp.Params
	logger    zerolog.Logger
	nowTime   func() time.Time
}

// Option modifies a Service.
type Option func(*Service)

// WithOtpPolicy overrides the default code length and TTL for identity
// verification codes.
func WithOtpPolicy(length int, ttl time.Duration) Option {
	return func(s *Service) {
		s.otpPolicy.Length = length
		s.otpPolicy.TTL = ttl
	}
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Service) { s.nowTime = nowFunc }
}

// New creates a project Service with required dependencies.
func New(deps Deps, options ...Option) (*Service, error) {
	if deps.Repo == nil {
		return nil, pkgerrors.New("[projects.New] Repo is required")
	}
	if deps.OtpStore == nil {
		return nil, pkgerrors.New("[projects.New] OtpStore is required")
	}
	if deps.Notifier == nil {
		return nil, pkgerrors.New("[projects.New] Notifier is required")
	}

	s := &Service{
		deps:      deps,
		otpPolicy: otp.Params{Kind: otp.KindNumeric, Length: 4, TTL: 5 * time.Minute},
		logger:    zerolog.Nop(),
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// CreateProject creates a project owned by the tenant.
func (s *Service) CreateProject(ctx context.Context, tenantID, name string) (*Project, error) {
	now := s.nowTime()
	project := &Project{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.deps.Repo.CreateProject(ctx, project); err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.CreateProject] Repo.CreateProject")
	}
	return project, nil
}

// CreateUser adds an end user to one of the tenant's projects. The password
// may be empty for users authenticated only through verified identities.
func (s *Service) CreateUser(ctx context.Context, tenantID, projectID, username, password string) (*User, error) {
	if _, err := s.ownedProject(ctx, tenantID, projectID); err != nil {
		return nil, err
	}

	var passwordHash string
	if password != "" {
		var err error
		passwordHash, err = tenants.HashPassword(password)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "[Service.CreateUser] HashPassword")
		}
	}

	now := s.nowTime()
	user := &User{
		ID:           uuid.New().String(),
		ProjectID:    projectID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.deps.Repo.CreateUser(ctx, user); err != nil {
		if pkgerrors.Is(err, ErrUsernameTaken) {
			return nil, ErrUsernameTaken
		}
		return nil, pkgerrors.Wrap(err, "[Service.CreateUser] Repo.CreateUser")
	}
	return user, nil
}

// StartAddIdentity issues a one-time code to the identity being claimed and
// returns an opaque verification token. The identity is not bound to the
// user until CompleteAddIdentity succeeds.
func (s *Service) StartAddIdentity(ctx context.Context, tenantID, projectID, userID string, identityType tenants.IdentityType, identity string) (string, error) {
	if identityType != tenants.IdentityTypeEmail {
		return "", ErrUnsupportedIdentityType
	}
	if _, err := s.ownedProject(ctx, tenantID, projectID); err != nil {
		return "", err
	}

	user, err := s.deps.Repo.GetUser(ctx, userID)
	if pkgerrors.Is(err, ErrUserNotFound) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", pkgerrors.Wrap(err, "[Service.StartAddIdentity] Repo.GetUser")
	}
	if user.ProjectID != projectID {
		return "", ErrUserNotFound
	}

	params := s.otpPolicy
	params.Context = Context
	params.Metadata = map[string]string{
		metaProjectID:    projectID,
		metaUserID:       userID,
		metaIdentity:     identity,
		metaIdentityType: string(identityType),
	}
	record, err := otp.Generate(ctx, s.deps.OtpStore, params)
	if err != nil {
		return "", pkgerrors.Wrap(err, "[Service.StartAddIdentity] otp.Generate")
	}

	if err := s.deps.Notifier.Send(ctx, notifier.ChannelEmail, identity,
		"Verify your identity", "Your verification code is "+record.Code); err != nil {
		s.logger.Error().Err(err).Str("destination", identity).Msg("identity verification notification failed")
	}

	return record.ID, nil
}

// CompleteAddIdentity consumes the verification token and binds the verified
// identity to the project user. Tokens are single use.
func (s *Service) CompleteAddIdentity(ctx context.Context, verificationToken, code string) error {
	if code == "" {
		return ErrInvalidOtp
	}

	record, err := s.deps.OtpStore.Get(ctx, verificationToken)
	if pkgerrors.Is(err, otp.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return pkgerrors.Wrap(err, "[Service.CompleteAddIdentity] OtpStore.Get")
	}
	if record.Code != code {
		return ErrInvalidOtp
	}
	if record.Context != Context {
		return ErrInvalidToken
	}

	projectID := record.Metadata[metaProjectID]
	userID := record.Metadata[metaUserID]
	identity := record.Metadata[metaIdentity]
	identityType := tenants.IdentityType(record.Metadata[metaIdentityType])
	if projectID == "" || userID == "" || identity == "" || !identityType.Valid() {
		return ErrCorruptMetadata
	}

	// Atomic single-consumption point. Losers of a concurrent race see
	// otp.ErrNotFound here and report an invalid token.
	if _, err := s.deps.OtpStore.Consume(ctx, verificationToken, code); err != nil {
		if pkgerrors.Is(err, otp.ErrNotFound) {
			return ErrInvalidToken
		}
		if pkgerrors.Is(err, otp.ErrCodeMismatch) {
			return ErrInvalidOtp
		}
		return pkgerrors.Wrap(err, "[Service.CompleteAddIdentity] OtpStore.Consume")
	}

	now := s.nowTime()
	if err := s.deps.Repo.AddUserIdentity(ctx, &UserIdentity{
		ID:           uuid.New().String(),
		ProjectID:    projectID,
		UserID:       userID,
		IdentityType: identityType,
		Identity:     identity,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		if pkgerrors.Is(err, ErrIdentityTaken) {
			return ErrIdentityTaken
		}
		return pkgerrors.Wrap(err, "[Service.CompleteAddIdentity] Repo.AddUserIdentity")
	}
	return nil
}

// Project returns a project after checking tenant ownership.
func (s *Service) Project(ctx context.Context, tenantID, projectID string) (*Project, error) {
	return s.ownedProject(ctx, tenantID, projectID)
}

func (s *Service) ownedProject(ctx context.Context, tenantID, projectID string) (*Project, error) {
	project, err := s.deps.Repo.GetProject(ctx, projectID)
	if pkgerrors.Is(err, ErrProjectNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.ownedProject] Repo.GetProject")
	}
	if project.TenantID != tenantID {
		return nil, ErrWrongTenant
	}
	return project, nil
}
