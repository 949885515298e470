package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when no record exists for the given id,
	// either because it never existed, expired, or was already consumed.
	ErrNotFound = errors.New("otp not found")

	// ErrCodeMismatch is returned by Consume when the presented code does
	// not match the stored one. The record is left untouched.
	ErrCodeMismatch = errors.New("otp code mismatch")
)

// Kind selects the character set of a generated code.
type Kind string

const (
	// KindNumeric codes contain digits only.
	KindNumeric Kind = "NUMERIC"
)

// Otp is a one-time code with a context tag and caller metadata. The ID is
// the opaque handle given to callers; the code travels out-of-band.
type Otp struct {
	ID        string
	Code      string
	Context   string
	ExpiresAt time.Time
	Metadata  map[string]string
}

// Expired reports whether the record is past its expiry at the given time.
func (o *Otp) Expired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}

// Params describes the code to generate.
type Params struct {
	Kind     Kind
	Length   int
	TTL      time.Duration
	Context  string
	Metadata map[string]string
}

// Store persists one-time codes. Consume must be atomic: two concurrent
// consumers of the same id must not both succeed.
type Store interface {
	Save(ctx context.Context, record *Otp) error
	Get(ctx context.Context, id string) (*Otp, error)
	Consume(ctx context.Context, id, code string) (*Otp, error)
}

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Generate creates a new code per params, persists it, and returns it.
func Generate(ctx context.Context, store Store, params Params) (*Otp, error) {
	if params.Kind != KindNumeric {
		return nil, pkgerrors.Errorf("[otp.Generate] unsupported kind %q", params.Kind)
	}
	if params.Length <= 0 {
		return nil, pkgerrors.Errorf("[otp.Generate] invalid length %d", params.Length)
	}

	code, err := numericCode(params.Length)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[otp.Generate] numericCode")
	}

	record := &Otp{
		ID:        uuid.New().String(),
		Code:      code,
		Context:   params.Context,
		ExpiresAt: NowTimeFunc().Add(params.TTL),
		Metadata:  params.Metadata,
	}
	if err := store.Save(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(err, "[otp.Generate] store.Save")
	}
	return record, nil
}

func numericCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
