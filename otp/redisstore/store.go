package redisstore

import (
	"context"
	"encoding/json"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/tenauth/go-identity-server/otp"
)

var _ otp.Store = (*Store)(nil)

const keyPrefix = "otp:"

// consumeScript performs the compare-and-delete in a single Redis call so
// two concurrent consumers of the same id cannot both succeed.
const consumeScript = `
local raw = redis.call("GET", KEYS[1])
if not raw then
  return false
end
local rec = cjson.decode(raw)
if rec.code ~= ARGV[1] then
  return ""
end
redis.call("DEL", KEYS[1])
return raw
`

var consumeLua = redis.NewScript(consumeScript)

type storedOtp struct {
	ID        string            `json:"id"`
	Code      string            `json:"code"`
	Context   string            `json:"context"`
	ExpiresAt int64             `json:"expires_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Store keeps one-time codes in Redis, relying on key TTL for expiry.
type Store struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func (s *Store) Save(ctx context.Context, record *otp.Otp) error {
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return pkgerrors.Errorf("[redisstore.Save] record already expired")
	}
	raw, err := json.Marshal(toStored(record))
	if err != nil {
		return pkgerrors.Wrap(err, "[redisstore.Save] json.Marshal")
	}
	if err := s.client.Set(ctx, keyPrefix+record.ID, raw, ttl).Err(); err != nil {
		return pkgerrors.Wrap(err, "[redisstore.Save] SET")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*otp.Otp, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id).Result()
	if err == redis.Nil {
		return nil, otp.ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[redisstore.Get] GET")
	}
	return fromRaw([]byte(raw))
}

func (s *Store) Consume(ctx context.Context, id, code string) (*otp.Otp, error) {
	res, err := consumeLua.Run(ctx, s.client, []string{keyPrefix + id}, code).Result()
	if err == redis.Nil {
		return nil, otp.ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[redisstore.Consume] EVAL")
	}
	raw, ok := res.(string)
	if !ok {
		return nil, otp.ErrNotFound
	}
	if raw == "" {
		return nil, otp.ErrCodeMismatch
	}
	return fromRaw([]byte(raw))
}

func toStored(record *otp.Otp) storedOtp {
	return storedOtp{
		ID:        record.ID,
		Code:      record.Code,
		Context:   record.Context,
		ExpiresAt: record.ExpiresAt.UnixMilli(),
		Metadata:  record.Metadata,
	}
}

func fromRaw(raw []byte) (*otp.Otp, error) {
	var stored storedOtp
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, pkgerrors.Wrap(err, "[redisstore] json.Unmarshal")
	}
	return &otp.Otp{
		ID:        stored.ID,
		Code:      stored.Code,
		Context:   stored.Context,
		ExpiresAt: time.UnixMilli(stored.ExpiresAt),
		Metadata:  stored.Metadata,
	}, nil
}
