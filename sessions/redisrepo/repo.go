package redisrepo

import (
	"context"
	"encoding/json"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/tenauth/go-identity-server/sessions"
)

var _ sessions.Repo = (*Repo)(nil)

const (
	sessionKeyPrefix = "sess:"
	tenantSetPrefix  = "tenant_sessions:"
)

// Key TTL is the expiry mechanism: a session key vanishes exactly at its
// ExpiresAt, so EXISTS doubles as the liveness test. The per-tenant set is
// an index that the sweep scripts keep free of stale ids.
//
// The scripts derive keys from arguments and therefore require a
// non-clustered Redis.

const createScript = `
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[3])
return 1
`

const deleteScript = `
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local sess = cjson.decode(raw)
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[1] .. sess.tenant_id, ARGV[2])
return 1
`

const sweepScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
for i = 1, #ids do
  if redis.call("EXISTS", ARGV[1] .. ids[i]) == 0 then
    redis.call("SREM", KEYS[1], ids[i])
  end
end
return 1
`

const countLiveScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local count = 0
for i = 1, #ids do
  if redis.call("EXISTS", ARGV[1] .. ids[i]) == 1 then
    count = count + 1
  else
    redis.call("SREM", KEYS[1], ids[i])
  end
end
return count
`

var (
	createLua    = redis.NewScript(createScript)
	deleteLua    = redis.NewScript(deleteScript)
	sweepLua     = redis.NewScript(sweepScript)
	countLiveLua = redis.NewScript(countLiveScript)
)

// Repo keeps refresh-token sessions in Redis.
type Repo struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Repo {
	return &Repo{client: client}
}

func (r *Repo) Create(ctx context.Context, session *sessions.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return pkgerrors.Errorf("[redisrepo.Create] session already expired")
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return pkgerrors.Wrap(err, "[redisrepo.Create] json.Marshal")
	}
	keys := []string{sessionKeyPrefix + session.ID, tenantSetPrefix + session.TenantID}
	if err := createLua.Run(ctx, r.client, keys, raw, ttl.Milliseconds(), session.ID).Err(); err != nil {
		return pkgerrors.Wrap(err, "[redisrepo.Create] EVAL")
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (*sessions.Session, error) {
	raw, err := r.client.Get(ctx, sessionKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, sessions.ErrSessionNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[redisrepo.Get] GET")
	}
	session := &sessions.Session{}
	if err := json.Unmarshal([]byte(raw), session); err != nil {
		return nil, pkgerrors.Wrap(err, "[redisrepo.Get] json.Unmarshal")
	}
	return session, nil
}

// Delete removes the session as one atomic script call: of two concurrent
// deletes of the same id, exactly one sees success.
func (r *Repo) Delete(ctx context.Context, id string) error {
	existed, err := deleteLua.Run(ctx, r.client,
		[]string{sessionKeyPrefix + id}, tenantSetPrefix, id).Int64()
	if err != nil {
		return pkgerrors.Wrap(err, "[redisrepo.Delete] EVAL")
	}
	if existed == 0 {
		return sessions.ErrSessionNotFound
	}
	return nil
}

func (r *Repo) DeleteExpired(ctx context.Context, tenantID string, _ time.Time) error {
	err := sweepLua.Run(ctx, r.client,
		[]string{tenantSetPrefix + tenantID}, sessionKeyPrefix).Err()
	if err != nil {
		return pkgerrors.Wrap(err, "[redisrepo.DeleteExpired] EVAL")
	}
	return nil
}

func (r *Repo) CountLive(ctx context.Context, tenantID string, _ time.Time) (int, error) {
	count, err := countLiveLua.Run(ctx, r.client,
		[]string{tenantSetPrefix + tenantID}, sessionKeyPrefix).Int64()
	if err != nil {
		return 0, pkgerrors.Wrap(err, "[redisrepo.CountLive] EVAL")
	}
	return int(count), nil
}
