package calls

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"answering-machine/internal/apperr"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each call record in a hash and indexes call ids in a sorted
// set scored by creation time. Mutations run as Lua scripts, which Redis executes
// atomically, so callbacks for the same call cannot interleave.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	opts   StoreOptions
}

// NewRedisStore returns a store using keys under prefix (default "am").
func NewRedisStore(rdb *redis.Client, prefix string, opts StoreOptions) *RedisStore {
	if prefix == "" {
		prefix = "am"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, opts: opts}
}

func (s *RedisStore) recordKey(callID string) string { return s.prefix + ":call:" + callID }
func (s *RedisStore) indexKey() string               { return s.prefix + ":calls" }

var putRecordScript = redis.NewScript(`
-- KEYS[1] = record hash
-- KEYS[2] = index zset
-- ARGV[1] = call id
-- ARGV[2] = created_at score
-- ARGV[3..] = field/value pairs
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)

var updateRecordScript = redis.NewScript(`
-- KEYS[1] = record hash
-- ARGV[1] = status          ('' keeps current)
-- ARGV[2] = duration        ('' keeps current)
-- ARGV[3] = price           ('' keeps current)
-- ARGV[4] = price_unit      ('' keeps current)
-- ARGV[5] = error_message   ('' keeps current)
-- ARGV[6] = sequence_number ('' keeps current)
-- ARGV[7] = updated_at (unix micros)
-- ARGV[8] = '1' to reject stale sequence numbers
--
-- Returns {code, field, value, ...}
--  code -1 unknown call, 0 stale, 1 applied
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {-1}
end

local code = 1
if ARGV[8] == '1' and ARGV[6] ~= '' then
  local cur = redis.call('HGET', KEYS[1], 'sequence_number')
  if cur and cur ~= '' and tonumber(ARGV[6]) <= tonumber(cur) then
    code = 0
  end
end

if code == 1 then
  local names = {'status', 'duration', 'price', 'price_unit', 'error_message', 'sequence_number'}
  for i, name in ipairs(names) do
    if ARGV[i] ~= '' then
      redis.call('HSET', KEYS[1], name, ARGV[i])
    end
  end
  local created = redis.call('HGET', KEYS[1], 'created_at')
  if tonumber(ARGV[7]) < tonumber(created) then
    redis.call('HSET', KEYS[1], 'updated_at', created)
  else
    redis.call('HSET', KEYS[1], 'updated_at', ARGV[7])
  end
end

local out = {code}
local all = redis.call('HGETALL', KEYS[1])
for i = 1, #all do
  out[#out + 1] = all[i]
end
return out
`)

func (s *RedisStore) Put(ctx context.Context, r CallRecord) error {
	if r.CallID == "" {
		return fmt.Errorf("calls: call_id required: %w", apperr.ErrInvalidArgument)
	}
	args := []any{r.CallID, r.CreatedAt.UnixMicro()}
	args = append(args, encodeRecord(r)...)

	res, err := putRecordScript.Run(ctx, s.rdb, []string{s.recordKey(r.CallID), s.indexKey()}, args...).Int()
	if err != nil {
		return fmt.Errorf("calls: put %s: %w", r.CallID, err)
	}
	if res == 0 {
		return fmt.Errorf("calls: %s: %w", r.CallID, apperr.ErrAlreadyExists)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, callID string) (CallRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, s.recordKey(callID)).Result()
	if err != nil {
		return CallRecord{}, fmt.Errorf("calls: get %s: %w", callID, err)
	}
	if len(fields) == 0 {
		return CallRecord{}, fmt.Errorf("calls: %s: %w", callID, apperr.ErrNotFound)
	}
	return decodeRecord(callID, fields)
}

func (s *RedisStore) Update(ctx context.Context, callID string, u StatusUpdate) (CallRecord, error) {
	reject := "0"
	if s.opts.RejectStale {
		reject = "1"
	}
	res, err := updateRecordScript.Run(ctx, s.rdb, []string{s.recordKey(callID)},
		string(u.Status),
		optInt(u.Duration),
		optFloat(u.Price),
		u.PriceUnit,
		u.ErrorMessage,
		optInt(u.SequenceNumber),
		u.UpdatedAt.UnixMicro(),
		reject,
	).Slice()
	if err != nil {
		return CallRecord{}, fmt.Errorf("calls: update %s: %w", callID, err)
	}
	if len(res) == 0 {
		return CallRecord{}, fmt.Errorf("calls: update %s: empty script reply", callID)
	}
	code, _ := res[0].(int64)
	if code == -1 {
		return CallRecord{}, fmt.Errorf("calls: %s: %w", callID, apperr.ErrNotFound)
	}

	fields := make(map[string]string, (len(res)-1)/2)
	for i := 1; i+1 < len(res); i += 2 {
		k, _ := res[i].(string)
		v, _ := res[i+1].(string)
		fields[k] = v
	}
	rec, err := decodeRecord(callID, fields)
	if err != nil {
		return CallRecord{}, err
	}
	if code == 0 {
		return rec, fmt.Errorf("calls: %s: %w", callID, apperr.ErrStaleEvent)
	}
	return rec, nil
}

// List returns all records ordered by creation time, then call id.
func (s *RedisStore) List(ctx context.Context) ([]CallRecord, error) {
	ids, err := s.rdb.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("calls: list: %w", err)
	}
	if len(ids) == 0 {
		return []CallRecord{}, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("calls: list: %w", err)
	}

	out := make([]CallRecord, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := decodeRecord(ids[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func encodeRecord(r CallRecord) []any {
	return []any{
		"destination_number", r.DestinationNumber,
		"audio_url", r.AudioURL,
		"status", string(r.Status),
		"duration", optInt(r.Duration),
		"price", optFloat(r.Price),
		"price_unit", r.PriceUnit,
		"error_message", r.ErrorMessage,
		"sequence_number", optInt(r.SequenceNumber),
		"created_at", strconv.FormatInt(r.CreatedAt.UnixMicro(), 10),
		"updated_at", strconv.FormatInt(r.UpdatedAt.UnixMicro(), 10),
	}
}

func decodeRecord(callID string, f map[string]string) (CallRecord, error) {
	r := CallRecord{
		CallID:            callID,
		DestinationNumber: f["destination_number"],
		AudioURL:          f["audio_url"],
		Status:            CallStatus(f["status"]),
		PriceUnit:         f["price_unit"],
		ErrorMessage:      f["error_message"],
	}
	var err error
	if r.Duration, err = parseOptInt(f["duration"]); err != nil {
		return CallRecord{}, fmt.Errorf("calls: %s: duration: %w", callID, err)
	}
	if r.SequenceNumber, err = parseOptInt(f["sequence_number"]); err != nil {
		return CallRecord{}, fmt.Errorf("calls: %s: sequence_number: %w", callID, err)
	}
	if v := f["price"]; v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return CallRecord{}, fmt.Errorf("calls: %s: price: %w", callID, err)
		}
		r.Price = &p
	}
	created, err := strconv.ParseInt(f["created_at"], 10, 64)
	if err != nil {
		return CallRecord{}, fmt.Errorf("calls: %s: created_at: %w", callID, err)
	}
	updated, err := strconv.ParseInt(f["updated_at"], 10, 64)
	if err != nil {
		return CallRecord{}, fmt.Errorf("calls: %s: updated_at: %w", callID, err)
	}
	r.CreatedAt = time.UnixMicro(created).UTC()
	r.UpdatedAt = time.UnixMicro(updated).UTC()
	return r, nil
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func parseOptInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
