package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"call-platform/internal/call"

	"github.com/redis/go-redis/v9"
)

// Redis implements call.Channel on a Redis instance reachable by both
// participants' devices.
//
// Layout per call:
//
//	call:{id}              hash, one entry per record field (last write wins)
//	call:{id}:cand:{role}  list, append-only JSON candidate blobs
//	call:{id}:events       pub/sub channel; every write publishes a tick and
//	                       subscribers re-fetch the full record
//
// recordTTL keeps finished negotiations from accumulating; history storage
// owns long-term retention.
const recordTTL = 24 * time.Hour

type Redis struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedis(rdb *redis.Client, log *slog.Logger) *Redis {
	if log == nil {
		log = slog.Default()
	}
	return &Redis{rdb: rdb, log: log}
}

func recordKey(callID string) string { return "call:" + callID }
func candidatesKey(callID string, role call.Role) string {
	return "call:" + callID + ":cand:" + string(role)
}
func eventsKey(callID string) string { return "call:" + callID + ":events" }

// createScript persists the full record only when no record exists for the
// call id yet. Records are created exactly once, by the caller.
var createScript = redis.NewScript(`
-- KEYS[1] = record hash key
-- ARGV    = alternating field, value pairs, then TTL ms as the last ARGV
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
local ttl = table.remove(ARGV)
redis.call('HSET', KEYS[1], unpack(ARGV))
redis.call('PEXPIRE', KEYS[1], ttl)
return 1
`)

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Create(ctx context.Context, rec *call.Record) error {
	pairs, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	argv := make([]any, 0, len(pairs)*2+1)
	for _, p := range pairs {
		argv = append(argv, p[0], p[1])
	}
	argv = append(argv, recordTTL.Milliseconds())

	created, err := createScript.Run(ctx, r.rdb, []string{recordKey(rec.CallID)}, argv...).Int()
	if err != nil {
		return fmt.Errorf("signaling: create: %w", err)
	}
	if created == 0 {
		return call.ErrRecordExists
	}
	return r.notify(ctx, rec.CallID)
}

func (r *Redis) UpdateFields(ctx context.Context, callID string, fields call.Fields) error {
	kv := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		enc, err := encodeField(k, v)
		if err != nil {
			return err
		}
		kv = append(kv, k, enc)
	}
	if err := r.rdb.HSet(ctx, recordKey(callID), kv...).Err(); err != nil {
		return fmt.Errorf("signaling: update: %w", err)
	}
	return r.notify(ctx, callID)
}

func (r *Redis) AppendCandidate(ctx context.Context, callID string, role call.Role, c call.Candidate) error {
	blob, err := json.Marshal(c)
	if err != nil {
		return err
	}
	key := candidatesKey(callID, role)
	pipe := r.rdb.Pipeline()
	pipe.RPush(ctx, key, blob)
	pipe.PExpire(ctx, key, recordTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("signaling: append candidate: %w", err)
	}
	return r.notify(ctx, callID)
}

func (r *Redis) Fetch(ctx context.Context, callID string) (*call.Record, error) {
	pipe := r.rdb.Pipeline()
	hash := pipe.HGetAll(ctx, recordKey(callID))
	callerList := pipe.LRange(ctx, candidatesKey(callID, call.RoleCaller), 0, -1)
	recipientList := pipe.LRange(ctx, candidatesKey(callID, call.RoleRecipient), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("signaling: fetch: %w", err)
	}

	fieldsMap := hash.Val()
	if len(fieldsMap) == 0 {
		return nil, call.ErrCallNotFound
	}
	rec, err := decodeRecord(fieldsMap)
	if err != nil {
		return nil, err
	}
	if rec.CallerCandidates, err = decodeCandidates(callerList.Val()); err != nil {
		return nil, err
	}
	if rec.RecipientCandidates, err = decodeCandidates(recipientList.Val()); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Redis) Subscribe(ctx context.Context, callID string) (<-chan *call.Record, func(), error) {
	ps := r.rdb.Subscribe(ctx, eventsKey(callID))
	// Force the subscription onto the wire before the initial fetch so no
	// write between fetch and subscribe is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("signaling: subscribe: %w", err)
	}

	out := make(chan *call.Record, 16)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}

	go func() {
		defer close(out)
		if rec, err := r.Fetch(ctx, callID); err == nil {
			deliver(out, rec)
		}
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				rec, err := r.Fetch(context.Background(), callID)
				if err != nil {
					r.log.Warn("snapshot fetch failed", "call_id", callID, "err", err)
					continue
				}
				deliver(out, rec)
			}
		}
	}()

	return out, cancel, nil
}

func (r *Redis) notify(ctx context.Context, callID string) error {
	if err := r.rdb.Publish(ctx, eventsKey(callID), "1").Err(); err != nil {
		return fmt.Errorf("signaling: notify: %w", err)
	}
	return nil
}

// deliver never blocks; the oldest snapshot is dropped when the consumer is
// behind, since each delivery carries the full current record.
func deliver(ch chan *call.Record, rec *call.Record) {
	for {
		select {
		case ch <- rec:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

/* ===================== ENCODING ===================== */

const timeLayout = time.RFC3339Nano

func encodeRecord(rec *call.Record) ([][2]string, error) {
	pairs := [][2]string{
		{"call_id", rec.CallID},
		{"chat_thread_id", rec.ChatThreadID},
		{"caller_id", rec.CallerID},
		{"recipient_id", rec.RecipientID},
		{"is_video", strconv.FormatBool(rec.IsVideo)},
		{call.FieldStatus, string(rec.Status)},
		{"start_time", rec.StartTime.Format(timeLayout)},
	}
	if rec.Offer != nil {
		blob, err := json.Marshal(rec.Offer)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, [2]string{"offer", string(blob)})
	}
	if rec.Answer != nil {
		blob, err := json.Marshal(rec.Answer)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, [2]string{call.FieldAnswer, string(blob)})
	}
	return pairs, nil
}

func encodeField(key string, v any) (string, error) {
	switch key {
	case call.FieldStatus:
		s, err := asStatus(v)
		if err != nil {
			return "", err
		}
		return string(s), nil
	case call.FieldAnswer:
		d, err := asDescription(v)
		if err != nil {
			return "", err
		}
		blob, err := json.Marshal(d)
		if err != nil {
			return "", err
		}
		return string(blob), nil
	case call.FieldAnswerTime, call.FieldEndTime:
		t, err := asTime(v)
		if err != nil {
			return "", err
		}
		return t.Format(timeLayout), nil
	case call.FieldDuration:
		n, err := asInt(v)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(n), nil
	default:
		return "", fmt.Errorf("signaling: unknown field %q", key)
	}
}

func decodeRecord(fields map[string]string) (*call.Record, error) {
	rec := &call.Record{
		CallID:       fields["call_id"],
		ChatThreadID: fields["chat_thread_id"],
		CallerID:     fields["caller_id"],
		RecipientID:  fields["recipient_id"],
		Status:       call.Status(fields[call.FieldStatus]),
	}
	rec.IsVideo = fields["is_video"] == "true"

	var err error
	if rec.StartTime, err = parseTime(fields["start_time"]); err != nil {
		return nil, err
	}
	if rec.AnswerTime, err = parseTime(fields[call.FieldAnswerTime]); err != nil {
		return nil, err
	}
	if rec.EndTime, err = parseTime(fields[call.FieldEndTime]); err != nil {
		return nil, err
	}
	if v := fields[call.FieldDuration]; v != "" {
		if rec.DurationSeconds, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("signaling: bad duration %q", v)
		}
	}
	if v := fields["offer"]; v != "" {
		var d call.Description
		if err := json.Unmarshal([]byte(v), &d); err != nil {
			return nil, fmt.Errorf("signaling: bad offer blob: %w", err)
		}
		rec.Offer = &d
	}
	if v := fields[call.FieldAnswer]; v != "" {
		var d call.Description
		if err := json.Unmarshal([]byte(v), &d); err != nil {
			return nil, fmt.Errorf("signaling: bad answer blob: %w", err)
		}
		rec.Answer = &d
	}
	return rec, nil
}

func decodeCandidates(blobs []string) ([]call.Candidate, error) {
	if len(blobs) == 0 {
		return nil, nil
	}
	out := make([]call.Candidate, 0, len(blobs))
	for _, b := range blobs {
		var c call.Candidate
		if err := json.Unmarshal([]byte(b), &c); err != nil {
			return nil, fmt.Errorf("signaling: bad candidate blob: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("signaling: bad timestamp %q", v)
	}
	return t, nil
}
