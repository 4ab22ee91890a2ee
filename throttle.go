package assurance

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ThrottleKind names one attempt budget. Limits come from
// [ThrottleConfig]; every attempt of a kind counts regardless of outcome.
type ThrottleKind uint8

const (
	// ThrottleIdvAttempts limits identity-verification document attempts.
	ThrottleIdvAttempts ThrottleKind = iota
	// ThrottleOtpSends limits OTP deliveries to a phone.
	ThrottleOtpSends
	// ThrottleMfaAttempts limits second-factor verification attempts.
	ThrottleMfaAttempts
)

// String returns the stable key segment for the kind.
func (k ThrottleKind) String() string {
	switch k {
	case ThrottleIdvAttempts:
		return "idv"
	case ThrottleOtpSends:
		return "otp_send"
	case ThrottleMfaAttempts:
		return "mfa"
	default:
		return "unknown"
	}
}

const throttleRecordVersion1 = 1

// ThrottleStore persists attempt counters per (subject, kind) with lazy
// window expiry. Increments run as a WATCH-guarded read-modify-write so
// concurrent attempts (double-submitted OTP forms) never lose updates.
type ThrottleStore struct {
	redis redis.UniversalClient
	cfg   ThrottleConfig
	now   func() time.Time
}

// NewThrottleStore builds a store over the given Redis client.
func NewThrottleStore(redisClient redis.UniversalClient, cfg ThrottleConfig) *ThrottleStore {
	return &ThrottleStore{
		redis: redisClient,
		cfg:   cfg,
		now:   time.Now,
	}
}

func (s *ThrottleStore) key(subjectID string, kind ThrottleKind) string {
	return s.cfg.RedisPrefix + ":" + kind.String() + ":" + subjectID
}

func (s *ThrottleStore) limits(kind ThrottleKind) (ThrottleKindConfig, error) {
	kc, ok := s.cfg.Kinds[kind]
	if !ok {
		return ThrottleKindConfig{}, ErrThrottleKindUnknown
	}
	return kc, nil
}

// IsExpired reports whether the entry's window has lapsed at now. An
// entry with no recorded attempt is expired by definition.
func (s *ThrottleStore) IsExpired(entry ThrottleEntry, now time.Time) bool {
	if entry.AttemptedAt.IsZero() {
		return true
	}
	kc, err := s.limits(entry.Kind)
	if err != nil {
		return true
	}
	return now.After(entry.AttemptedAt.Add(kc.Window))
}

// Status consults the counter without mutating it. Callers must invoke
// this before allowing a new attempt; RetryAfter is derived from
// attempted_at + window - now when maxed.
func (s *ThrottleStore) Status(ctx context.Context, subjectID string, kind ThrottleKind) (ThrottleStatus, error) {
	kc, err := s.limits(kind)
	if err != nil {
		return ThrottleStatus{}, err
	}

	entry, err := s.get(ctx, subjectID, kind)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ThrottleStatus{}, nil
		}
		return ThrottleStatus{}, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}

	now := s.now()
	if s.IsExpired(entry, now) {
		return ThrottleStatus{}, nil
	}
	status := ThrottleStatus{Attempts: entry.Attempts}
	if entry.Attempts >= kc.MaxAttempts {
		status.Maxed = true
		status.RetryAfter = entry.AttemptedAt.Add(kc.Window).Sub(now)
	}
	return status, nil
}

// IsMaxed reports whether attempts have reached the kind's limit within
// a live window.
func (s *ThrottleStore) IsMaxed(ctx context.Context, subjectID string, kind ThrottleKind) (bool, error) {
	status, err := s.Status(ctx, subjectID, kind)
	if err != nil {
		return false, err
	}
	return status.Maxed, nil
}

// RecordAttempt counts one attempt, success or failure alike. An expired
// entry resets to one attempt with a fresh attempted_at; a live entry
// increments and slides attempted_at to now.
func (s *ThrottleStore) RecordAttempt(ctx context.Context, subjectID string, kind ThrottleKind) (ThrottleEntry, error) {
	kc, err := s.limits(kind)
	if err != nil {
		return ThrottleEntry{}, err
	}

	const maxRetries = 16
	key := s.key(subjectID, kind)

	for i := 0; i < maxRetries; i++ {
		var result ThrottleEntry
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			now := s.now()
			entry := ThrottleEntry{SubjectID: subjectID, Kind: kind}

			data, err := tx.Get(ctx, key).Bytes()
			switch {
			case err == nil:
				decoded, derr := decodeThrottleEntry(data)
				if derr != nil {
					return derr
				}
				entry.Attempts = decoded.Attempts
				entry.AttemptedAt = decoded.AttemptedAt
			case errors.Is(err, redis.Nil):
				// first attempt for this key
			default:
				return err
			}

			if now.After(entry.AttemptedAt.Add(kc.Window)) {
				entry.Attempts = 1
			} else {
				entry.Attempts++
			}
			entry.AttemptedAt = now
			result = entry

			encoded, err := encodeThrottleEntry(entry)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, kc.Window)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return ThrottleEntry{}, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
		}
		return result, nil
	}

	return ThrottleEntry{}, fmt.Errorf("%w: attempt contention not resolved", ErrThrottleUnavailable)
}

// Reset clears the counter, used when an operator unblocks a subject.
func (s *ThrottleStore) Reset(ctx context.Context, subjectID string, kind ThrottleKind) error {
	if err := s.redis.Del(ctx, s.key(subjectID, kind)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	return nil
}

func (s *ThrottleStore) get(ctx context.Context, subjectID string, kind ThrottleKind) (ThrottleEntry, error) {
	data, err := s.redis.Get(ctx, s.key(subjectID, kind)).Bytes()
	if err != nil {
		return ThrottleEntry{}, err
	}
	entry, err := decodeThrottleEntry(data)
	if err != nil {
		return ThrottleEntry{}, err
	}
	entry.SubjectID = subjectID
	entry.Kind = kind
	return entry, nil
}

func encodeThrottleEntry(entry ThrottleEntry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(throttleRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, uint32(entry.Attempts)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, entry.AttemptedAt.Unix()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeThrottleEntry(data []byte) (ThrottleEntry, error) {
	var entry ThrottleEntry
	if len(data) < 1 || data[0] != throttleRecordVersion1 {
		return entry, errors.New("throttle record version mismatch")
	}

	buf := bytes.NewReader(data[1:])
	var attempts uint32
	if err := binary.Read(buf, binary.BigEndian, &attempts); err != nil {
		return entry, err
	}
	var attemptedAt int64
	if err := binary.Read(buf, binary.BigEndian, &attemptedAt); err != nil {
		return entry, err
	}

	entry.Attempts = int(attempts)
	entry.AttemptedAt = time.Unix(attemptedAt, 0)
	return entry, nil
}
