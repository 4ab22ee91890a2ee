package assurance

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/DavidBeth/identity-idp/internal"
	"github.com/redis/go-redis/v9"
)

const sessionRecordVersion1 = 1

// SessionStore persists assurance session state in Redis. Expiry is
// enforced lazily on read against the stored deadline, with the Redis
// TTL as a backstop. Session mutation belongs to the single request that
// owns the session; the store does no cross-request locking.
type SessionStore struct {
	redis redis.UniversalClient
	cfg   SessionConfig
	now   func() time.Time
}

// NewSessionStore builds a store over the given Redis client.
func NewSessionStore(redisClient redis.UniversalClient, cfg SessionConfig) *SessionStore {
	return &SessionStore{
		redis: redisClient,
		cfg:   cfg,
		now:   time.Now,
	}
}

func (s *SessionStore) key(sessionID string) string {
	return s.cfg.RedisPrefix + ":" + sessionID
}

// Create opens a session at credential success. MfaCompletedAt starts
// zero; the deadline is now + IdleTimeout.
func (s *SessionStore) Create(ctx context.Context, subjectID string, signingUp bool) (*Session, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &Session{
		ID:              sid.String(),
		SubjectID:       subjectID,
		AuthenticatedAt: now,
		ExpiresAt:       now.Add(s.cfg.IdleTimeout),
		SigningUp:       signingUp,
	}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get loads a session by id. An expired session is deleted and reported
// as [ErrSessionExpired]; a missing one as [ErrSessionNotFound].
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	sess, err := decodeSession(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	sess.ID = sessionID

	if sess.Expired(s.now()) {
		_, _ = s.redis.Del(ctx, s.key(sessionID)).Result()
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Save writes the session with a TTL bound to its deadline.
func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	encoded, err := encodeSession(sess)
	if err != nil {
		return err
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrSessionExpired
	}
	if err := s.redis.Set(ctx, s.key(sess.ID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	return nil
}

// Touch refreshes the deadline on activity when sliding expiration is
// on. A fixed-deadline config makes Touch a no-op.
func (s *SessionStore) Touch(ctx context.Context, sess *Session) error {
	if !s.cfg.SlidingExpiration {
		return nil
	}
	sess.ExpiresAt = s.now().Add(s.cfg.IdleTimeout)
	return s.Save(ctx, sess)
}

// Delete drops the session. Deleting an absent session is not an error.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	return nil
}

func encodeSession(sess *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(sessionRecordVersion1)

	var flags byte
	if sess.SigningUp {
		flags |= 1
	}
	buf.WriteByte(flags)

	for _, ts := range []time.Time{sess.AuthenticatedAt, sess.MfaCompletedAt, sess.ExpiresAt} {
		var unix int64
		if !ts.IsZero() {
			unix = ts.Unix()
		}
		if err := binary.Write(&buf, binary.BigEndian, unix); err != nil {
			return nil, err
		}
	}

	for _, field := range []string{sess.SubjectID, sess.PendingAction} {
		if len(field) > 65535 {
			return nil, errors.New("session field length exceeded")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeSession(data []byte) (*Session, error) {
	if len(data) < 2 || data[0] != sessionRecordVersion1 {
		return nil, errors.New("session record version mismatch")
	}

	sess := &Session{SigningUp: data[1]&1 != 0}
	buf := bytes.NewReader(data[2:])

	var authAt, mfaAt, expiresAt int64
	for _, dst := range []*int64{&authAt, &mfaAt, &expiresAt} {
		if err := binary.Read(buf, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}
	if authAt != 0 {
		sess.AuthenticatedAt = time.Unix(authAt, 0)
	}
	if mfaAt != 0 {
		sess.MfaCompletedAt = time.Unix(mfaAt, 0)
	}
	if expiresAt != 0 {
		sess.ExpiresAt = time.Unix(expiresAt, 0)
	}

	for _, dst := range []*string{&sess.SubjectID, &sess.PendingAction} {
		var n uint16
		if err := binary.Read(buf, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		field := make([]byte, n)
		if n > 0 {
			if _, err := io.ReadFull(buf, field); err != nil {
				return nil, err
			}
		}
		*dst = string(field)
	}

	return sess, nil
}
