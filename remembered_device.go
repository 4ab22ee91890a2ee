package assurance

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// trustTier is the assurance bar a device token was issued under. The
// tier is fixed at issuance and re-validated against the requirement of
// every later request; a token issued under the long (AAL1) tier never
// satisfies an AAL2/IAL2 demand, expired or not.
type trustTier uint8

const (
	tierBaseline trustTier = iota + 1 // issued under AAL1/IAL1, long TTL
	tierStrong                        // issued under AAL2/IAL2, short TTL
)

func (t trustTier) claim() string {
	if t == tierStrong {
		return "aal2"
	}
	return "aal1"
}

func tierFromClaim(s string) (trustTier, bool) {
	switch s {
	case "aal1":
		return tierBaseline, true
	case "aal2":
		return tierStrong, true
	default:
		return 0, false
	}
}

const deviceRecordVersion1 = 1

type deviceClaims struct {
	Tier string `json:"tier"`
	jwt.RegisteredClaims
}

type deviceRecord struct {
	Tier      trustTier
	ExpiresAt int64
}

// RememberedDeviceStore issues and validates device-trust tokens. A token
// is an HS256-signed JWT carrying the subject, a record id, and the tier;
// the matching Redis record is authoritative so revocation takes effect
// immediately. Validation fails closed: any absent, malformed, expired,
// or tier-insufficient token simply reads as not trusted.
type RememberedDeviceStore struct {
	redis redis.UniversalClient
	cfg   RememberedDeviceConfig
	now   func() time.Time
}

// NewRememberedDeviceStore builds a store over the given Redis client.
func NewRememberedDeviceStore(redisClient redis.UniversalClient, cfg RememberedDeviceConfig) *RememberedDeviceStore {
	return &RememberedDeviceStore{
		redis: redisClient,
		cfg:   cfg,
		now:   time.Now,
	}
}

func (s *RememberedDeviceStore) key(subjectID, recordID string) string {
	return s.cfg.RedisPrefix + ":" + subjectID + ":" + recordID
}

// Issue mints a trust token for the subject's current device. The tier
// matches the sp requirement at issuance time: strong demands get the
// short TTL and the strong tier marker, everything else the long TTL.
// The caller sets the returned token as a cookie expiring at ExpiresAt.
func (s *RememberedDeviceStore) Issue(ctx context.Context, subjectID string, sp SPContext) (DeviceTrust, error) {
	tier := tierBaseline
	ttl := s.cfg.LongTTL
	if sp.StrongAssurance() {
		tier = tierStrong
		ttl = s.cfg.ShortTTL
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	recordID := uuid.NewString()

	encoded, err := encodeDeviceRecord(deviceRecord{Tier: tier, ExpiresAt: expiresAt.Unix()})
	if err != nil {
		return DeviceTrust{}, err
	}
	if err := s.redis.Set(ctx, s.key(subjectID, recordID), encoded, ttl).Err(); err != nil {
		return DeviceTrust{}, fmt.Errorf("%w: %v", ErrDeviceTrustUnavailable, err)
	}

	claims := deviceClaims{
		Tier: tier.claim(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   subjectID,
			ID:        recordID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SigningKey)
	if err != nil {
		return DeviceTrust{}, err
	}

	return DeviceTrust{Token: token, ExpiresAt: expiresAt}, nil
}

// IsTrusted reports whether the presented token satisfies the sp
// requirement. Signature, expiry, subject binding, tier, and the live
// Redis record are all required; only Redis unavailability returns an
// error, every other failure reads as untrusted.
func (s *RememberedDeviceStore) IsTrusted(ctx context.Context, subjectID, token string, sp SPContext) (bool, error) {
	claims, ok := s.parse(token)
	if !ok || claims.Subject != subjectID {
		return false, nil
	}

	tier, ok := tierFromClaim(claims.Tier)
	if !ok {
		return false, nil
	}
	if sp.StrongAssurance() && tier != tierStrong {
		return false, nil
	}

	data, err := s.redis.Get(ctx, s.key(subjectID, claims.ID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrDeviceTrustUnavailable, err)
	}

	record, err := decodeDeviceRecord(data)
	if err != nil {
		return false, nil
	}
	if record.Tier != tier {
		return false, nil
	}
	if s.now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(subjectID, claims.ID)).Result()
		return false, nil
	}
	return true, nil
}

// Revoke invalidates the presented token immediately. The signature must
// verify so one subject cannot revoke another's trust, but an expired
// token may still be revoked.
func (s *RememberedDeviceStore) Revoke(ctx context.Context, subjectID, token string) error {
	claims, ok := s.parse(token)
	if !ok || claims.Subject != subjectID {
		return nil
	}
	if err := s.redis.Del(ctx, s.key(subjectID, claims.ID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceTrustUnavailable, err)
	}
	return nil
}

// RevokeAll drops every remembered device of the subject.
func (s *RememberedDeviceStore) RevokeAll(ctx context.Context, subjectID string) error {
	iter := s.redis.Scan(ctx, 0, s.cfg.RedisPrefix+":"+subjectID+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceTrustUnavailable, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceTrustUnavailable, err)
	}
	return nil
}

// parse verifies the signature, method, and issuer. Expiry is not
// enforced here: trust checks read it from the authoritative Redis
// record, and Revoke must accept expired tokens.
func (s *RememberedDeviceStore) parse(token string) (*deviceClaims, bool) {
	if token == "" || len(s.cfg.SigningKey) == 0 {
		return nil, false
	}
	claims := &deviceClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid {
		return nil, false
	}
	if claims.Issuer != s.cfg.Issuer || claims.ID == "" || claims.Subject == "" {
		return nil, false
	}
	return claims, true
}

func encodeDeviceRecord(record deviceRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(deviceRecordVersion1)
	buf.WriteByte(byte(record.Tier))
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeDeviceRecord(data []byte) (deviceRecord, error) {
	var record deviceRecord
	if len(data) < 2 || data[0] != deviceRecordVersion1 {
		return record, errors.New("device record version mismatch")
	}
	record.Tier = trustTier(data[1])

	buf := bytes.NewReader(data[2:])
	if err := binary.Read(buf, binary.BigEndian, &record.ExpiresAt); err != nil {
		return record, err
	}
	return record, nil
}
