package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrOTPAttemptsExceeded is returned once a code has been guessed too often.
// The code is discarded and a new one must be requested.
var ErrOTPAttemptsExceeded = errors.New("too many otp attempts")

// OTPStore keeps one pending login code per key (normalized email)
type OTPStore interface {
	Save(ctx context.Context, key, code string, ttl time.Duration) error
	Verify(ctx context.Context, key, code string) (bool, error)
}

// GenerateOTP returns a uniformly random 6-digit code
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// RedisOTPStore stores codes as hashes {code, attempts} with a TTL
type RedisOTPStore struct {
	client      *redis.Client
	maxAttempts int
	prefix      string
}

// verifyScript increments the attempt counter and checks the code in one step.
// Returns 1 on match, 0 on mismatch, -1 when no code is pending, -2 when the
// attempt budget is spent.
var verifyScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if attempts > tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
  return -2
end
if redis.call('HGET', KEYS[1], 'code') == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)

// NewRedisOTPStore creates an OTP store on client
func NewRedisOTPStore(client *redis.Client, maxAttempts int) *RedisOTPStore {
	return &RedisOTPStore{client: client, maxAttempts: maxAttempts, prefix: "otp:"}
}

// Save replaces any pending code for key
func (s *RedisOTPStore) Save(ctx context.Context, key, code string, ttl time.Duration) error {
	k := s.prefix + key
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k, "code", code, "attempts", 0)
		pipe.Expire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	return nil
}

// Verify consumes the code on success
func (s *RedisOTPStore) Verify(ctx context.Context, key, code string) (bool, error) {
	res, err := verifyScript.Run(ctx, s.client, []string{s.prefix + key}, code, s.maxAttempts).Int()
	if err != nil {
		return false, fmt.Errorf("failed to verify otp: %w", err)
	}

	switch res {
	case 1:
		return true, nil
	case -2:
		return false, ErrOTPAttemptsExceeded
	default:
		return false, nil
	}
}

type otpEntry struct {
	code      string
	attempts  int
	expiresAt time.Time
}

// MemoryOTPStore is a process-local OTPStore. Expired entries are dropped
// when read, or by Sweep.
type MemoryOTPStore struct {
	entries     map[string]*otpEntry
	maxAttempts int
	now         func() time.Time
	mu          sync.Mutex
}

// NewMemoryOTPStore creates an in-memory OTP store
func NewMemoryOTPStore(maxAttempts int) *MemoryOTPStore {
	return &MemoryOTPStore{
		entries:     make(map[string]*otpEntry),
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Save replaces any pending code for key
func (s *MemoryOTPStore) Save(ctx context.Context, key, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &otpEntry{code: code, expiresAt: s.now().Add(ttl)}
	return nil
}

// Verify consumes the code on success
func (s *MemoryOTPStore) Verify(ctx context.Context, key, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return false, nil
	}

	entry.attempts++
	if entry.attempts > s.maxAttempts {
		delete(s.entries, key)
		return false, ErrOTPAttemptsExceeded
	}

	if subtle.ConstantTimeCompare([]byte(entry.code), []byte(code)) == 1 {
		delete(s.entries, key)
		return true, nil
	}
	return false, nil
}

// Sweep drops every expired entry
func (s *MemoryOTPStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// StartSweeper runs Sweep every interval until ctx is done
func (s *MemoryOTPStore) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Len returns the number of stored entries, expired or not
func (s *MemoryOTPStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
