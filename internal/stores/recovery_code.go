package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const codeRecordVersion = 1

var (
	// ErrCodeNotFound reports that no pending code exists for the session.
	ErrCodeNotFound = errors.New("recovery code not found")
	// ErrCodeExpired reports a code past its TTL at consumption time.
	ErrCodeExpired = errors.New("recovery code expired")
	// ErrCodeMismatch reports a wrong code. The attempt was counted.
	ErrCodeMismatch = errors.New("recovery code mismatch")
	// ErrCodeAttemptsExceeded reports that the wrong-code ceiling was hit.
	// The pending code is gone; the caller must start over.
	ErrCodeAttemptsExceeded = errors.New("recovery code attempts exceeded")
	// ErrStoreUnavailable reports a Redis failure.
	ErrStoreUnavailable = errors.New("code store unavailable")
)

// Record is one pending recovery code. Only the digest is kept; the
// plaintext code never reaches storage.
type Record struct {
	CodeHash  [32]byte
	IssuedAt  int64
	ExpiresAt int64
	Attempts  uint16
}

// CodeStore persists pending codes keyed by recovery session ID. One pending
// code per session; saving again replaces the previous one.
type CodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewCodeStore returns a CodeStore using the given key prefix.
func NewCodeStore(redisClient redis.UniversalClient, prefix string) *CodeStore {
	return &CodeStore{redis: redisClient, prefix: prefix}
}

func (s *CodeStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Save writes the pending code for sessionID, replacing any prior one. The
// Redis TTL mirrors the record's ExpiresAt so abandoned codes self-clean.
func (s *CodeStore) Save(ctx context.Context, sessionID string, record *Record, ttl time.Duration) error {
	encoded, err := encodeCodeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(sessionID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Consume checks providedHash against the pending code for sessionID under a
// WATCH transaction. A match deletes the record and returns it. A mismatch
// increments the attempt counter, deleting the record when maxAttempts is
// reached. At most one of any number of concurrent matching submissions
// succeeds.
func (s *CodeStore) Consume(ctx context.Context, sessionID string, providedHash [32]byte, maxAttempts int) (*Record, error) {
	const casRetries = 4
	key := s.key(sessionID)

	for i := 0; i < casRetries; i++ {
		var consumed *Record

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeCodeRecord(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				if err := txDelete(ctx, tx, key); err != nil {
					return err
				}
				return ErrCodeExpired
			}

			if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					if err := txDelete(ctx, tx, key); err != nil {
						return err
					}
					return ErrCodeAttemptsExceeded
				}

				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
				if ttl <= 0 {
					if err := txDelete(ctx, tx, key); err != nil {
						return err
					}
					return ErrCodeExpired
				}

				updated, err := encodeCodeRecord(record)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrCodeMismatch
			}

			if err := txDelete(ctx, tx, key); err != nil {
				return err
			}
			consumed = record
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrCodeNotFound
			case errors.Is(err, ErrCodeExpired),
				errors.Is(err, ErrCodeMismatch),
				errors.Is(err, ErrCodeAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}

		return consumed, nil
	}

	return nil, ErrCodeNotFound
}

// Delete removes the pending code for sessionID, if any.
func (s *CodeStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func txDelete(ctx context.Context, tx *redis.Tx, key string) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	return err
}

func encodeCodeRecord(record *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(codeRecordVersion)
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersion {
		return nil, errors.New("unknown code record version")
	}

	record := &Record{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
