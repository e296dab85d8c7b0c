package sessions

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// State is a recovery session's position in the flow. States only ever
// advance.
type State uint8

const (
	StateAnonymous State = iota
	StateRequested
	StateCodeVerified
	StatePasswordChanged
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateRequested:
		return "recovery_requested"
	case StateCodeVerified:
		return "code_verified"
	case StatePasswordChanged:
		return "password_changed"
	default:
		return "unknown"
	}
}

const sessionRecordVersion = 1

var (
	// ErrNotFound reports an unknown or expired session ID.
	ErrNotFound = errors.New("recovery session not found")
	// ErrStoreUnavailable reports a Redis failure.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Session is one recovery flow in progress. AccountID and Identifier are
// empty for masked sessions opened against unknown identifiers.
type Session struct {
	ID           string
	AccountID    string
	Identifier   string
	State        State
	CSRFToken    string
	BindToken    string
	CodeIssuedAt int64
	CreatedAt    int64
	ExpiresAt    int64
}

// Store reads and writes sessions. Safe for concurrent use.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore returns a session Store with the given key prefix and lifetime.
func NewStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	return &Store{redis: redisClient, prefix: prefix, ttl: ttl}
}

func (s *Store) key(id string) string {
	return s.prefix + ":" + id
}

// Create opens a fresh anonymous session and persists it.
func (s *Store) Create(ctx context.Context) (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:        uuid.NewString(),
		State:     StateAnonymous,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}

	if err := s.write(ctx, session, s.ttl); err != nil {
		return nil, err
	}
	return session, nil
}

// Get loads the session with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	session, err := decodeSession(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > session.ExpiresAt {
		return nil, ErrNotFound
	}

	return session, nil
}

// Save persists session under its current ID, keeping its remaining
// lifetime.
func (s *Store) Save(ctx context.Context, session *Session) error {
	ttl := time.Until(time.Unix(session.ExpiresAt, 0))
	if ttl <= 0 {
		return ErrNotFound
	}
	return s.write(ctx, session, ttl)
}

// Regenerate moves the session to a fresh random ID and removes the old key
// in the same transaction. The session's ID field is updated in place.
func (s *Store) Regenerate(ctx context.Context, session *Session) error {
	ttl := time.Until(time.Unix(session.ExpiresAt, 0))
	if ttl <= 0 {
		return ErrNotFound
	}

	oldKey := s.key(session.ID)
	session.ID = uuid.NewString()

	encoded, err := encodeSession(session)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(session.ID), encoded, ttl)
		pipe.Del(ctx, oldKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Destroy removes the session. Destroying an unknown ID is not an error.
func (s *Store) Destroy(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, session *Session, ttl time.Duration) error {
	encoded, err := encodeSession(session)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(session.ID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func encodeSession(session *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionRecordVersion)
	buf.WriteByte(byte(session.State))

	for _, v := range []int64{session.CodeIssuedAt, session.CreatedAt, session.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	for _, field := range []string{
		session.ID,
		session.AccountID,
		session.Identifier,
		session.CSRFToken,
		session.BindToken,
	} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeSession(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionRecordVersion {
		return nil, errors.New("unknown session record version")
	}

	state, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	session := &Session{State: State(state)}
	for _, dst := range []*int64{&session.CodeIssuedAt, &session.CreatedAt, &session.ExpiresAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}

	for _, dst := range []*string{
		&session.ID,
		&session.AccountID,
		&session.Identifier,
		&session.CSRFToken,
		&session.BindToken,
	} {
		if *dst, err = readString(reader); err != nil {
			return nil, err
		}
	}

	return session, nil
}

func writeString(buf *bytes.Buffer, v string) error {
	if len(v) > 65535 {
		return errors.New("session field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(v))); err != nil {
		return err
	}
	buf.WriteString(v)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}

	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
