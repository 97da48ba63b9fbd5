package identity

import (
	"crypto/rand"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ID prefixes for daemon-generated identifiers.
const (
	MessagePrefix      = "msg_"
	SessionPrefix      = "ses_"
	NotificationPrefix = "ntf_"
)

// GenerateMessageID generates a unique message ID using ULID.
// Format: "msg_" + ulid().
func GenerateMessageID() string {
	return MessagePrefix + generateULID()
}

// GenerateSessionToken generates an opaque session token.
// Format: "ses_" + ulid().
func GenerateSessionToken() string {
	return SessionPrefix + generateULID()
}

// GenerateNotificationID generates a unique notification ID.
// Format: "ntf_" + ulid().
func GenerateNotificationID() string {
	return NotificationPrefix + generateULID()
}

// NewUUID returns a random v4 UUID string, used when seeding users and listings.
func NewUUID() string {
	return uuid.NewString()
}

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

// generateULID generates a ULID string. IDs generated within the same
// millisecond sort in generation order.
func generateULID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy)
	return id.String()
}

// ULIDTimestamp extracts the timestamp from a prefixed or bare ULID string.
func ULIDTimestamp(s string) (time.Time, error) {
	if i := strings.IndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	id, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse ULID: %w", err)
	}

	ms := id.Time()
	if ms/1000 > uint64(math.MaxInt64) {
		return time.Time{}, fmt.Errorf("ULID timestamp %d exceeds int64 range", ms)
	}
	sec := int64(ms / 1000)      //nolint:gosec // overflow checked above
	nsec := int64(ms%1000) * 1e6 //nolint:gosec // ms%1000 is always < 1000

	return time.Unix(sec, nsec), nil
}

// ValidateUUID reports whether s is a canonical hyphenated UUID.
// User and listing ids are UUIDs issued by the marketplace.
func ValidateUUID(s string) error {
	if len(s) != 36 {
		return fmt.Errorf("%q is not a UUID", s)
	}
	if _, err := uuid.Parse(s); err != nil {
		return fmt.Errorf("%q is not a UUID: %w", s, err)
	}
	return nil
}

// NormalizeUUID parses s and returns its lowercase canonical form.
func NormalizeUUID(s string) (string, error) {
	if err := ValidateUUID(s); err != nil {
		return "", err
	}
	return strings.ToLower(s), nil
}

// IsMessageID reports whether s has the message id shape.
func IsMessageID(s string) bool {
	if !strings.HasPrefix(s, MessagePrefix) {
		return false
	}
	_, err := ulid.Parse(strings.TrimPrefix(s, MessagePrefix))
	return err == nil
}
