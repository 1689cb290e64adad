package idempotency

import "fmt"

// maxKeyLen bounds the client-supplied token; anything longer is rejected
// before a transaction is opened.
const maxKeyLen = 49

// Key is a validated idempotency key (1 to 49 characters).
type Key string

// ParseKey validates the raw client token. An empty or over-length token is a
// client error and must never reach the store.
func ParseKey(raw string) (Key, error) {
	if raw == "" {
		return "", fmt.Errorf("idempotency key cannot be empty")
	}
	if len(raw) > maxKeyLen {
		return "", fmt.Errorf("idempotency key must be at most %d characters", maxKeyLen)
	}
	return Key(raw), nil
}

func (k Key) String() string { return string(k) }
