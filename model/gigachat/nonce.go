package gigachat

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NonceFunc produces a request identifier sent in the RqUID header.
type NonceFunc func() string

// NewNonce returns a fresh RFC 4122 version 4 UUID in its 36 character form.
// crypto/rand is used when available; otherwise the bytes come from
// math/rand/v2 with the version and variant bits forced.
func NewNonce() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	return fallbackNonce()
}

func fallbackNonce() string {
	var b uuid.UUID
	for i := range b {
		b[i] = byte(rand.UintN(256))
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return b.String()
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// newCallID builds an identifier for a synthesized tool call. It only needs
// to be unique within a conversation.
func newCallID() string {
	var sb strings.Builder
	sb.WriteString("gigachat_")
	sb.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 10))
	sb.WriteByte('_')
	for range 9 {
		sb.WriteByte(base36[rand.IntN(len(base36))])
	}
	return sb.String()
}
