package store

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"campfire/pkg/domain"
)

// Cursor is the keyset position after the last item of the previous page:
// pagination continues strictly before (CreatedAt, Seq) in descending order,
// which is immune to duplicates and skips under concurrent inserts.
type Cursor struct {
	CreatedAt time.Time
	Seq       int64
}

// EncodeCursor renders an opaque page token.
func EncodeCursor(c Cursor) string {
	raw := fmt.Sprintf("%d:%d", c.CreatedAt.UTC().UnixNano(), c.Seq)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses an opaque page token. An empty token means "from the
// newest row". Malformed tokens are an input error, not a silent reset.
func DecodeCursor(token string) (Cursor, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, false, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, false, domain.E(domain.KindInvalidInput, "invalid cursor")
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return Cursor{}, false, domain.E(domain.KindInvalidInput, "invalid cursor")
	}
	nanos, err1 := strconv.ParseInt(parts[0], 10, 64)
	seq, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return Cursor{}, false, domain.E(domain.KindInvalidInput, "invalid cursor")
	}
	return Cursor{CreatedAt: time.Unix(0, nanos).UTC(), Seq: seq}, true, nil
}
