package transform

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const suffixLen = 8

// NewEventID builds a destination event id: {sessionId}-{timestamp}-{suffix}.
// Uniqueness is best-effort; the server groups on the triple.
func NewEventID(sessionID string, ts int64) string {
	return fmt.Sprintf("%s-%d-%s", sessionID, ts, randomSuffix())
}

// ToolUseID synthesizes an invocation id when the payload carries none.
func ToolUseID(sessionID string, seq int64) string {
	return fmt.Sprintf("%s-%d", sessionID, seq)
}

func randomSuffix() string {
	var sb strings.Builder
	b := make([]byte, 8)
	for sb.Len() < suffixLen {
		if _, err := rand.Read(b); err != nil {
			// Fallback to timestamp-based suffix if crypto/rand fails
			s := strconv.FormatInt(time.Now().UnixNano(), 36)
			return s[len(s)-suffixLen:]
		}
		sb.WriteString(strconv.FormatUint(binary.BigEndian.Uint64(b), 36))
	}
	return sb.String()[:suffixLen]
}
