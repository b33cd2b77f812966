package activity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// ComputeEventHash derives the integrity hash the client must attach to an
// event: HMAC-SHA256 over childId:packageName:durationSeconds:start:end.
// A client without the shared secret cannot fabricate a valid event.
func ComputeEventHash(secret, childID, packageName string, durationSeconds, startMs, endMs int64) string {
	payload := strings.Join([]string{
		childID,
		packageName,
		strconv.FormatInt(durationSeconds, 10),
		strconv.FormatInt(startMs, 10),
		strconv.FormatInt(endMs, 10),
	}, ":")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyEventHash checks an event's client hash in constant time.
func VerifyEventHash(secret, childID string, ev *ActivityEvent) bool {
	expected := ComputeEventHash(secret, childID, ev.PackageName, ev.DurationSeconds, ev.StartTimestamp, ev.EndTimestamp)
	return hmac.Equal([]byte(expected), []byte(ev.ClientHash))
}
