package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// VerifyWebhookSignature validates that a notification was sent by the
// payment provider. The signature header is a comma-delimited key=value list
// carrying a timestamp (ts) and an HMAC-SHA256 hex digest (v1) over the
// manifest `id:{dataID};request-id:{requestID};ts:{ts};`. Missing or
// malformed input yields false, never a panic; comparison is constant time.
func VerifyWebhookSignature(signatureHeader, requestID, dataID, secret string) bool {
	sec := strings.TrimSpace(secret)
	header := strings.TrimSpace(signatureHeader)
	id := strings.TrimSpace(dataID)
	if sec == "" || header == "" || id == "" {
		return false
	}

	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.TrimSpace(kv[0]) {
		case "ts":
			ts = strings.TrimSpace(kv[1])
		case "v1":
			v1 = strings.TrimSpace(kv[1])
		}
	}
	if ts == "" || v1 == "" {
		return false
	}

	// Provider convention: alphanumeric data ids are lowercased in the manifest.
	if isAlphanumeric(id) {
		id = strings.ToLower(id)
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", id, strings.TrimSpace(requestID), ts)
	mac := hmac.New(sha256.New, []byte(sec))
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(v1)))
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return s != ""
}
