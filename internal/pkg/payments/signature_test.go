package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
)

func signManifest(secret, requestID, dataID, ts string) string {
	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", dataID, requestID, ts)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "top-secret"
	requestID := "req-abc-123"
	dataID := "123456789"
	ts := "1693526400"

	header := fmt.Sprintf("ts=%s,v1=%s", ts, signManifest(secret, requestID, dataID, ts))
	if !VerifyWebhookSignature(header, requestID, dataID, secret) {
		t.Fatalf("expected signature to validate")
	}

	if VerifyWebhookSignature(header, requestID, dataID, "wrong-secret") {
		t.Fatalf("expected signature with wrong secret to fail")
	}
	if VerifyWebhookSignature(header, "other-request", dataID, secret) {
		t.Fatalf("expected signature with mutated request id to fail")
	}
	if VerifyWebhookSignature(header, requestID, "987654321", secret) {
		t.Fatalf("expected signature with mutated data id to fail")
	}
	mutated := fmt.Sprintf("ts=%s,v1=deadbeef", ts)
	if VerifyWebhookSignature(mutated, requestID, dataID, secret) {
		t.Fatalf("expected tampered digest to fail")
	}
}

func TestVerifyWebhookSignature_HeaderWithSpaces(t *testing.T) {
	secret := "s3cr3t"
	requestID := "req-1"
	dataID := "42"
	ts := "1700000000"

	header := fmt.Sprintf("ts=%s, v1=%s", ts, signManifest(secret, requestID, dataID, ts))
	if !VerifyWebhookSignature(header, requestID, dataID, secret) {
		t.Fatalf("expected signature with padded header parts to validate")
	}
}

func TestVerifyWebhookSignature_LowercasesAlphanumericID(t *testing.T) {
	secret := "s3cr3t"
	requestID := "req-1"
	ts := "1700000000"

	// The provider signs the lowercased form of alphanumeric ids.
	header := fmt.Sprintf("ts=%s,v1=%s", ts, signManifest(secret, requestID, "abc123def", ts))
	if !VerifyWebhookSignature(header, requestID, "ABC123DEF", secret) {
		t.Fatalf("expected uppercase data id to validate against lowercase manifest")
	}
}

func TestVerifyWebhookSignature_MissingInput(t *testing.T) {
	secret := "s3cr3t"
	header := "ts=1700000000,v1=" + signManifest(secret, "req", "42", "1700000000")

	if VerifyWebhookSignature("", "req", "42", secret) {
		t.Fatalf("expected empty header to fail")
	}
	if VerifyWebhookSignature(header, "req", "", secret) {
		t.Fatalf("expected empty data id to fail")
	}
	if VerifyWebhookSignature(header, "req", "42", "") {
		t.Fatalf("expected empty secret to fail")
	}
	if VerifyWebhookSignature("ts=1700000000", "req", "42", secret) {
		t.Fatalf("expected header without v1 to fail")
	}
	if VerifyWebhookSignature("v1=deadbeef", "req", "42", secret) {
		t.Fatalf("expected header without ts to fail")
	}
	if VerifyWebhookSignature("garbage-header", "req", "42", secret) {
		t.Fatalf("expected malformed header to fail")
	}
}
