package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	if !VerifyPassword(hash, "secret") {
		t.Fatal("expected password verification to succeed")
	}

	if VerifyPassword(hash, "incorrect") {
		t.Fatal("expected password verification to fail")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	key := bytes.Repeat([]byte{0x1}, 32)
	plaintext := []byte("oauth access token")

	encoded, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}

	decrypted, err := Decrypt(encoded, key)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}

	if !bytes.Equal(plaintext, decrypted) {
		t.Fatalf("expected decrypted plaintext to match original, got %s", decrypted)
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{0x2}, 32)

	encoded, err := Encrypt([]byte("payload"), key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}

	tampered := "A" + encoded[1:]
	if _, err := Decrypt(tampered, key); err == nil {
		t.Fatal("expected decryption of tampered ciphertext to fail")
	}
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	other, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if token == other {
		t.Fatal("expected tokens to differ")
	}
}

func TestGenerateNumericCode(t *testing.T) {
	code, err := GenerateNumericCode(6)
	if err != nil {
		t.Fatalf("code error: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	if strings.Trim(code, "0123456789") != "" {
		t.Fatalf("expected digits only, got %q", code)
	}

	if _, err := GenerateNumericCode(0); err == nil {
		t.Fatal("expected error for zero digits")
	}
}

func TestHMACSignatureRoundTrip(t *testing.T) {
	secret := []byte("webhook-secret")
	payload := []byte(`{"event":"post.status_changed"}`)

	sig := SignHMAC(payload, secret)
	if !VerifyHMAC(payload, secret, sig) {
		t.Fatal("expected signature to verify")
	}

	if VerifyHMAC([]byte("other payload"), secret, sig) {
		t.Fatal("expected signature mismatch for altered payload")
	}
	if VerifyHMAC(payload, secret, "deadbeef") {
		t.Fatal("expected signature mismatch for bogus signature")
	}
	if VerifyHMAC(payload, secret, "not-hex") {
		t.Fatal("expected non-hex signature to fail verification")
	}
}
