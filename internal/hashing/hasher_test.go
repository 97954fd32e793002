package hashing

import (
	"testing"

	"jobdesk-auth/internal/config"
)

func testConfig() config.HashingConfig {
	// Low-cost parameters to keep tests fast
	return config.HashingConfig{
		Argon2MemoryCost:   8 * 1024,
		Argon2TimeCost:     1,
		Argon2Parallelism:  1,
		PepperRotationDays: 30,
	}
}

func TestHashAndVerifyOTP(t *testing.T) {
	h := NewHasher(testConfig())

	result, err := h.HashOTP("482913")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	ok, err := h.VerifyOTP("482913", result)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !ok {
		t.Error("correct code did not verify")
	}

	ok, err = h.VerifyOTP("482914", result)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if ok {
		t.Error("wrong code verified")
	}
}

func TestHashObscuresCode(t *testing.T) {
	h := NewHasher(testConfig())

	result, err := h.HashOTP("123456")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if result.Hash == "123456" || result.Encode() == "123456" {
		t.Error("hash exposes raw code")
	}

	// Same code, fresh salt, different hash
	second, err := h.HashOTP("123456")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if second.Hash == result.Hash {
		t.Error("two hashes of the same code are identical")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := NewHasher(testConfig())

	result, err := h.HashOTP("907213")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	decoded, err := Decode(result.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	ok, err := h.VerifyOTP("907213", decoded)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !ok {
		t.Error("decoded hash did not verify")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"argon2id-v1$1$onlythree",
		"bcrypt$1$c2FsdA$aGFzaA",
		"argon2id-v1$x$c2FsdA$aGFzaA",
	}

	for _, encoded := range cases {
		if _, err := Decode(encoded); err == nil {
			t.Errorf("Decode(%q) succeeded, want error", encoded)
		}
	}
}

func TestVerifyAfterPepperRotation(t *testing.T) {
	h := NewHasher(testConfig())

	result, err := h.HashOTP("555123")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	h.rotatePepper()

	ok, err := h.VerifyOTP("555123", result)
	if err != nil {
		t.Fatalf("verify failed after rotation: %v", err)
	}
	if !ok {
		t.Error("code hashed under retired pepper did not verify")
	}
}
