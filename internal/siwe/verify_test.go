package siwe

import (
	"crypto/ecdsa"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var testExpected = Expected{
	Domain:  "localhost:8080",
	URI:     "http://localhost:8080",
	ChainId: 31337,
}

func newSignedMessage(t *testing.T) (*ecdsa.PrivateKey, *Message, string, string) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	issued := time.Now().UTC().Truncate(time.Second)
	msg := &Message{
		Domain:    testExpected.Domain,
		Address:   crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Statement: "Sign in to the energy marketplace",
		URI:       testExpected.URI,
		Version:   "1",
		ChainId:   testExpected.ChainId,
		Nonce:     "8f7a2b9c1d4e6f0a",
		IssuedAt:  issued.Format(time.RFC3339),
		issuedAt:  issued,
	}

	raw := msg.String()
	return key, msg, raw, signRaw(t, key, raw)
}

// signRaw produces the signature a wallet would: EIP-191 envelope, v as 27/28.
func signRaw(t *testing.T, key *ecdsa.PrivateKey, raw string) string {
	t.Helper()

	sig, err := crypto.Sign(personalHash(raw), key)
	if err != nil {
		t.Fatalf("Failed to sign message: %v", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig)
}

func TestVerify_HappyPath(t *testing.T) {
	key, msg, raw, signature := newSignedMessage(t)
	verifier := NewVerifier(testExpected, 10*time.Minute)

	wallet, err := verifier.Verify(msg, raw, signature, msg.Nonce)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	expected := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
	if wallet != expected {
		t.Errorf("Expected wallet %s, got %s", expected, wallet)
	}
}

func TestVerify_DomainMismatch(t *testing.T) {
	_, msg, raw, signature := newSignedMessage(t)
	msg.Domain = "evil.example.com"

	verifier := NewVerifier(testExpected, 10*time.Minute)
	_, err := verifier.Verify(msg, raw, signature, msg.Nonce)
	if !errors.Is(err, ErrDomainMismatch) {
		t.Fatalf("Expected ErrDomainMismatch, got %v", err)
	}
}

func TestVerify_URIMismatch(t *testing.T) {
	_, msg, raw, signature := newSignedMessage(t)
	msg.URI = "http://evil.example.com"

	verifier := NewVerifier(testExpected, 10*time.Minute)
	_, err := verifier.Verify(msg, raw, signature, msg.Nonce)
	if !errors.Is(err, ErrURIMismatch) {
		t.Fatalf("Expected ErrURIMismatch, got %v", err)
	}
}

func TestVerify_ChainMismatch(t *testing.T) {
	_, msg, raw, signature := newSignedMessage(t)
	msg.ChainId = 1

	verifier := NewVerifier(testExpected, 10*time.Minute)
	_, err := verifier.Verify(msg, raw, signature, msg.Nonce)
	if !errors.Is(err, ErrChainMismatch) {
		t.Fatalf("Expected ErrChainMismatch, got %v", err)
	}
}

func TestVerify_NonceMismatch(t *testing.T) {
	_, msg, raw, signature := newSignedMessage(t)

	verifier := NewVerifier(testExpected, 10*time.Minute)
	_, err := verifier.Verify(msg, raw, signature, "some-other-nonce")
	if !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("Expected ErrNonceMismatch, got %v", err)
	}
}

func TestVerify_ExpiredMessage(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	issued := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	msg := &Message{
		Domain:   testExpected.Domain,
		Address:  crypto.PubkeyToAddress(key.PublicKey).Hex(),
		URI:      testExpected.URI,
		Version:  "1",
		ChainId:  testExpected.ChainId,
		Nonce:    "8f7a2b9c1d4e6f0a",
		IssuedAt: issued.Format(time.RFC3339),
		issuedAt: issued,
	}
	raw := msg.String()

	verifier := NewVerifier(testExpected, 10*time.Minute)
	_, err = verifier.Verify(msg, raw, signRaw(t, key, raw), msg.Nonce)
	if !errors.Is(err, ErrMessageExpired) {
		t.Fatalf("Expected ErrMessageExpired, got %v", err)
	}
}

func TestVerify_ZeroMaxAgeDisablesStalenessCheck(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	issued := time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Second)
	msg := &Message{
		Domain:   testExpected.Domain,
		Address:  crypto.PubkeyToAddress(key.PublicKey).Hex(),
		URI:      testExpected.URI,
		Version:  "1",
		ChainId:  testExpected.ChainId,
		Nonce:    "8f7a2b9c1d4e6f0a",
		IssuedAt: issued.Format(time.RFC3339),
		issuedAt: issued,
	}
	raw := msg.String()

	verifier := NewVerifier(testExpected, 0)
	if _, err := verifier.Verify(msg, raw, signRaw(t, key, raw), msg.Nonce); err != nil {
		t.Fatalf("Verify failed with staleness check disabled: %v", err)
	}
}

func TestRecoverAddress_TamperedMessage(t *testing.T) {
	_, msg, raw, signature := newSignedMessage(t)

	tampered := strings.Replace(raw, msg.Nonce, "ffffffffffffffff", 1)
	verifier := NewVerifier(testExpected, 10*time.Minute)

	_, err := verifier.RecoverAddress(msg, tampered, signature)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("Expected ErrSignatureInvalid, got %v", err)
	}
}

func TestRecoverAddress_WrongSigner(t *testing.T) {
	_, msg, raw, _ := newSignedMessage(t)

	otherKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	verifier := NewVerifier(testExpected, 10*time.Minute)
	_, err = verifier.RecoverAddress(msg, raw, signRaw(t, otherKey, raw))
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("Expected ErrSignatureInvalid, got %v", err)
	}
}

func TestRecoverAddress_GarbageSignature(t *testing.T) {
	_, msg, raw, _ := newSignedMessage(t)

	verifier := NewVerifier(testExpected, 10*time.Minute)
	for _, sig := range []string{"not-hex", "0x1234", ""} {
		if _, err := verifier.RecoverAddress(msg, raw, sig); !errors.Is(err, ErrSignatureInvalid) {
			t.Errorf("Signature %q: expected ErrSignatureInvalid, got %v", sig, err)
		}
	}
}

func TestRecoverAddress_NormalizesRecoveryId(t *testing.T) {
	key, msg, raw, _ := newSignedMessage(t)

	// Raw 0/1 recovery id, as some tooling emits.
	sig, err := crypto.Sign(personalHash(raw), key)
	if err != nil {
		t.Fatalf("Failed to sign message: %v", err)
	}

	verifier := NewVerifier(testExpected, 10*time.Minute)
	wallet, err := verifier.RecoverAddress(msg, raw, hexutil.Encode(sig))
	if err != nil {
		t.Fatalf("RecoverAddress failed for 0/1 recovery id: %v", err)
	}
	if !strings.EqualFold(wallet, msg.Address) {
		t.Errorf("Expected wallet %s, got %s", msg.Address, wallet)
	}
}
