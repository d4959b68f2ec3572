package siwe

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Sentinel errors for verification. Each check of the protocol fails with its
// own kind so callers can report precisely without leaking detail to clients.
var (
	ErrDomainMismatch   = errors.New("message domain does not match server domain")
	ErrURIMismatch      = errors.New("message uri does not match server origin")
	ErrChainMismatch    = errors.New("message chain id does not match configured chain")
	ErrNonceMismatch    = errors.New("message nonce does not match issued challenge")
	ErrSignatureInvalid = errors.New("signature does not match claimed address")
	ErrMessageExpired   = errors.New("message issued-at outside accepted window")
)

// clockSkew is how far in the future an Issued At may sit before the
// staleness check rejects it.
const clockSkew = 2 * time.Minute

// Expected holds the server-side values every sign-in message must carry.
type Expected struct {
	Domain  string
	URI     string
	ChainId int64
}

// Verifier checks sign-in messages against the server's expectations and
// recovers the signing address. A maxAge of zero disables the issued-at
// staleness check; replay protection then rests on single-use nonces alone.
type Verifier struct {
	expected Expected
	maxAge   time.Duration
	now      func() time.Time
}

func NewVerifier(expected Expected, maxAge time.Duration) *Verifier {
	return &Verifier{
		expected: expected,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// CheckBinding runs the context checks: domain, URI and chain id exact
// equality, plus the optional issued-at window. Short-circuits on the first
// failure.
func (v *Verifier) CheckBinding(msg *Message) error {
	if msg.Domain != v.expected.Domain {
		return fmt.Errorf("%w: got %q, want %q", ErrDomainMismatch, msg.Domain, v.expected.Domain)
	}
	if msg.URI != v.expected.URI {
		return fmt.Errorf("%w: got %q, want %q", ErrURIMismatch, msg.URI, v.expected.URI)
	}
	if msg.ChainId != v.expected.ChainId {
		return fmt.Errorf("%w: got %d, want %d", ErrChainMismatch, msg.ChainId, v.expected.ChainId)
	}
	if v.maxAge > 0 {
		age := v.now().Sub(msg.IssuedAtTime())
		if age > v.maxAge || age < -clockSkew {
			return fmt.Errorf("%w: issued %s", ErrMessageExpired, msg.IssuedAt)
		}
	}
	return nil
}

// RecoverAddress recovers the address that signed raw under the EIP-191
// personal-message scheme and requires it to match the address the message
// claims, case-insensitively. Returns the canonical lowercased address.
func (v *Verifier) RecoverAddress(msg *Message, raw, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("%w: not valid hex", ErrSignatureInvalid)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("%w: expected %d bytes, got %d", ErrSignatureInvalid, crypto.SignatureLength, len(sig))
	}

	// Wallets emit v as 27/28; go-ethereum expects 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return "", fmt.Errorf("%w: bad recovery id", ErrSignatureInvalid)
	}

	hash := personalHash(raw)
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return "", fmt.Errorf("%w: recovery failed", ErrSignatureInvalid)
	}

	recovered := crypto.PubkeyToAddress(*pub).Hex()
	if !strings.EqualFold(recovered, msg.Address) {
		return "", fmt.Errorf("%w: recovered %s", ErrSignatureInvalid, strings.ToLower(recovered))
	}

	return strings.ToLower(recovered), nil
}

// Verify runs the full ordered check sequence against an already-consumed
// challenge nonce and returns the authenticated wallet address.
func (v *Verifier) Verify(msg *Message, raw, signature, nonce string) (string, error) {
	if err := v.CheckBinding(msg); err != nil {
		return "", err
	}
	if nonce == "" || msg.Nonce != nonce {
		return "", ErrNonceMismatch
	}
	return v.RecoverAddress(msg, raw, signature)
}

// personalHash computes keccak256 of the EIP-191 envelope over the exact raw
// text the wallet signed.
func personalHash(raw string) []byte {
	return crypto.Keccak256([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(raw), raw)))
}
