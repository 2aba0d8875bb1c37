package api

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ava-labs/libevm/accounts"
	"github.com/ava-labs/libevm/common"
	"github.com/ava-labs/libevm/common/hexutil"
	"github.com/ava-labs/libevm/crypto"
)

const (
	// NameSignatureTTL bounds how old a signed name claim may be.
	NameSignatureTTL = 5 * time.Minute
	maxClockSkew     = time.Minute
)

var (
	ErrBadSignature   = errors.New("signature does not match wallet")
	ErrStaleSignature = errors.New("signature expired or already used")
)

// NameMessage is the text a wallet signs to set its display name. issuedAt is unix seconds.
func NameMessage(name string, issuedAt int64) string {
	return "Set leaderboard name: " + name + "\nIssued at: " + strconv.FormatInt(issuedAt, 10)
}

// nameClaims remembers the newest accepted claim per wallet for one TTL, so a captured
// signature can neither be replayed nor override a newer rename.
type nameClaims struct {
	mu   sync.Mutex
	ttl  time.Duration
	last map[string]int64
}

func newNameClaims(ttl time.Duration) *nameClaims {
	return &nameClaims{ttl: ttl, last: make(map[string]int64)}
}

func (c *nameClaims) accept(wallet string, issuedAt int64, now time.Time) error {
	issued := time.Unix(issuedAt, 0)
	oldest := now.Add(-c.ttl)
	if issued.Before(oldest) || issued.After(now.Add(maxClockSkew)) {
		return ErrStaleSignature
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for w, ts := range c.last {
		if time.Unix(ts, 0).Before(oldest) {
			delete(c.last, w)
		}
	}
	if prev, ok := c.last[wallet]; ok && issuedAt <= prev {
		return ErrStaleSignature
	}
	c.last[wallet] = issuedAt
	return nil
}

// recoverSigner returns the address that produced an EIP-191 personal signature over msg.
func recoverSigner(msg, sigHex string) (common.Address, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	// wallets return V as 27/28
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(msg)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func verifyNameSignature(wallet common.Address, name string, issuedAt int64, sigHex string) error {
	signer, err := recoverSigner(NameMessage(name, issuedAt), sigHex)
	if err != nil {
		return err
	}
	if signer != wallet {
		return ErrBadSignature
	}
	return nil
}
