package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stellar/go/strkey"
)

// idHashPrefix is the number of tx-hash hex characters kept in a contribution id.
const idHashPrefix = 16

// Status is the lifecycle state of a contribution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Contribution is one funding event from a contributor to a project.
type Contribution struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Contributor string    `json:"contributor"`
	Chain       Chain     `json:"chain"`
	Currency    Currency  `json:"currency"`
	Amount      float64   `json:"amount"`
	USDValue    float64   `json:"usdValue"`
	TxHash      string    `json:"txHash"`
	Timestamp   time.Time `json:"timestamp"`
	Status      Status    `json:"status"`
}

// DeriveID builds the deterministic id of a contribution from its chain and tx hash.
func DeriveID(chain Chain, txHash string) string {
	h := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(txHash)), "0x")
	if len(h) > idHashPrefix {
		h = h[:idHashPrefix]
	}
	return string(chain) + "-" + h
}

// NormalizeTxHash lower-cases a tx hash and ensures the 0x prefix for EVM chains.
func NormalizeTxHash(chain Chain, txHash string) string {
	h := strings.ToLower(strings.TrimSpace(txHash))
	if chain.IsEVM() && !strings.HasPrefix(h, "0x") {
		h = "0x" + h
	}
	if !chain.IsEVM() {
		h = strings.TrimPrefix(h, "0x")
	}
	return h
}

// ValidateTxHash checks that a tx hash is 32 bytes of hex.
func ValidateTxHash(txHash string) error {
	h := strings.TrimSpace(txHash)
	if h == "" {
		return fmt.Errorf("%w: empty tx hash", ErrInvalidContribution)
	}
	if !strings.HasPrefix(h, "0x") && !strings.HasPrefix(h, "0X") {
		h = "0x" + h
	}
	b, err := hexutil.Decode(strings.ToLower(h))
	if err != nil {
		return fmt.Errorf("%w: tx hash %q: %v", ErrInvalidContribution, txHash, err)
	}
	if len(b) != common.HashLength {
		return fmt.Errorf("%w: tx hash %q has %d bytes", ErrInvalidContribution, txHash, len(b))
	}
	return nil
}

// ValidateContributor checks the contributor address format for the chain.
func ValidateContributor(chain Chain, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("%w: empty contributor", ErrInvalidContribution)
	}
	switch {
	case chain == ChainStellar:
		if !strkey.IsValidEd25519PublicKey(address) {
			return fmt.Errorf("%w: invalid stellar address %q", ErrInvalidContribution, address)
		}
	case chain.IsEVM():
		if !common.IsHexAddress(address) {
			return fmt.Errorf("%w: invalid %s address %q", ErrInvalidContribution, chain, address)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedChain, chain)
	}
	return nil
}

// ValidateAmount rejects non-positive and non-finite native amounts.
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}

// Transition returns a copy of c moved to the next status.
func (c Contribution) Transition(next Status) (Contribution, error) {
	if c.Status != StatusPending || (next != StatusConfirmed && next != StatusFailed) {
		return c, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, next)
	}
	c.Status = next
	return c, nil
}

// SamePayload reports whether two records describe the same funding event.
// USD value and timestamp are excluded since they depend on when it was recorded.
func (c Contribution) SamePayload(other Contribution) bool {
	return c.ID == other.ID &&
		c.ProjectID == other.ProjectID &&
		strings.EqualFold(c.Contributor, other.Contributor) &&
		c.Chain == other.Chain &&
		c.Currency == other.Currency &&
		c.Amount == other.Amount &&
		strings.EqualFold(c.TxHash, other.TxHash)
}
