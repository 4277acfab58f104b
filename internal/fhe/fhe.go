// Package fhe builds encrypted contract inputs through the FHE relayer.
//
// The relayer encrypts a plaintext integer under the network's public key and
// returns an input handle plus a zero-knowledge proof that the ciphertext is
// well-formed and bound to (contract, user). The contract verifies the proof
// and folds the ciphertext into its encrypted share aggregates without ever
// seeing the plaintext.
//
// Key material is bound to the (user address, chain) pair, so the package
// keeps one lazily-initialized instance at a time: initialization is
// single-flight (a second caller waits on the first attempt instead of
// racing), and the instance is discarded whenever the bound identity stops
// matching the active wallet.
package fhe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"

	"fhemarket/internal/config"
	"fhemarket/internal/wallet"
)

// ErrNotInitialized indicates no encryption instance is ready for the
// current identity. Remedy for the user: initialize (or switch to Sepolia,
// the scheme exists on exactly one chain).
var ErrNotInitialized = errors.New("fhe instance not initialized")

// EncryptedInput is an opaque ciphertext handle plus its input proof, both
// passed verbatim to the contract.
type EncryptedInput struct {
	Handle [32]byte
	Proof  []byte
}

// DecryptResult carries publicly decrypted clear values with the relayer's
// decryption proof, e.g. to reveal position sizes after settlement.
type DecryptResult struct {
	ClearValues map[string]string // handle (lower-case hex) → decimal clear value
	ABIEncoded  []byte
	Proof       []byte
}

// instance is encryption state bound to one (user, chain) identity.
type instance struct {
	user  common.Address
	keyID string // relayer public key identifier
}

// Service is the process-wide encrypted input builder.
type Service struct {
	http     *resty.Client
	contract common.Address
	chainID  int64

	mu      sync.Mutex
	inst    *instance
	initing chan struct{} // non-nil while an init attempt is in flight
}

// NewService creates the relayer client.
func NewService(cfg config.Config) *Service {
	client := resty.New().
		SetBaseURL(cfg.Relayer.BaseURL).
		SetTimeout(cfg.Relayer.Timeout).
		SetRetryCount(2).
		SetHeader("Content-Type", "application/json")

	return &Service{
		http:     client,
		contract: common.HexToAddress(cfg.Contract.Address),
		chainID:  cfg.RPC.ChainID,
	}
}

// Init prepares the encryption instance for the given user. Idempotent: a
// matching instance returns immediately, a concurrent attempt is joined
// rather than duplicated, and an instance bound to a different user is
// discarded and rebuilt.
func (s *Service) Init(ctx context.Context, user common.Address) error {
	if user == (common.Address{}) {
		return wallet.ErrNoWallet
	}

	for {
		s.mu.Lock()
		if s.inst != nil && s.inst.user == user {
			s.mu.Unlock()
			return nil
		}
		if ch := s.initing; ch != nil {
			s.mu.Unlock()
			select {
			case <-ch:
				continue // re-check outcome
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		// Stale identity: drop before rebuilding.
		s.inst = nil
		ch := make(chan struct{})
		s.initing = ch
		s.mu.Unlock()

		inst, err := s.fetchInstance(ctx, user)

		s.mu.Lock()
		if err == nil {
			s.inst = inst
		}
		s.initing = nil
		close(ch)
		s.mu.Unlock()
		return err
	}
}

// Ready reports whether an instance bound to user is available.
func (s *Service) Ready(user common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inst != nil && s.inst.user == user
}

// Reset tears down the instance. Must be called whenever the active wallet
// address or chain changes, so no ciphertext is built under stale key
// material. An init already in flight is left to finish; its result is
// discarded by the next Init's identity check.
func (s *Service) Reset() {
	s.mu.Lock()
	s.inst = nil
	s.mu.Unlock()
}

type keyResponse struct {
	KeyID string `json:"keyId"`
}

func (s *Service) fetchInstance(ctx context.Context, user common.Address) (*instance, error) {
	var key keyResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParam("chainId", fmt.Sprintf("%d", s.chainID)).
		SetResult(&key).
		Get("/v1/keyurl")
	if err != nil {
		return nil, fmt.Errorf("fetch relayer keys: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch relayer keys: status %d: %s", resp.StatusCode(), resp.String())
	}
	if key.KeyID == "" {
		return nil, fmt.Errorf("fetch relayer keys: empty key id")
	}
	return &instance{user: user, keyID: key.KeyID}, nil
}

type inputProofRequest struct {
	ContractAddress string   `json:"contractAddress"`
	UserAddress     string   `json:"userAddress"`
	ChainID         int64    `json:"chainId"`
	KeyID           string   `json:"keyId"`
	Values          []uint64 `json:"values"` // euint64 plaintexts
}

type inputProofResponse struct {
	Handles    []string `json:"handles"`
	InputProof string   `json:"inputProof"`
}

// EncryptShares encrypts a share count bound to (contract, user). Counts are
// floored at a minimum of one share; the contract rejects empty buys anyway
// and a zero ciphertext would leak intent.
func (s *Service) EncryptShares(ctx context.Context, shares int64, user common.Address) (*EncryptedInput, error) {
	if user == (common.Address{}) {
		return nil, wallet.ErrNoWallet
	}

	s.mu.Lock()
	inst := s.inst
	s.mu.Unlock()
	if inst == nil || inst.user != user {
		return nil, ErrNotInitialized
	}

	if shares < 1 {
		shares = 1
	}

	var out inputProofResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(inputProofRequest{
			ContractAddress: s.contract.Hex(),
			UserAddress:     user.Hex(),
			ChainID:         s.chainID,
			KeyID:           inst.keyID,
			Values:          []uint64{uint64(shares)},
		}).
		SetResult(&out).
		Post("/v1/input-proof")
	if err != nil {
		return nil, fmt.Errorf("encrypt shares: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("encrypt shares: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Handles) == 0 {
		return nil, fmt.Errorf("encrypt shares: relayer returned no handles")
	}

	handleBytes, err := hexutil.Decode(out.Handles[0])
	if err != nil {
		return nil, fmt.Errorf("decode handle: %w", err)
	}
	proof, err := hexutil.Decode(out.InputProof)
	if err != nil {
		return nil, fmt.Errorf("decode proof: %w", err)
	}

	var handle [32]byte
	copy(handle[:], handleBytes)
	return &EncryptedInput{Handle: handle, Proof: proof}, nil
}

type publicDecryptRequest struct {
	Handles []string `json:"handles"`
}

type publicDecryptResponse struct {
	ClearValues          map[string]string `json:"clearValues"`
	ABIEncodedClearValue string            `json:"abiEncodedClearValues"`
	DecryptionProof      string            `json:"decryptionProof"`
}

// PublicDecrypt resolves handles whose values the contract has made publicly
// decryptable (winning share totals after settlement). Handle keys in the
// result are normalized to lower case.
func (s *Service) PublicDecrypt(ctx context.Context, handles []string) (*DecryptResult, error) {
	if len(handles) == 0 {
		return nil, fmt.Errorf("public decrypt: no handles provided")
	}

	s.mu.Lock()
	inst := s.inst
	s.mu.Unlock()
	if inst == nil {
		return nil, ErrNotInitialized
	}

	var out publicDecryptResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(publicDecryptRequest{Handles: handles}).
		SetResult(&out).
		Post("/v1/public-decrypt")
	if err != nil {
		return nil, fmt.Errorf("public decrypt: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("public decrypt: status %d: %s", resp.StatusCode(), resp.String())
	}

	clear := make(map[string]string, len(out.ClearValues))
	for handle, value := range out.ClearValues {
		clear[strings.ToLower(handle)] = value
	}

	abiEncoded, err := hexutil.Decode(out.ABIEncodedClearValue)
	if err != nil {
		return nil, fmt.Errorf("decode clear values: %w", err)
	}
	proof, err := hexutil.Decode(out.DecryptionProof)
	if err != nil {
		return nil, fmt.Errorf("decode decryption proof: %w", err)
	}

	return &DecryptResult{ClearValues: clear, ABIEncoded: abiEncoded, Proof: proof}, nil
}
