package fhe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"fhemarket/internal/config"
	"fhemarket/internal/wallet"
)

var (
	userA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	userB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// newRelayer spins up a fake relayer. keyCalls counts /v1/keyurl hits;
// keyDelay makes initialization observable mid-flight.
func newRelayer(t *testing.T, keyCalls *atomic.Int64, keyDelay time.Duration) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/keyurl", func(w http.ResponseWriter, r *http.Request) {
		if keyCalls != nil {
			keyCalls.Add(1)
		}
		time.Sleep(keyDelay)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"keyId": "key-1"})
	})
	mux.HandleFunc("/v1/public-decrypt", func(w http.ResponseWriter, r *http.Request) {
		var req publicDecryptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Handles) == 0 {
			http.Error(w, "bad handles", http.StatusBadRequest)
			return
		}
		clear := make(map[string]string, len(req.Handles))
		for _, h := range req.Handles {
			clear[h] = "1500"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(publicDecryptResponse{
			ClearValues:          clear,
			ABIEncodedClearValue: "0x05dc",
			DecryptionProof:      "0xfeed",
		})
	})
	mux.HandleFunc("/v1/input-proof", func(w http.ResponseWriter, r *http.Request) {
		var req inputProofRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Values) != 1 || req.Values[0] < 1 {
			http.Error(w, "bad values", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(inputProofResponse{
			Handles:    []string{"0x0102030405060708010203040506070801020304050607080102030405060708"},
			InputProof: "0xdeadbeef",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(baseURL string) *Service {
	return NewService(config.Config{
		RPC:      config.RPCConfig{ChainID: config.SepoliaChainID},
		Contract: config.ContractConfig{Address: "0x00000000000000000000000000000000000000cc"},
		Relayer:  config.RelayerConfig{BaseURL: baseURL, Timeout: 5 * time.Second},
	})
}

func TestInitIdempotent(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	srv := newRelayer(t, &calls, 0)
	s := newTestService(srv.URL)

	for i := 0; i < 3; i++ {
		if err := s.Init(context.Background(), userA); err != nil {
			t.Fatalf("Init: %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("key fetches = %d, want 1", got)
	}
	if !s.Ready(userA) {
		t.Error("Ready(userA) = false after Init")
	}
}

func TestInitSingleFlight(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	srv := newRelayer(t, &calls, 100*time.Millisecond)
	s := newTestService(srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Init(context.Background(), userA); err != nil {
				t.Errorf("concurrent Init: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("key fetches = %d, want 1 (single-flight)", got)
	}
}

func TestInitRebuildsOnIdentityChange(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	srv := newRelayer(t, &calls, 0)
	s := newTestService(srv.URL)

	if err := s.Init(context.Background(), userA); err != nil {
		t.Fatal(err)
	}
	if err := s.Init(context.Background(), userB); err != nil {
		t.Fatal(err)
	}

	if s.Ready(userA) {
		t.Error("instance for userA should be gone after userB init")
	}
	if !s.Ready(userB) {
		t.Error("Ready(userB) = false")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("key fetches = %d, want 2", got)
	}
}

func TestInitWithoutUserIsErrNoWallet(t *testing.T) {
	t.Parallel()
	srv := newRelayer(t, nil, 0)
	s := newTestService(srv.URL)

	if err := s.Init(context.Background(), common.Address{}); !errors.Is(err, wallet.ErrNoWallet) {
		t.Errorf("Init(zero addr) = %v, want ErrNoWallet", err)
	}
}

func TestResetClearsInstance(t *testing.T) {
	t.Parallel()
	srv := newRelayer(t, nil, 0)
	s := newTestService(srv.URL)

	if err := s.Init(context.Background(), userA); err != nil {
		t.Fatal(err)
	}
	s.Reset()

	if s.Ready(userA) {
		t.Error("Ready = true after Reset")
	}
	if _, err := s.EncryptShares(context.Background(), 5, userA); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("EncryptShares after Reset = %v, want ErrNotInitialized", err)
	}
}

func TestEncryptSharesRequiresInit(t *testing.T) {
	t.Parallel()
	srv := newRelayer(t, nil, 0)
	s := newTestService(srv.URL)

	if _, err := s.EncryptShares(context.Background(), 5, userA); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("EncryptShares uninitialized = %v, want ErrNotInitialized", err)
	}
}

func TestEncryptSharesWrongIdentity(t *testing.T) {
	t.Parallel()
	srv := newRelayer(t, nil, 0)
	s := newTestService(srv.URL)

	if err := s.Init(context.Background(), userA); err != nil {
		t.Fatal(err)
	}
	if _, err := s.EncryptShares(context.Background(), 5, userB); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("EncryptShares with mismatched user = %v, want ErrNotInitialized", err)
	}
}

func TestEncryptSharesFloorsToOne(t *testing.T) {
	t.Parallel()
	srv := newRelayer(t, nil, 0)
	s := newTestService(srv.URL)

	if err := s.Init(context.Background(), userA); err != nil {
		t.Fatal(err)
	}

	// The fake relayer rejects values < 1, so a success proves the floor.
	input, err := s.EncryptShares(context.Background(), 0, userA)
	if err != nil {
		t.Fatalf("EncryptShares(0): %v", err)
	}
	if input.Handle == ([32]byte{}) {
		t.Error("empty handle")
	}
	if len(input.Proof) == 0 {
		t.Error("empty proof")
	}
}

func TestPublicDecrypt(t *testing.T) {
	t.Parallel()

	srv := newRelayer(t, nil, 0)
	svc := newTestService(srv.URL)

	// Requires an initialized instance like every relayer interaction.
	if _, err := svc.PublicDecrypt(context.Background(), []string{"0xABCDEF"}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}

	if err := svc.Init(context.Background(), userA); err != nil {
		t.Fatalf("init: %v", err)
	}

	got, err := svc.PublicDecrypt(context.Background(), []string{"0xABCDEF"})
	if err != nil {
		t.Fatalf("PublicDecrypt: %v", err)
	}
	// Handle keys come back normalized to lower case.
	if got.ClearValues["0xabcdef"] != "1500" {
		t.Fatalf("clear values = %v", got.ClearValues)
	}
	if len(got.Proof) == 0 || len(got.ABIEncoded) == 0 {
		t.Fatal("proof or encoded payload missing")
	}

	if _, err := svc.PublicDecrypt(context.Background(), nil); err == nil {
		t.Fatal("empty handle list accepted")
	}
}
