package web3

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNewBeaconConfirmerNilOnEmptyEndpoint(t *testing.T) {
	if NewBeaconConfirmer("") != nil {
		t.Fatal("expected nil confirmer for empty endpoint")
	}
}

func TestNewBeaconConfirmerTrimsTrailingSlash(t *testing.T) {
	b := NewBeaconConfirmer("http://localhost:5052/")
	if b == nil {
		t.Fatal("expected non-nil confirmer")
	}
	if b.endpoint != "http://localhost:5052" {
		t.Fatalf("expected trimmed endpoint, got %q", b.endpoint)
	}
}

func TestConfirmBestEffortNoopsOnNilConfirmer(t *testing.T) {
	// must not panic when beacon confirmation is disabled
	confirmBestEffort(context.Background(), nil, nil, common.Hash{})
}
