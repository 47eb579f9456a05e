package web3

import (
	"context"
	"fmt"
	"strings"

	eth2client "github.com/attestantio/go-eth2-client"
	eth2api "github.com/attestantio/go-eth2-client/api"
	eth2http "github.com/attestantio/go-eth2-client/http"
	eth2deneb "github.com/attestantio/go-eth2-client/spec/deneb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/ethcf/blobkit-proxy/log"
)

// BeaconConfirmer cross-checks a broadcast blob transaction against the
// consensus layer's blob sidecar availability, purely additive: the Blob
// Transaction Engine's confirmation step (§4.D step 8) already succeeds
// on the execution receipt alone, so a nil *BeaconConfirmer (no beacon API
// endpoint configured) is a normal, fully-supported configuration.
type BeaconConfirmer struct {
	endpoint string
}

// NewBeaconConfirmer returns nil if endpoint is empty, so callers can wire
// it unconditionally: `engine.beacon = NewBeaconConfirmer(cfg.BeaconAPIURL)`.
func NewBeaconConfirmer(endpoint string) *BeaconConfirmer {
	if endpoint == "" {
		return nil
	}
	return &BeaconConfirmer{endpoint: strings.TrimRight(endpoint, "/")}
}

// ConfirmBlobAvailable checks that the consensus layer still has the blob
// sidecars for the block identified by parentBeaconRoot (the execution
// header's EIP-4788 field) at slot parentSlot+1. A failure here is logged
// but never fails the submission: the execution receipt is authoritative.
func (b *BeaconConfirmer) ConfirmBlobAvailable(ctx context.Context, parentBeaconRoot common.Hash) ([]*eth2deneb.BlobSidecar, error) {
	bc, err := eth2http.New(ctx,
		eth2http.WithAddress(b.endpoint),
		eth2http.WithLogLevel(zerolog.WarnLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("dial beacon API: %w", err)
	}

	headerProvider, ok := bc.(eth2client.BeaconBlockHeadersProvider)
	if !ok {
		return nil, fmt.Errorf("beacon client does not support block headers")
	}
	header, err := headerProvider.BeaconBlockHeader(ctx, &eth2api.BeaconBlockHeaderOpts{
		Block: parentBeaconRoot.Hex(),
	})
	if err != nil {
		return nil, fmt.Errorf("beacon block header: %w", err)
	}
	slot := uint64(header.Data.Header.Message.Slot) + 1

	sidecarProvider, ok := bc.(eth2client.BlobSidecarsProvider)
	if !ok {
		return nil, fmt.Errorf("beacon client does not support blob sidecars")
	}
	resp, err := sidecarProvider.BlobSidecars(ctx, &eth2api.BlobSidecarsOpts{
		Block: fmt.Sprintf("%d", slot),
	})
	if err != nil {
		return nil, fmt.Errorf("blob sidecars at slot %d: %w", slot, err)
	}
	return resp.Data, nil
}

// confirmBestEffort runs ConfirmBlobAvailable and only logs the outcome,
// never propagating an error: consensus-layer cross-checks are additive.
func confirmBestEffort(ctx context.Context, b *BeaconConfirmer, parentBeaconRoot *common.Hash, txHash common.Hash) {
	if b == nil || parentBeaconRoot == nil {
		return
	}
	sidecars, err := b.ConfirmBlobAvailable(ctx, *parentBeaconRoot)
	if err != nil {
		log.Warnw("beacon sidecar confirmation failed", "tx", txHash.Hex(), "error", err)
		return
	}
	log.Debugw("beacon sidecar confirmation ok", "tx", txHash.Hex(), "sidecars", len(sidecars))
}
