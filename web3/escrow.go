package web3

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ethcf/blobkit-proxy/log"
)

// escrowABIJSON declares only the four methods §6 says the proxy consumes.
// It is intentionally hand-written rather than generated from a full
// contract artifact, since the proxy never deploys or owns this contract.
const escrowABIJSON = `[
  {"type":"function","name":"getJob","stateMutability":"view",
   "inputs":[{"name":"jobId","type":"bytes32"}],
   "outputs":[
     {"name":"user","type":"address"},
     {"name":"amount","type":"uint256"},
     {"name":"completed","type":"bool"},
     {"name":"timestamp","type":"uint256"},
     {"name":"blobTxHash","type":"bytes32"}
   ]},
  {"type":"function","name":"isProxyAuthorized","stateMutability":"view",
   "inputs":[{"name":"proxy","type":"address"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"authorizedProxies","stateMutability":"view",
   "inputs":[{"name":"proxy","type":"address"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"jobTimeout","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"completeJob","stateMutability":"nonpayable",
   "inputs":[
     {"name":"jobId","type":"bytes32"},
     {"name":"blobTxHash","type":"bytes32"},
     {"name":"proof","type":"bytes"}
   ],"outputs":[]}
]`

// Job is the on-chain job record returned by getJob.
type Job struct {
	User       common.Address
	Amount     *big.Int
	Completed  bool
	Timestamp  time.Time
	BlobTxHash common.Hash
	Exists     bool
}

// Escrow wraps read/write calls against the escrow contract consumed by
// the proxy (§6's ABI). It is a thin ABI-pack/CallContract wrapper rather
// than a generated abigen binding, since only five methods (counting the
// authorizedProxies fallback) are ever called.
type Escrow struct {
	client  *Client
	address common.Address
	abi     abi.ABI
}

// NewEscrow parses the escrow ABI and binds it to address.
func NewEscrow(client *Client, address common.Address) (*Escrow, error) {
	parsed, err := abi.JSON(strings.NewReader(escrowABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse escrow ABI: %w", err)
	}
	return &Escrow{client: client, address: address, abi: parsed}, nil
}

// Address returns the escrow contract address.
func (e *Escrow) Address() common.Address { return e.address }

// GetJob reads a job record. A job with Exists=false (an all-zero,
// uninitialized on-chain slot) is not an error.
func (e *Escrow) GetJob(ctx context.Context, jobID [32]byte) (Job, error) {
	data, err := e.abi.Pack("getJob", jobID)
	if err != nil {
		return Job{}, fmt.Errorf("pack getJob: %w", err)
	}
	out, err := e.client.eth.CallContract(ctx, ethereum.CallMsg{To: &e.address, Data: data}, nil)
	if err != nil {
		return Job{}, fmt.Errorf("call getJob: %w", err)
	}

	var result struct {
		User       common.Address
		Amount     *big.Int
		Completed  bool
		Timestamp  *big.Int
		BlobTxHash [32]byte
	}
	if err := e.abi.UnpackIntoInterface(&result, "getJob", out); err != nil {
		return Job{}, fmt.Errorf("unpack getJob: %w", err)
	}

	exists := result.User != (common.Address{})
	return Job{
		User:       result.User,
		Amount:     result.Amount,
		Completed:  result.Completed,
		Timestamp:  time.Unix(result.Timestamp.Int64(), 0),
		BlobTxHash: result.BlobTxHash,
		Exists:     exists,
	}, nil
}

// IsProxyAuthorized checks whether proxy may submit jobs, falling back to
// the legacy authorizedProxies accessor when isProxyAuthorized is absent
// from an older escrow deployment.
func (e *Escrow) IsProxyAuthorized(ctx context.Context, proxy common.Address) (bool, error) {
	ok, err := e.boolCall(ctx, "isProxyAuthorized", proxy)
	if err == nil {
		return ok, nil
	}
	log.Warnw("isProxyAuthorized unavailable, falling back to legacy authorizedProxies", "error", err)
	return e.boolCall(ctx, "authorizedProxies", proxy)
}

func (e *Escrow) boolCall(ctx context.Context, method string, proxy common.Address) (bool, error) {
	data, err := e.abi.Pack(method, proxy)
	if err != nil {
		return false, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := e.client.eth.CallContract(ctx, ethereum.CallMsg{To: &e.address, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("call %s: %w", method, err)
	}
	var authorized bool
	if err := e.abi.UnpackIntoInterface(&authorized, method, out); err != nil {
		return false, fmt.Errorf("unpack %s: %w", method, err)
	}
	return authorized, nil
}

// JobTimeout returns the escrow's configured job timeout window.
func (e *Escrow) JobTimeout(ctx context.Context) (time.Duration, error) {
	data, err := e.abi.Pack("jobTimeout")
	if err != nil {
		return 0, fmt.Errorf("pack jobTimeout: %w", err)
	}
	out, err := e.client.eth.CallContract(ctx, ethereum.CallMsg{To: &e.address, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("call jobTimeout: %w", err)
	}
	var seconds *big.Int
	if err := e.abi.UnpackIntoInterface(&seconds, "jobTimeout", out); err != nil {
		return 0, fmt.Errorf("unpack jobTimeout: %w", err)
	}
	return time.Duration(seconds.Int64()) * time.Second, nil
}

// PackCompleteJob ABI-encodes a completeJob call, for the retry queue to
// sign and broadcast.
func (e *Escrow) PackCompleteJob(jobID, blobTxHash [32]byte, proof []byte) ([]byte, error) {
	data, err := e.abi.Pack("completeJob", jobID, blobTxHash, proof)
	if err != nil {
		return nil, fmt.Errorf("pack completeJob: %w", err)
	}
	return data, nil
}
