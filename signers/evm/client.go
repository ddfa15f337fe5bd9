package evm

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	ethchecksum "github.com/ethchecksum/ethchecksum"
)

// EIP-1193 error codes returned by LocalProvider
const (
	errUnsupportedMethod = 4200
	errInvalidParams     = -32602
)

// Approver decides whether the wallet user approves a request.
// Returning false rejects the request with EIP-1193 code 4001.
type Approver func(method string, params []interface{}) bool

// LocalProvider implements ethchecksum.Provider using an ECDSA private key.
// It answers the subset of EIP-1193 a browser wallet exposes to this
// application: chain id, accounts, personal_sign and chain switching.
type LocalProvider struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address

	mu       sync.Mutex
	chainID  *big.Int
	approver Approver
}

// NewLocalProviderFromPrivateKey creates a provider from a hex-encoded private key.
//
// Args:
//
//	privateKeyHex: Hex-encoded private key (with or without "0x" prefix)
//	chainID: Chain the wallet reports initially (nil means mainnet)
//
// Returns:
//
//	LocalProvider ready to be wrapped in a wallet connector
//	Error if private key is invalid
//
// Example:
//
//	provider, err := evm.NewLocalProviderFromPrivateKey("0x1234...", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	session.Connect(provider.Address(), wallet.StaticConnector{Provider: provider})
func NewLocalProviderFromPrivateKey(privateKeyHex string, chainID *big.Int) (*LocalProvider, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return newLocalProvider(privateKey, chainID), nil
}

// GenerateLocalProvider creates a provider with a fresh random key
func GenerateLocalProvider(chainID *big.Int) (*LocalProvider, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newLocalProvider(privateKey, chainID), nil
}

func newLocalProvider(privateKey *ecdsa.PrivateKey, chainID *big.Int) *LocalProvider {
	if chainID == nil {
		chainID = big.NewInt(1)
	}
	return &LocalProvider{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    new(big.Int).Set(chainID),
	}
}

// Address returns the checksummed address of the provider's key
func (p *LocalProvider) Address() string {
	return p.address.Hex()
}

// SetApprover installs the callback that approves or rejects requests.
// With no approver every request is approved.
func (p *LocalProvider) SetApprover(approver Approver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.approver = approver
}

// SwitchChain changes the chain the wallet reports
func (p *LocalProvider) SwitchChain(chainID *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chainID = new(big.Int).Set(chainID)
}

// Request handles an EIP-1193 request
func (p *LocalProvider) Request(ctx context.Context, args ethchecksum.RequestArguments) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	approver := p.approver
	chainID := new(big.Int).Set(p.chainID)
	p.mu.Unlock()

	switch args.Method {
	case "eth_chainId":
		return json.Marshal(hexutil.EncodeBig(chainID))

	case "eth_accounts", "eth_requestAccounts":
		return json.Marshal([]string{p.address.Hex()})

	case "personal_sign":
		data, err := p.personalSignParams(args.Params)
		if err != nil {
			return nil, err
		}
		if approver != nil && !approver(args.Method, args.Params) {
			return nil, &ethchecksum.ProviderRPCError{Code: ethchecksum.ProviderErrUserRejected, Message: "User rejected the request."}
		}
		signature, err := p.SignMessage(data)
		if err != nil {
			return nil, err
		}
		return json.Marshal(hexutil.Encode(signature))

	case "wallet_switchEthereumChain":
		target, err := switchChainParams(args.Params)
		if err != nil {
			return nil, err
		}
		if approver != nil && !approver(args.Method, args.Params) {
			return nil, &ethchecksum.ProviderRPCError{Code: ethchecksum.ProviderErrUserRejected, Message: "User rejected the request."}
		}
		p.SwitchChain(target)
		return json.Marshal(nil)

	default:
		return nil, &ethchecksum.ProviderRPCError{Code: errUnsupportedMethod, Message: fmt.Sprintf("unsupported method %s", args.Method)}
	}
}

// SignMessage signs data with the EIP-191 personal message prefix.
//
// Returns:
//
//	65-byte signature (r, s, v) with v in {27, 28}
func (p *LocalProvider) SignMessage(data []byte) ([]byte, error) {
	signature, err := crypto.Sign(accounts.TextHash(data), p.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	// Adjust v value for Ethereum (recovery ID 0/1 → 27/28)
	signature[64] += 27
	return signature, nil
}

func (p *LocalProvider) personalSignParams(params []interface{}) ([]byte, error) {
	if len(params) < 2 {
		return nil, &ethchecksum.ProviderRPCError{Code: errInvalidParams, Message: "personal_sign expects [data, address]"}
	}

	rawData, ok := params[0].(string)
	if !ok {
		return nil, &ethchecksum.ProviderRPCError{Code: errInvalidParams, Message: "personal_sign data must be a hex string"}
	}
	signer, ok := params[1].(string)
	if !ok || !common.IsHexAddress(signer) || common.HexToAddress(signer) != p.address {
		return nil, &ethchecksum.ProviderRPCError{Code: ethchecksum.ProviderErrUnauthorized, Message: "requested account is not connected"}
	}

	data, err := hexutil.Decode(rawData)
	if err != nil {
		// Some dapps pass the message as plain text
		data = []byte(rawData)
	}
	return data, nil
}

func switchChainParams(params []interface{}) (*big.Int, error) {
	if len(params) < 1 {
		return nil, &ethchecksum.ProviderRPCError{Code: errInvalidParams, Message: "wallet_switchEthereumChain expects [{chainId}]"}
	}

	var target struct {
		ChainID string `json:"chainId"`
	}
	raw, err := json.Marshal(params[0])
	if err == nil {
		err = json.Unmarshal(raw, &target)
	}
	if err != nil {
		return nil, &ethchecksum.ProviderRPCError{Code: errInvalidParams, Message: "invalid chain parameter"}
	}

	chainID, err := hexutil.DecodeBig(target.ChainID)
	if err != nil {
		return nil, &ethchecksum.ProviderRPCError{Code: errInvalidParams, Message: fmt.Sprintf("invalid chain id %q", target.ChainID)}
	}
	return chainID, nil
}

// RecoverSigner returns the address that produced an EIP-191 personal
// signature over data.
func RecoverSigner(data, signature []byte) (string, error) {
	if len(signature) != crypto.SignatureLength {
		return "", fmt.Errorf("invalid signature length %d", len(signature))
	}

	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(data), sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

var _ ethchecksum.Provider = (*LocalProvider)(nil)
