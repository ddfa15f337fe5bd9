package ethchecksum

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes surfaced to the user when a flow fails
const (
	ErrCodeWrongChain       = "wrong_chain"
	ErrCodeUserRejected     = "user_rejected"
	ErrCodeTransportFailure = "transport_failure"
	ErrCodeNotFound         = "not_found"
	ErrCodeInvalidAddress   = "invalid_address"
)

// EIP-1193 provider error codes
const (
	ProviderErrUserRejected = 4001
	ProviderErrUnauthorized = 4100
	ProviderErrDisconnected = 4900
)

var (
	// ErrNotFound is returned by an AggregateStore when no aggregate exists
	// for (account, key). It is the normal "first visit" signal, not a failure.
	ErrNotFound = errors.New("aggregate not found")

	// ErrUserRejected marks an authorization the wallet user declined.
	ErrUserRejected = errors.New("user rejected authorization")

	// ErrTransport marks a read or write that failed for any other reason.
	ErrTransport = errors.New("remote transport failure")

	// ErrNoProvider is returned when a connector yields no usable provider.
	ErrNoProvider = errors.New("no provider available")
)

// WrongChainError is returned when authorization is attempted on a network
// other than the required one. The pending prompt stays open for a retry.
type WrongChainError struct {
	Want string
	Got  string
}

func (e *WrongChainError) Error() string {
	return fmt.Sprintf("wrong chain: want %s, got %s", e.Want, e.Got)
}

// ProviderRPCError is an EIP-1193 error returned by a wallet provider
type ProviderRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *ProviderRPCError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// FlowError is the classified failure of one orchestrator step
type FlowError struct {
	Code    string `json:"code"`
	Concern string `json:"concern"`
	Account string `json:"account"`
	Err     error  `json:"-"`
}

func (e *FlowError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s %s", e.Code, e.Concern, e.Account)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Code, e.Concern, e.Account, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// NewFlowError creates a new flow error
func NewFlowError(code, concern, account string, err error) *FlowError {
	return &FlowError{
		Code:    code,
		Concern: concern,
		Account: account,
		Err:     err,
	}
}

// Classify maps an authorization or write failure onto the user-facing
// error taxonomy. Wallets disagree on how they report a declined signature,
// so the message text is inspected as well as the EIP-1193 code.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var flowErr *FlowError
	if errors.As(err, &flowErr) && flowErr.Code != "" {
		return flowErr.Code
	}

	var wrongChain *WrongChainError
	if errors.As(err, &wrongChain) {
		return ErrCodeWrongChain
	}
	if errors.Is(err, ErrNotFound) {
		return ErrCodeNotFound
	}
	if errors.Is(err, ErrUserRejected) {
		return ErrCodeUserRejected
	}

	var rpcErr *ProviderRPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == ProviderErrUserRejected {
		return ErrCodeUserRejected
	}

	// Server answers can echo "rejected" without the user declining anything.
	if errors.Is(err, ErrTransport) {
		return ErrCodeTransportFailure
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rejected") || strings.Contains(msg, "denied") {
		return ErrCodeUserRejected
	}

	return ErrCodeTransportFailure
}
