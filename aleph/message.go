// Package aleph implements the Remote Aggregate Store on top of the Aleph
// Cloud aggregate API. Reads are unauthenticated; writes are AGGREGATE
// messages signed by the connected wallet through personal_sign.
package aleph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	ethchecksum "github.com/ethchecksum/ethchecksum"
	"github.com/ethchecksum/ethchecksum/checksum"
	"github.com/ethchecksum/ethchecksum/signers/evm"
)

const (
	// ChainETH is the chain tag of messages signed by Ethereum accounts
	ChainETH = "ETH"

	// MessageTypeAggregate is the message type that updates an aggregate
	MessageTypeAggregate = "AGGREGATE"

	// ItemTypeInline means item_content travels inside the message
	ItemTypeInline = "inline"
)

var (
	ErrInvalidMessage   = errors.New("invalid aggregate message")
	ErrInvalidSignature = errors.New("invalid message signature")
)

// ============================================================================
// Message Types
// ============================================================================

// Message is a signed Aleph message as posted to /api/v0/messages
type Message struct {
	Chain       string  `json:"chain"`
	Sender      string  `json:"sender"`
	Type        string  `json:"type"`
	Channel     string  `json:"channel"`
	Time        float64 `json:"time"`
	ItemType    string  `json:"item_type"`
	ItemContent string  `json:"item_content"`
	ItemHash    string  `json:"item_hash"`
	Signature   string  `json:"signature"`
}

// AggregateContent is the decoded item_content of an AGGREGATE message
type AggregateContent struct {
	Address string          `json:"address"`
	Key     string          `json:"key"`
	Content json.RawMessage `json:"content"`
	Time    float64         `json:"time"`
}

// PostRequest is the body of a message submission
type PostRequest struct {
	Sync    bool     `json:"sync"`
	Message *Message `json:"message"`
}

// AggregateResponse is returned by the aggregate read endpoint
type AggregateResponse struct {
	Address string                     `json:"address"`
	Data    map[string]json.RawMessage `json:"data"`
}

// ============================================================================
// Building and Verifying
// ============================================================================

// NewAggregateMessage builds an unsigned AGGREGATE message.
//
// Args:
//
//	sender: Account that owns the aggregate
//	key: Aggregate key
//	content: JSON-serializable content, replacing the key's value
//	channel: Channel the message is published on
//	now: Unix time in seconds (fractional)
//
// Returns:
//
//	Message with item_content and item_hash set and no signature
func NewAggregateMessage(sender, key string, content interface{}, channel string, now float64) (*Message, error) {
	addr, err := checksum.Normalize(sender)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	rawContent, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal aggregate content: %w", err)
	}

	item, err := json.Marshal(AggregateContent{
		Address: addr,
		Key:     key,
		Content: rawContent,
		Time:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item content: %w", err)
	}

	return &Message{
		Chain:       ChainETH,
		Sender:      addr,
		Type:        MessageTypeAggregate,
		Channel:     channel,
		Time:        now,
		ItemType:    ItemTypeInline,
		ItemContent: string(item),
		ItemHash:    itemHash(item),
	}, nil
}

// VerificationBuffer is the text an account signs to authorize a message
func (m *Message) VerificationBuffer() []byte {
	return []byte(strings.Join([]string{m.Chain, m.Sender, m.Type, m.ItemHash}, "\n"))
}

// Aggregate decodes item_content
func (m *Message) Aggregate() (*AggregateContent, error) {
	var content AggregateContent
	if err := json.Unmarshal([]byte(m.ItemContent), &content); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return &content, nil
}

// Verify checks that the message is a well-formed AGGREGATE whose hash
// matches its content and whose signature was produced by its sender.
func (m *Message) Verify() (*AggregateContent, error) {
	if m.Chain != ChainETH || m.Type != MessageTypeAggregate || m.ItemType != ItemTypeInline {
		return nil, fmt.Errorf("%w: unsupported %s/%s/%s", ErrInvalidMessage, m.Chain, m.Type, m.ItemType)
	}
	if itemHash([]byte(m.ItemContent)) != m.ItemHash {
		return nil, fmt.Errorf("%w: item_hash does not match item_content", ErrInvalidMessage)
	}

	content, err := m.Aggregate()
	if err != nil {
		return nil, err
	}
	if content.Key == "" {
		return nil, fmt.Errorf("%w: missing key", ErrInvalidMessage)
	}
	if !checksum.Equal(content.Address, m.Sender) {
		return nil, fmt.Errorf("%w: content address %s differs from sender", ErrInvalidMessage, content.Address)
	}

	signature, err := hexutil.Decode(m.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	signer, err := evm.RecoverSigner(m.VerificationBuffer(), signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !checksum.Equal(signer, m.Sender) {
		return nil, fmt.Errorf("%w: signed by %s", ErrInvalidSignature, signer)
	}
	return content, nil
}

// Sign requests a personal_sign over the verification buffer from the
// wallet provider and stores the signature on the message. A declined
// request surfaces as the provider's error, which classifies as
// user_rejected.
func Sign(ctx context.Context, provider ethchecksum.Provider, m *Message) error {
	raw, err := provider.Request(ctx, ethchecksum.RequestArguments{
		Method: "personal_sign",
		Params: []interface{}{hexutil.Encode(m.VerificationBuffer()), m.Sender},
	})
	if err != nil {
		return err
	}

	var signature string
	if err := json.Unmarshal(raw, &signature); err != nil {
		return errors.Join(ethchecksum.ErrTransport, fmt.Errorf("failed to decode signature: %w", err))
	}
	m.Signature = signature
	return nil
}

func itemHash(item []byte) string {
	sum := sha256.Sum256(item)
	return hex.EncodeToString(sum[:])
}
