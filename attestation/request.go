package attestation

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Condition is one node of the attestation condition tree. Conditions in the
// inner slices are ANDed, the outer slice ORs the groups.
type Condition struct {
	Type  string      `json:"type"`
	Op    string      `json:"op"`
	Key   string      `json:"key,omitempty"`
	Field string      `json:"field"`
	Value []Condition `json:"value,omitempty"`
}

type Mode struct {
	AlgorithmType string `json:"algorithmType"`
}

// ModeProxyTLS - attestor proxies the TLS session
var ModeProxyTLS = Mode{AlgorithmType: "proxytls"}

// DefaultConditions match the X login found in the subscription payload.
func DefaultConditions() [][]Condition {
	return [][]Condition{{
		{
			Type:  "CONDITION_EXPANSION",
			Op:    "MATCH_ONE",
			Key:   "login",
			Field: "$[0].data.currentUser.subscriptionBenefits.edges[*]+",
			Value: []Condition{{
				Type:  "FIELD_RANGE",
				Op:    "STREQ",
				Field: "+.node.user.login",
			}},
		},
	}}
}

// RequestParams - Templated proof request bound to one user address
type RequestParams struct {
	AppID         string        `json:"appId"`
	TemplateID    string        `json:"attTemplateID"`
	UserAddress   string        `json:"userAddress"`
	RequestID     string        `json:"requestid"`
	Timestamp     int64         `json:"timestamp"`
	AttMode       Mode          `json:"attMode"`
	AttConditions [][]Condition `json:"attConditions,omitempty"`
}

func (r *RequestParams) SetAttConditions(conditions [][]Condition) {
	r.AttConditions = conditions
}

func (r *RequestParams) SetAttMode(mode Mode) {
	r.AttMode = mode
}

func (r *RequestParams) ToJSONString() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}
	return string(b), nil
}

// SignedRequest is what the prover receives.
type SignedRequest struct {
	AttRequest   json.RawMessage `json:"attRequest"`
	AppSignature string          `json:"appSignature"`
}

func (s SignedRequest) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// ParseSignedRequest decodes a signed request string.
func ParseSignedRequest(raw string) (*SignedRequest, error) {
	var s SignedRequest
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("failed to decode signed request: %w", err)
	}
	return &s, nil
}

// signRequest signs the request JSON as an EIP-191 personal message.
func signRequest(requestStr string, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(requestStr)), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign request: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverRequestSigner returns the app address that signed a request. Provers
// use it to authenticate the application.
func RecoverRequestSigner(s *SignedRequest) (common.Address, error) {
	sig, err := hexutil.Decode(s.AppSignature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid app signature: %w", err)
	}
	pub, err := recoverPub(accounts.TextHash(s.AttRequest), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func recoverPub(hash []byte, sig []byte) (*ecdsa.PublicKey, error) {
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("invalid signature length %d", len(sig))
	}
	normalized := append([]byte(nil), sig...)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to recover signer: %w", err)
	}
	return pub, nil
}

func newRequestID() string {
	return uuid.NewString()
}
