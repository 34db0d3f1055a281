// Package attestationtest provides an in-process attestation service for tests.
package attestationtest

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/attestation"
)

const (
	AppID     = "0x4bf0468034fd3e9cc4678915f25b253351c5a3ef"
	AppSecret = "0xe37b6e481d80c537838f7b16e7fe70bd9d48a7326f32c0eaabdd1c82074c819a"
)

// Prover issues attestations signed by its own attestor key.
type Prover struct {
	mu sync.Mutex

	Key      *ecdsa.PrivateKey
	Identity string
	// Err fails StartAttestation when set.
	Err error
	// Tamper mutates the attestation after signing.
	Tamper func(*attestation.Attestation)
	// Block makes StartAttestation wait for ctx to end.
	Block bool

	Requests []attestation.RequestParams
}

// NewProver returns a prover attesting the given X login.
func NewProver(identity string) *Prover {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return &Prover{Key: key, Identity: identity}
}

// Attestor is the address to trust for this prover.
func (p *Prover) Attestor() common.Address {
	return crypto.PubkeyToAddress(p.Key.PublicKey)
}

// NewClient builds an attestation client that trusts this prover.
func (p *Prover) NewClient(opts ...attestation.Option) *attestation.Client {
	opts = append([]attestation.Option{attestation.WithAttestors(p.Attestor())}, opts...)
	c, err := attestation.Init(AppID, AppSecret, p, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func (p *Prover) StartAttestation(ctx context.Context, signedRequest string) (string, error) {
	p.mu.Lock()
	block, failure := p.Block, p.Err
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if failure != nil {
		return "", failure
	}

	signed, err := attestation.ParseSignedRequest(signedRequest)
	if err != nil {
		return "", err
	}
	var req attestation.RequestParams
	if err := json.Unmarshal(signed.AttRequest, &req); err != nil {
		return "", fmt.Errorf("bad request: %w", err)
	}

	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	p.mu.Unlock()

	att := p.Issue(common.HexToAddress(req.UserAddress))
	b, err := json.Marshal(att)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Issue signs an attestation for recipient.
func (p *Prover) Issue(recipient common.Address) *attestation.Attestation {
	data, _ := json.Marshal(map[string]string{"screen_name": p.Identity})
	att := &attestation.Attestation{
		Recipient: recipient,
		Request: attestation.NetworkRequest{
			Url:    "https://x.com/i/api/graphql/subscriptions",
			Method: "GET",
		},
		ReponseResolve: []attestation.ResponseResolve{
			{KeyName: "login", ParseType: "json", ParsePath: "+.node.user.login"},
		},
		Data:          string(data),
		AttConditions: `[[{"op":"STREQ","field":"+.node.user.login"}]]`,
		Timestamp:     1_720_000_000_000,
		Attestors: []attestation.Attestor{
			{AttestorAddr: p.Attestor(), Url: "https://attestor.test"},
		},
	}
	sig, err := crypto.Sign(attestation.Digest(att).Bytes(), p.Key)
	if err != nil {
		panic(err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	att.Signatures = attestation.Signatures{sig}

	if p.Tamper != nil {
		p.Tamper(att)
	}
	return att
}
