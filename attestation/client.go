package attestation

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/claimerr"
)

// DefaultTemplateID - X (Twitter) login template
const DefaultTemplateID = "2e3160ae-8b1e-45e3-8c59-426366278b9d"

// Client holds the application credentials. It is stateless after Init and
// safe for concurrent use.
type Client struct {
	appID      string
	appKey     *ecdsa.PrivateKey
	templateID string
	conditions [][]Condition
	mode       Mode
	attestors  map[common.Address]bool
	prover     Prover
	logger     *zap.Logger
	now        func() time.Time
}

type Option func(*Client)

func WithTemplateID(id string) Option {
	return func(c *Client) { c.templateID = id }
}

func WithConditions(conditions [][]Condition) Option {
	return func(c *Client) { c.conditions = conditions }
}

func WithMode(mode Mode) Option {
	return func(c *Client) { c.mode = mode }
}

// WithAttestors replaces the trusted attestor set.
func WithAttestors(addrs ...common.Address) Option {
	return func(c *Client) {
		c.attestors = make(map[common.Address]bool, len(addrs))
		for _, a := range addrs {
			c.attestors[a] = true
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Init validates the application credentials and returns a ready client.
func Init(appID, appSecret string, prover Prover, opts ...Option) (*Client, error) {
	if appID == "" || appSecret == "" {
		return nil, errors.New("appId or appSecret is not set")
	}
	if prover == nil {
		return nil, errors.New("prover is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(appSecret, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid app secret: %w", err)
	}

	c := &Client{
		appID:      appID,
		appKey:     key,
		templateID: DefaultTemplateID,
		conditions: DefaultConditions(),
		mode:       ModeProxyTLS,
		attestors:  map[common.Address]bool{DefaultAttestor: true},
		prover:     prover,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AppAddress is the address derived from the app secret.
func (c *Client) AppAddress() common.Address {
	return crypto.PubkeyToAddress(c.appKey.PublicKey)
}

// GenerateRequestParams - Build a request for templateID bound to userAddress
func (c *Client) GenerateRequestParams(templateID, userAddress string) *RequestParams {
	return &RequestParams{
		AppID:       c.appID,
		TemplateID:  templateID,
		UserAddress: userAddress,
		RequestID:   newRequestID(),
		Timestamp:   c.now().UnixMilli(),
	}
}

// Sign signs a request string with the application secret.
func (c *Client) Sign(requestStr string) (string, error) {
	sig, err := signRequest(requestStr, c.appKey)
	if err != nil {
		return "", err
	}
	return SignedRequest{AttRequest: []byte(requestStr), AppSignature: sig}.String(), nil
}

// VerifyAttestation checks the attestor signatures locally.
func (c *Client) VerifyAttestation(att *Attestation) error {
	return Verify(att, c.attestors)
}

// ObtainAttestation runs the full proof flow for address and returns only a
// locally verified attestation bound to it. Failures are claimerr attestation errors.
func (c *Client) ObtainAttestation(ctx context.Context, address string) (*Attestation, error) {
	if strings.TrimSpace(address) == "" {
		return nil, claimerr.Attestation("wallet address is required", nil)
	}
	if !common.IsHexAddress(address) {
		return nil, claimerr.Attestation("wallet address is invalid", nil)
	}
	recipient := common.HexToAddress(address)
	log := c.logger.With(zap.String("address", recipient.Hex()), zap.String("template", c.templateID))

	request := c.GenerateRequestParams(c.templateID, recipient.Hex())
	request.SetAttConditions(c.conditions)
	request.SetAttMode(c.mode)

	requestStr, err := request.ToJSONString()
	if err != nil {
		return nil, claimerr.Attestation("could not build proof request", err)
	}
	signed, err := c.Sign(requestStr)
	if err != nil {
		return nil, claimerr.Attestation("could not sign proof request", err)
	}

	log.Info("attestation started", zap.String("request_id", request.RequestID))
	raw, err := c.prover.StartAttestation(ctx, signed)
	if err != nil {
		log.Warn("attestation failed", zap.Error(err))
		if ctx.Err() != nil {
			return nil, claimerr.Attestation("identity verification was cancelled", err)
		}
		return nil, claimerr.Attestation("identity verification could not be completed", err)
	}

	att, err := ParseAttestation(raw)
	if err != nil {
		return nil, claimerr.Attestation("identity verification returned an unreadable proof", err)
	}
	if att.Recipient != recipient {
		return nil, claimerr.Attestation("identity proof is bound to another address", ErrRecipientMismatch)
	}
	if err := c.VerifyAttestation(att); err != nil {
		log.Warn("attestation rejected by local verification", zap.Error(err))
		return nil, claimerr.Attestation("identity proof failed verification", err)
	}

	log.Info("attestation verified", zap.Int("signatures", len(att.Signatures)))
	return att, nil
}
