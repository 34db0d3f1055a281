package attestation

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Field names follow the on-chain Attestation tuple so the struct can be handed
// straight to the ABI encoder.

// NetworkRequest - HTTP request the attestor replayed against the data source
type NetworkRequest struct {
	Url    string `json:"url"`
	Header string `json:"header"`
	Method string `json:"method"`
	Body   string `json:"body"`
}

// ResponseResolve - How a value was extracted from the response
type ResponseResolve struct {
	KeyName   string `json:"keyName"`
	ParseType string `json:"parseType"`
	ParsePath string `json:"parsePath"`
}

type Attestor struct {
	AttestorAddr common.Address `json:"attestorAddr"`
	Url          string         `json:"url"`
}

// Signatures are encoded as 0x-prefixed hex strings on the wire.
type Signatures [][]byte

func (s Signatures) MarshalJSON() ([]byte, error) {
	out := make([]string, len(s))
	for i, sig := range s {
		out[i] = hexutil.Encode(sig)
	}
	return json.Marshal(out)
}

func (s *Signatures) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	sigs := make(Signatures, len(raw))
	for i, r := range raw {
		b, err := hexutil.Decode(r)
		if err != nil {
			return fmt.Errorf("signature %d: %w", i, err)
		}
		sigs[i] = b
	}
	*s = sigs
	return nil
}

// Attestation is the signed proof returned by the attestation service. Data
// carries the proven payload (for example the verified X login) and Recipient
// the address it is bound to.
type Attestation struct {
	Recipient      common.Address    `json:"recipient"`
	Request        NetworkRequest    `json:"request"`
	ReponseResolve []ResponseResolve `json:"reponseResolve"`
	Data           string            `json:"data"`
	AttConditions  string            `json:"attConditions"`
	Timestamp      uint64            `json:"timestamp"`
	AdditionParams string            `json:"additionParams"`
	Attestors      []Attestor        `json:"attestors"`
	Signatures     Signatures        `json:"signatures"`
}

// ParseAttestation decodes the service's JSON string.
func ParseAttestation(raw string) (*Attestation, error) {
	var att Attestation
	if err := json.Unmarshal([]byte(raw), &att); err != nil {
		return nil, fmt.Errorf("failed to decode attestation: %w", err)
	}
	return &att, nil
}

// ProofValue returns a field of the proven data payload, when Data is a JSON object.
func (a *Attestation) ProofValue(key string) (string, bool) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(a.Data), &fields); err != nil {
		return "", false
	}
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
