package attestation

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultAttestor is the attestation service's published signing address.
var DefaultAttestor = common.HexToAddress("0xDB736B13E2f522dBE18B2015d0291E4b193D8eF6")

var (
	ErrNoSignatures      = errors.New("attestation carries no signatures")
	ErrUnknownAttestor   = errors.New("attestation signed by an unknown attestor")
	ErrRecipientMismatch = errors.New("attestation recipient does not match the claiming address")
)

func encodeRequest(r NetworkRequest) common.Hash {
	return crypto.Keccak256Hash([]byte(r.Url), []byte(r.Header), []byte(r.Method), []byte(r.Body))
}

func encodeResponse(rs []ResponseResolve) common.Hash {
	var buf []byte
	for _, r := range rs {
		buf = append(buf, r.KeyName...)
		buf = append(buf, r.ParseType...)
		buf = append(buf, r.ParsePath...)
	}
	return crypto.Keccak256Hash(buf)
}

// Digest is the packed hash attestors sign: recipient, request hash, response
// hash, data, conditions, timestamp and addition params.
func Digest(a *Attestation) common.Hash {
	req := encodeRequest(a.Request)
	resp := encodeResponse(a.ReponseResolve)

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], a.Timestamp)

	return crypto.Keccak256Hash(
		a.Recipient.Bytes(),
		req.Bytes(),
		resp.Bytes(),
		[]byte(a.Data),
		[]byte(a.AttConditions),
		ts[:],
		[]byte(a.AdditionParams),
	)
}

// Verify checks every signature recovers to a trusted attestor.
func Verify(a *Attestation, trusted map[common.Address]bool) error {
	if len(a.Signatures) == 0 {
		return ErrNoSignatures
	}
	digest := Digest(a)
	for i, sig := range a.Signatures {
		pub, err := recoverPub(digest.Bytes(), sig)
		if err != nil {
			return fmt.Errorf("signature %d: %w", i, err)
		}
		signer := crypto.PubkeyToAddress(*pub)
		if !trusted[signer] {
			return fmt.Errorf("signature %d by %s: %w", i, signer.Hex(), ErrUnknownAttestor)
		}
	}
	return nil
}
