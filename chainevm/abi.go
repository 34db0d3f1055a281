package chainevm

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const attestationTuple = `{
	"name": "attestation", "type": "tuple", "internalType": "struct Attestation",
	"components": [
		{"name": "recipient", "type": "address"},
		{"name": "request", "type": "tuple", "components": [
			{"name": "url", "type": "string"},
			{"name": "header", "type": "string"},
			{"name": "method", "type": "string"},
			{"name": "body", "type": "string"}
		]},
		{"name": "reponseResolve", "type": "tuple[]", "components": [
			{"name": "keyName", "type": "string"},
			{"name": "parseType", "type": "string"},
			{"name": "parsePath", "type": "string"}
		]},
		{"name": "data", "type": "string"},
		{"name": "attConditions", "type": "string"},
		{"name": "timestamp", "type": "uint64"},
		{"name": "additionParams", "type": "string"},
		{"name": "attestors", "type": "tuple[]", "components": [
			{"name": "attestorAddr", "type": "address"},
			{"name": "url", "type": "string"}
		]},
		{"name": "signatures", "type": "bytes[]"}
	]
}`

// NFTClaimABI is the part of the NFTClaim contract interface the client uses.
const NFTClaimABI = `[
	{"type": "function", "name": "claimNFT", "stateMutability": "nonpayable",
	 "inputs": [` + attestationTuple + `, {"name": "nftId", "type": "uint256"}],
	 "outputs": []},
	{"type": "function", "name": "hasUserClaimed", "stateMutability": "view",
	 "inputs": [{"name": "user", "type": "address"}],
	 "outputs": [{"name": "", "type": "bool"}]},
	{"type": "function", "name": "isScreenNameUsed", "stateMutability": "view",
	 "inputs": [{"name": "screenName", "type": "string"}],
	 "outputs": [{"name": "", "type": "bool"}]},
	{"type": "function", "name": "getUserClaimStatus", "stateMutability": "view",
	 "inputs": [{"name": "user", "type": "address"}],
	 "outputs": [
		{"name": "claimed", "type": "bool"},
		{"name": "tokenIds", "type": "uint256[]"},
		{"name": "nftIds", "type": "uint256[]"},
		{"name": "totalOwnedCount", "type": "uint256"}
	 ]},
	{"type": "function", "name": "getContractStatus", "stateMutability": "view",
	 "inputs": [],
	 "outputs": [
		{"name": "totalClaimed_", "type": "uint256"},
		{"name": "totalSupply_", "type": "uint256"},
		{"name": "remainingSupply", "type": "uint256"},
		{"name": "maxNftId", "type": "uint256"}
	 ]},
	{"type": "function", "name": "getClaimedCount", "stateMutability": "view",
	 "inputs": [{"name": "nftId", "type": "uint256"}],
	 "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "getRemainingSupply", "stateMutability": "view",
	 "inputs": [],
	 "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "error", "name": "AlreadyClaimed", "inputs": []},
	{"type": "error", "name": "ScreenNameAlreadyUsed", "inputs": [{"name": "screenName", "type": "string"}]},
	{"type": "error", "name": "InvalidNftId", "inputs": [{"name": "nftId", "type": "uint256"}]},
	{"type": "error", "name": "SupplyExhausted", "inputs": []},
	{"type": "error", "name": "InvalidRecipient", "inputs": []}
]`

// ParsedABI is NFTClaimABI, parsed once.
var ParsedABI = mustParseABI(NFTClaimABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chainevm: invalid NFTClaim ABI: " + err.Error())
	}
	return parsed
}
