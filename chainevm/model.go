package chainevm

// ContractStatus - Aggregate supply counters of the claim contract
type ContractStatus struct {
	TotalClaimed    uint64 `json:"total_claimed"`
	TotalSupply     uint64 `json:"total_supply"`
	RemainingSupply uint64 `json:"remaining_supply"`
	MaxNftID        uint64 `json:"max_nft_id"`
}

// UserClaimStatus - Per-address claim state
type UserClaimStatus struct {
	Claimed         bool     `json:"claimed"`
	TokenIDs        []uint64 `json:"token_ids"`
	NftIDs          []uint64 `json:"nft_ids"`
	TotalOwnedCount uint64   `json:"total_owned_count"`
}

// Transaction statuses reported by GetTransactionStatus
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
	StatusNotFound  = "not_found"
)

// TransactionStatusResponse - Response status transaction
type TransactionStatusResponse struct {
	TxHash        string  `json:"tx_hash"`
	Status        string  `json:"status"` // pending, confirmed, failed, not_found
	Confirmations uint64  `json:"confirmations"`
	BlockNumber   uint64  `json:"block_number"`
	BlockTime     *uint64 `json:"block_time,omitempty"`
	GasUsed       uint64  `json:"gas_used"`
	Error         *string `json:"error,omitempty"`
	ExplorerURL   string  `json:"explorer_url"`
}

// ErrorResponse - Standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
