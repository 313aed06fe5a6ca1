package chain

// Native event names and payloads as emitted by the escrow contracts of each
// ledger.

const (
	EVMEscrowCreatedEvent = "EscrowCreated"
	EVMWithdrawnEvent     = "Withdrawn"
	EVMRefundedEvent      = "Refunded"

	NearSwapInitiatedEvent = "swap_initiated"
	NearSwapClaimedEvent   = "swap_claimed"
	NearSwapRefundedEvent  = "swap_refunded"

	BitcoinHTLCFundedEvent   = "htlc_funded"
	BitcoinHTLCClaimedEvent  = "htlc_claimed"
	BitcoinHTLCRefundedEvent = "htlc_refunded"
)

// EVMEscrowCreated carries 0x hex hashes, wei amounts and unix second
// timelocks.
type EVMEscrowCreated struct {
	ContractID string `json:"contractId"`
	Sender     string `json:"sender"`
	Receiver   string `json:"receiver"`
	Amount     string `json:"amount"`
	Hashlock   string `json:"hashlock"`
	Timelock   int64  `json:"timelock"`
	DstChain   string `json:"dstChain,omitempty"`
	DstAddress string `json:"dstAddress,omitempty"`
}

type EVMWithdrawn struct {
	ContractID string `json:"contractId"`
	Preimage   string `json:"preimage"`
}

type EVMRefunded struct {
	ContractID string `json:"contractId"`
}

// NearSwapInitiated carries yoctoNEAR amounts as strings and nanosecond
// timelocks.
type NearSwapInitiated struct {
	SwapID     string `json:"swap_id"`
	Sender     string `json:"sender"`
	Receiver   string `json:"receiver"`
	Amount     string `json:"amount"`
	Hashlock   string `json:"hashlock"`
	Timelock   uint64 `json:"timelock"`
	DstChain   string `json:"dst_chain,omitempty"`
	DstAddress string `json:"dst_address,omitempty"`
}

// NearSwapClaimed carries the secret base64 encoded.
type NearSwapClaimed struct {
	SwapID  string `json:"swap_id"`
	Claimer string `json:"claimer"`
	Secret  string `json:"secret"`
	Amount  string `json:"amount"`
}

type NearSwapRefunded struct {
	SwapID   string `json:"swap_id"`
	Refunder string `json:"refunder"`
	Amount   string `json:"amount"`
}

// BitcoinHTLCFunded describes a funded HTLC output. Locktime is a unix
// timestamp.
type BitcoinHTLCFunded struct {
	Outpoint      string `json:"outpoint"`
	PaymentHash   string `json:"payment_hash"`
	RefundAddress string `json:"refund_address"`
	ClaimAddress  string `json:"claim_address"`
	ValueSats     int64  `json:"value_sats"`
	Locktime      int64  `json:"locktime"`
	DstChain      string `json:"dst_chain,omitempty"`
	DstAddress    string `json:"dst_address,omitempty"`
}

type BitcoinHTLCClaimed struct {
	Outpoint  string `json:"outpoint"`
	Preimage  string `json:"preimage"`
	SpendTxID string `json:"spend_txid"`
}

type BitcoinHTLCRefunded struct {
	Outpoint  string `json:"outpoint"`
	SpendTxID string `json:"spend_txid"`
}
