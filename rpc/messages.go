package rpc

import "time"

// Amounts travel as decimal strings in whole units of the chain asset.

type SubmitSwapRequest struct {
	SourceChain        string `json:"sourceChain"`
	DestinationChain   string `json:"destinationChain"`
	Amount             string `json:"amount"`
	BeneficiaryAddress string `json:"beneficiaryAddress"`
	InitiatorAddress   string `json:"initiatorAddress,omitempty"`
	// Zero selects the daemon default
	TimelockSeconds int64 `json:"timelockSeconds,omitempty"`
}

type SubmitSwapResponse struct {
	SwapID              string    `json:"swapId"`
	Hashlock            string    `json:"hashlock"`
	Timelock            time.Time `json:"timelock"`
	DestinationTimelock time.Time `json:"destinationTimelock"`
	Quote               *Quote    `json:"quote"`
}

type GetSwapStatusRequest struct {
	SwapID string `json:"swapId"`
}

type Fill struct {
	EscrowRef string `json:"escrowRef"`
	Amount    string `json:"amount"`
	TxRef     string `json:"txRef"`
	Position  int    `json:"position"`
}

type CounterEscrow struct {
	EscrowRef        string `json:"escrowRef"`
	Amount           string `json:"amount"`
	CreatedByRelayer bool   `json:"createdByRelayer"`
	IncentiveBps     string `json:"incentiveBps,omitempty"`
	RefundTx         string `json:"refundTx,omitempty"`
	WithdrawTx       string `json:"withdrawTx,omitempty"`
}

type SwapStatus struct {
	SwapID               string          `json:"swapId"`
	Hashlock             string          `json:"hashlock"`
	Status               string          `json:"status"`
	AwaitingSource       bool            `json:"awaitingSource,omitempty"`
	SourceChain          string          `json:"sourceChain"`
	DestinationChain     string          `json:"destinationChain"`
	PrincipalAmount      string          `json:"principalAmount"`
	CounterAmount        string          `json:"counterAmount,omitempty"`
	FilledAmount         string          `json:"filledAmount"`
	Fills                []Fill          `json:"fills,omitempty"`
	CounterEscrows       []CounterEscrow `json:"counterEscrows,omitempty"`
	SourceEscrowRef      string          `json:"sourceEscrowRef,omitempty"`
	Timelock             time.Time       `json:"timelock"`
	DestinationTimelock  time.Time       `json:"destinationTimelock,omitzero"`
	SecretRevealed       bool            `json:"secretRevealed"`
	LastError            string          `json:"lastError,omitempty"`
	ResolverIncentiveBps string          `json:"resolverIncentiveBps,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

type RevealSecretRequest struct {
	SwapID string `json:"swapId"`
	// Hex encoded 32 byte preimage
	Secret string `json:"secret"`
}

type RevealSecretResponse struct{}

type GetQuoteRequest struct {
	SourceChain      string `json:"sourceChain"`
	DestinationChain string `json:"destinationChain"`
	Amount           string `json:"amount"`
}

type Quote struct {
	CounterAmount        string `json:"counterAmount"`
	Rate                 string `json:"rate"`
	Fee                  string `json:"fee"`
	NetAmount            string `json:"netAmount"`
	Source               string `json:"source"`
	Fallback             bool   `json:"fallback,omitempty"`
	EstimatedGas         string `json:"estimatedGas"`
	ResolverIncentiveBps string `json:"resolverIncentiveBps"`
}

type ListSwapsRequest struct {
	Account string `json:"account"`
	Offset  int    `json:"offset,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type ListSwapsResponse struct {
	Swaps []*SwapStatus `json:"swaps"`
}
