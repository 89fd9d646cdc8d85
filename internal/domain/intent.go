package domain

import (
	"math/big"
	"time"
)

// IntentStatus tracks the intent lifecycle. Rejected, filled, and failed are
// terminal; an intent is never retried once it reaches a terminal status.
type IntentStatus string

const (
	IntentStatusObserved IntentStatus = "observed"
	IntentStatusFilling  IntentStatus = "filling"
	IntentStatusRejected IntentStatus = "rejected"
	IntentStatusFilled   IntentStatus = "filled"
	IntentStatusFailed   IntentStatus = "failed"
)

// Intent is one observed cross-chain order: the user escrowed the input leg on
// the source chain and the solver must deliver the output leg on the
// destination chain. Addresses are normalized lowercase hex; OrderID is the
// 0x-prefixed 32-byte order identifier used as the dedup key.
type Intent struct {
	OrderID          string
	User             string
	Recipient        string
	SourceChain      uint64
	DestinationChain uint64

	// Input leg: what the user escrowed on the source chain.
	InputToken  string
	InputAmount *big.Int

	// Output leg: what the solver must deliver on the destination chain.
	OutputToken  string
	OutputAmount *big.Int

	// Deadline is the unix timestamp after which a fill is no longer valid.
	Deadline int64

	// Provenance of the observed Open event; used for logging and audit only.
	BlockNumber uint64
	TxHash      string
}

// Expired reports whether the intent's fill deadline has passed at now.
func (i Intent) Expired(now time.Time) bool {
	return i.Deadline > 0 && now.Unix() > i.Deadline
}

// EvaluationResult is the outcome of a profitability evaluation. It is a pure
// function of the intent, the current gas price, and the engine's thresholds;
// it is never persisted.
type EvaluationResult struct {
	Profitable        bool
	ExpectedProfitBps int
	Reason            string
	GasEstimate       *big.Int
}

// FillRecord captures a fill attempt for audit. TxHash is empty when the fill
// never reached submission (e.g. gas re-check abort).
type FillRecord struct {
	ID        string
	OrderID   string
	ChainID   uint64
	Token     string
	Amount    *big.Int
	TxHash    string
	Status    IntentStatus
	ProfitBps int
	CreatedAt time.Time
}
