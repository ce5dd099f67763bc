package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// RejectionCode identifies why a position operation was refused.
// These are expected business outcomes, not errors; callers branch on them.
type RejectionCode string

const (
	RejectInvalidPrice        RejectionCode = "INVALID_PRICE"
	RejectZeroQuantity        RejectionCode = "ZERO_QUANTITY"
	RejectNegativeQuantity    RejectionCode = "NEGATIVE_QUANTITY"
	RejectMaxPositions        RejectionCode = "MAX_POSITIONS"
	RejectInsufficientCapital RejectionCode = "INSUFFICIENT_CAPITAL"
	RejectNoPosition          RejectionCode = "NO_POSITION"
)

// Decision is the terminal outcome of an opportunity-sell evaluation.
type Decision string

const (
	DecisionApproved                     Decision = "APPROVED"
	DecisionRejectedDisabled             Decision = "REJECTED_DISABLED"
	DecisionRejectedLowConfidence        Decision = "REJECTED_LOW_CONFIDENCE"
	DecisionRejectedNoEligible           Decision = "REJECTED_NO_ELIGIBLE"
	DecisionRejectedInsufficientProceeds Decision = "REJECTED_INSUFFICIENT_PROCEEDS"
	DecisionRejectedMaxLiquidation       Decision = "REJECTED_MAX_LIQUIDATION"
)
