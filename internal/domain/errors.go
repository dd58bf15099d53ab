package domain

// ErrorKind groups failures by what the caller can do about them.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindState         ErrorKind = "state"
	KindAuthorization ErrorKind = "authorization"
	KindArithmetic    ErrorKind = "arithmetic"
	KindResource      ErrorKind = "resource"
	KindNotFound      ErrorKind = "not_found"
	KindRateLimited   ErrorKind = "rate_limited"
)

// Error is a typed, non-retryable engine failure. Every exported value below
// is a sentinel; compare with errors.Is.
type Error struct {
	Code string
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Code: code, Kind: kind, Msg: msg}
}

// Validation errors.
var (
	ErrQuestionTooLong        = newError(KindValidation, "QuestionTooLong", "question too long")
	ErrOptionTooLong          = newError(KindValidation, "OptionTooLong", "option label too long")
	ErrInvalidOptionsCount    = newError(KindValidation, "InvalidOptionsCount", "invalid options count (must be 2-10)")
	ErrInvalidAmount          = newError(KindValidation, "InvalidAmount", "invalid amount")
	ErrStakeTooSmall          = newError(KindValidation, "StakeTooSmall", "stake amount too small")
	ErrInvalidBetDeadline     = newError(KindValidation, "InvalidBetDeadline", "invalid bet deadline")
	ErrInvalidResolveTime     = newError(KindValidation, "InvalidResolveTime", "invalid resolve time")
	ErrInvalidChallengeWindow = newError(KindValidation, "InvalidChallengeWindow", "invalid challenge window")
	ErrInvalidOptionIndex     = newError(KindValidation, "InvalidOptionIndex", "invalid option index")
	ErrInvalidMarketID        = newError(KindValidation, "InvalidMarketId", "invalid market id")
	ErrInvalidAdmin           = newError(KindValidation, "InvalidAdmin", "invalid admin address")
	ErrInvalidFeeSink         = newError(KindValidation, "InvalidFeeVault", "invalid fee sink")
	ErrInvalidFeeBps          = newError(KindValidation, "InvalidFeeBps", "fee rate must be between 0 and 10000 bps")
	ErrInvalidResolution      = newError(KindValidation, "InvalidResolution", "invalid resolution mode")
	ErrInvalidOracle          = newError(KindValidation, "InvalidOracle", "invalid oracle configuration")
	ErrInvalidPrice           = newError(KindValidation, "InvalidPrice", "invalid price from oracle")
	ErrEmptyBatch             = newError(KindValidation, "EmptyBatch", "batch refund has no entries")
)

// State errors.
var (
	ErrNotInitialized          = newError(KindState, "NotInitialized", "fee schedule not initialized")
	ErrAlreadyInitialized      = newError(KindState, "AlreadyInitialized", "fee schedule already initialized")
	ErrMarketNotOpen           = newError(KindState, "MarketNotOpen", "market is not open")
	ErrBettingClosed           = newError(KindState, "BettingClosed", "betting period has closed")
	ErrCannotChangeOption      = newError(KindState, "CannotChangeOption", "cannot change option after first bet")
	ErrInvalidMarketStatus     = newError(KindState, "InvalidMarketStatus", "invalid market status")
	ErrMarketNotProposed       = newError(KindState, "MarketNotProposed", "market is not in proposed status")
	ErrNoChallengeWindow       = newError(KindState, "NoChallengeWindow", "no challenge window set")
	ErrChallengeWindowClosed   = newError(KindState, "ChallengeWindowClosed", "challenge window has closed")
	ErrChallengeWindowNotEnded = newError(KindState, "ChallengeWindowNotEnded", "challenge window has not ended")
	ErrMarketNotDisputed       = newError(KindState, "MarketNotDisputed", "market is not in disputed status")
	ErrMarketNotSettled        = newError(KindState, "MarketNotSettled", "market is not settled")
	ErrNoOutcome               = newError(KindState, "NoOutcome", "no outcome determined")
	ErrAlreadyClaimed          = newError(KindState, "AlreadyClaimed", "already claimed")
	ErrNotWinner               = newError(KindState, "NotWinner", "not a winner")
	ErrNoWinners               = newError(KindState, "NoWinners", "no winners in this market")
	ErrRefundNotAvailable      = newError(KindState, "RefundNotAvailable", "refund not available")
	ErrMarketAlreadySettled    = newError(KindState, "MarketAlreadySettled", "market already settled")
	ErrMarketNotCancelled      = newError(KindState, "MarketNotCancelled", "market is not cancelled")
	ErrNotMature               = newError(KindState, "NotMature", "market not mature for oracle settlement")
	ErrUnsupportedAction       = newError(KindState, "UnsupportedAction", "action not supported by this market's resolver")
	ErrLockHeld                = newError(KindState, "LockHeld", "market is busy, retry")
)

// Authorization errors.
var (
	ErrNotAdmin           = newError(KindAuthorization, "NotAdmin", "not admin")
	ErrMustBeBettor       = newError(KindAuthorization, "MustBeBettor", "must be a bettor to perform this action")
	ErrInvalidBetOwner    = newError(KindAuthorization, "InvalidBetOwner", "invalid bet owner")
	ErrUnauthorizedOracle = newError(KindAuthorization, "UnauthorizedOracle", "caller is not the market oracle")
	ErrUnauthorized       = newError(KindAuthorization, "Unauthorized", "unauthorized")
)

// Arithmetic and resource errors.
var (
	ErrOverflow          = newError(KindArithmetic, "Overflow", "arithmetic overflow")
	ErrInsufficientFunds = newError(KindResource, "InsufficientFunds", "insufficient funds")
)

// Lookup failures.
var (
	ErrNotFound         = newError(KindNotFound, "NotFound", "not found")
	ErrMarketNotFound   = newError(KindNotFound, "MarketNotFound", "market not found")
	ErrPositionNotFound = newError(KindNotFound, "PositionNotFound", "position not found")
	ErrRateLimited      = newError(KindRateLimited, "RateLimited", "rate limited")
)
