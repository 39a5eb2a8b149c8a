package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrUserNotFound          = fmt.Errorf("user not found")
	ErrTierNotFound          = fmt.Errorf("tier not found")
	ErrRewardNotFound        = fmt.Errorf("reward not found")
	ErrVisitNotFound         = fmt.Errorf("visit not found")
	ErrSpinnerOptionNotFound = fmt.Errorf("spinner option not found")
	ErrUserRewardNotFound    = fmt.Errorf("user reward not found")
	ErrAdminNotFound         = fmt.Errorf("admin user not found")
	ErrSettingsNotFound      = fmt.Errorf("app settings not found")

	ErrInvalidVisitRequirement = fmt.Errorf("visit requirement must be a positive integer")
	ErrInvalidRewardType       = fmt.Errorf("unknown reward type")
	ErrMissingDiscountValue    = fmt.Errorf("discount value must be between 1 and 100")
	ErrInvalidProbability      = fmt.Errorf("probability must be a positive finite number")
	ErrNoSpinnerOptions        = fmt.Errorf("spinner has no active options")
	ErrNotSpinnerReward        = fmt.Errorf("reward is not a spinner reward")
	ErrMissingContact          = fmt.Errorf("phone number or email is required")
	ErrMissingName             = fmt.Errorf("name is required")

	ErrTierHasRewards        = fmt.Errorf("tier still has rewards attached")
	ErrRewardHasHistory      = fmt.Errorf("reward was already granted, deactivate it instead")
	ErrRewardHasPendingSpins = fmt.Errorf("reward still has visits awaiting a spin")
	ErrDuplicateTier         = fmt.Errorf("tier with this name or visit requirement already exists")
	ErrDuplicateUser         = fmt.Errorf("user with this phone number or email already exists")
	ErrDuplicateAdmin        = fmt.Errorf("admin with this username or email already exists")
	ErrAlreadySpun           = fmt.Errorf("spin already resolved for this visit")
	ErrNoSpinPending         = fmt.Errorf("visit is not awaiting a spin for this reward")
	ErrRewardAlreadyUsed     = fmt.Errorf("reward already used")
	ErrVisitAlreadySettled   = fmt.Errorf("visit reward already settled")

	ErrRewardGrantFailed = fmt.Errorf("visit recorded but reward could not be granted")
	ErrVisitLockConflict = fmt.Errorf("concurrent checkout for the same user")

	ErrInvalidCredentials = fmt.Errorf("invalid username or password")
	ErrInactiveAdmin      = fmt.Errorf("admin user is inactive")
	ErrForbidden          = fmt.Errorf("insufficient role")
)

// Kind classifies an error so callers can branch without matching messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindConsistency
	KindConcurrency
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindConsistency:
		return "consistency"
	case KindConcurrency:
		return "concurrency"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op string, err error) error  { return E(KindValidation, op, err) }
func NotFound(op string, err error) error    { return E(KindNotFound, op, err) }
func Conflict(op string, err error) error    { return E(KindConflict, op, err) }
func Consistency(op string, err error) error { return E(KindConsistency, op, err) }
func Concurrency(op string, err error) error { return E(KindConcurrency, op, err) }

// KindOf returns the kind of the outermost tagged error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}
