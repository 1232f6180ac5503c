package transitions

import (
	stderrors "errors"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeUnknownState       = "FSM_UNKNOWN_STATE"
	ErrCodeNoTransition       = "FSM_NO_MATCHING_TRANSITION"
	ErrCodeConditionsNotMet   = "FSM_CONDITIONS_NOT_MET"
	ErrCodeHookFailed         = "FSM_HOOK_FAILED"
	ErrCodeAlreadyBound       = "FSM_ALREADY_BOUND"
	ErrCodeNotBound           = "FSM_NOT_BOUND"
	ErrCodeInvalidConfig      = "FSM_INVALID_CONFIG"
	ErrCodePreconditionFailed = "FSM_PRECONDITION_FAILED"
)

var (
	ErrUnknownState = apperrors.New("unknown state", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeUnknownState)
	ErrNoMatchingTransition = apperrors.New("no matching transition", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeNoTransition)
	ErrConditionsNotMet = apperrors.New("conditions not met", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeConditionsNotMet)
	ErrHookFailed = apperrors.New("hook execution failed", apperrors.CategoryHandler).
			WithTextCode(ErrCodeHookFailed)
	ErrAlreadyBound = apperrors.New("model already bound", apperrors.CategoryConflict).
			WithTextCode(ErrCodeAlreadyBound)
	ErrNotBound = apperrors.New("model not bound", apperrors.CategoryConflict).
			WithTextCode(ErrCodeNotBound)
	ErrInvalidConfig = apperrors.New("invalid machine definition", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidConfig)
	ErrPreconditionFailed = apperrors.New("precondition failed", apperrors.CategoryBadInput).
				WithTextCode(ErrCodePreconditionFailed)
)

func cloneMachineError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	if base == nil {
		base = ErrPreconditionFailed
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode extracts the FSM_* text code from err, empty when err carries
// none.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// IsHookFailure reports whether err originated in a user hook or guard.
func IsHookFailure(err error) bool {
	return ErrorCode(err) == ErrCodeHookFailed
}
