package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/akylbek/payment-system/payment-core/internal/models"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrFraudBlocked        = errors.New("payment blocked by fraud gate")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// ValidationError rejects a request before any provider is contacted.
type ValidationError struct {
	Fields map[string]string
	Msg    string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Msg)
	}
	parts := make([]string, 0, len(e.Fields))
	for f, tag := range e.Fields {
		parts = append(parts, f+" "+tag)
	}
	sort.Strings(parts)
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// FraudBlockedError carries the gate's verdict so callers can show flags and
// recommendations.
type FraudBlockedError struct {
	Result *models.FraudCheckResult
}

func (e *FraudBlockedError) Error() string {
	return fmt.Sprintf("%s: risk score %d", ErrFraudBlocked, e.Result.RiskScore)
}

func (e *FraudBlockedError) Is(target error) bool { return target == ErrFraudBlocked }

func newValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Msg: err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Namespace()] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}
