package app

import (
	"errors"
	"fmt"
	"net/http"

	"setlist/bot/internal/ledger"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// ledgerError maps ledger sentinels onto the user-visible taxonomy. The
// message is already rendered chat text.
func ledgerError(err error, message string) *DomainError {
	switch {
	case errors.Is(err, ledger.ErrNotOpen):
		return domainError(http.StatusConflict, "NOT_OPEN", message, nil)
	case errors.Is(err, ledger.ErrEmptyName):
		return domainError(http.StatusBadRequest, "INVALID_NAME", message, nil)
	case errors.Is(err, ledger.ErrTooLong):
		return domainError(http.StatusBadRequest, "TOO_LONG", message, nil)
	case errors.Is(err, ledger.ErrDuplicateVote):
		return domainError(http.StatusConflict, "DUPLICATE_VOTE", message, nil)
	case errors.Is(err, ledger.ErrNotFound):
		return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
	}
	return domainError(http.StatusInternalServerError, "INTERNAL", message, nil)
}
