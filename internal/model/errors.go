package model

import "errors"

var (
	ErrUnsupportedCurrency   = errors.New("unsupported currency")
	ErrUnsupportedChain      = errors.New("unsupported chain")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidContribution   = errors.New("invalid contribution")
	ErrDuplicateContribution = errors.New("duplicate contribution")
	ErrInvalidTransition     = errors.New("invalid status transition")
)
