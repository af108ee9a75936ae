package domain

import "errors"

var (
	ErrInvalidRouteIndex   = errors.New("invalid or inactive route index")
	ErrEmptyRouteSet       = errors.New("routes can not be empty")
	ErrRouteCountMismatch  = errors.New("routes and amounts lengths mismatch")
	ErrTotalAmountMismatch = errors.New("leg amounts do not sum to total")
	ErrSlippageExceeded    = errors.New("destination amount is too low")
	ErrQuoteFailed         = errors.New("route quote failed")
	ErrBudgetExhausted     = errors.New("quote budget exhausted")
	ErrInsufficientBalance = errors.New("insufficient custody balance")
	ErrInvalidDestination  = errors.New("invalid transfer destination")
	ErrNotOwner            = errors.New("caller is not the owner")
	ErrNotFound            = errors.New("not found")
)
