// Package wallet provides the network-facing side of the gas escalator: transaction
// requests, signing keys, nonce tracking and RPC clients for EVM networks such as
// Ethereum, Base and BSC.
package wallet

import (
	"errors"
	"fmt"
)

// Error codes for various wallet operations
const (
	// ErrCodeInvalidNetwork indicates the specified network is not supported
	ErrCodeInvalidNetwork = "INVALID_NETWORK"
	// ErrCodeInvalidAddress indicates an invalid blockchain address format
	ErrCodeInvalidAddress = "INVALID_ADDRESS"
	// ErrCodeInvalidPrivateKey indicates an invalid or malformed private key
	ErrCodeInvalidPrivateKey = "INVALID_PRIVATE_KEY"
	// ErrCodeInvalidConfig indicates a configuration value failed validation
	ErrCodeInvalidConfig = "INVALID_CONFIG"
	// ErrCodeMissingField indicates a transaction request lacks a required field
	ErrCodeMissingField = "MISSING_FIELD"
	// ErrCodeInvalidFees indicates fee fields that cannot describe an EIP-1559 bid
	ErrCodeInvalidFees = "INVALID_FEES"
	// ErrCodeTransactionFailed indicates a transaction failed to execute
	ErrCodeTransactionFailed = "TRANSACTION_FAILED"
	// ErrCodeGasEstimationFailed indicates gas estimation failed
	ErrCodeGasEstimationFailed = "GAS_ESTIMATION_FAILED"
	// ErrCodeRPCError indicates an RPC connection or call failed
	ErrCodeRPCError = "RPC_ERROR"
	// ErrCodeTimeout indicates operation timed out
	ErrCodeTimeout = "TIMEOUT"
	// ErrCodeReceiptNotFound indicates transaction receipt not found
	ErrCodeReceiptNotFound = "RECEIPT_NOT_FOUND"
	// ErrCodeChainMismatch indicates chain ID mismatch
	ErrCodeChainMismatch = "CHAIN_MISMATCH"
	// ErrCodeGasPrice indicates gas price exceeds maximum allowed
	ErrCodeGasPrice = "GAS_PRICE_TOO_HIGH"
)

// WalletError represents a wallet-specific error with additional context
// about the error type, message, underlying error and network.
type WalletError struct {
	Code    string      // Error code identifying the type of error
	Message string      // Human readable error message
	Err     error       // Underlying error if any
	Network NetworkType // Network where the error occurred
}

// Error implements the error interface for WalletError.
// It formats the error message including the code, message, network (if present)
// and underlying error.
func (e *WalletError) Error() string {
	if e.Err == nil {
		if e.Network != "" {
			return fmt.Sprintf("[%s] %s on network %s", e.Code, e.Message, e.Network)
		}
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	if e.Network != "" {
		return fmt.Sprintf("[%s] %s on network %s: %v", e.Code, e.Message, e.Network, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
}

// Unwrap returns the underlying error.
// This implements the errors.Unwrap interface for error wrapping.
func (e *WalletError) Unwrap() error {
	return e.Err
}

// NewWalletError creates a new WalletError with the given parameters.
//
// Parameters:
//   - code: Error code identifying the type of error
//   - message: Human readable error message
//   - err: Underlying error if any
//   - network: Network where the error occurred
//
// Returns:
//   - *WalletError: A new wallet error instance
func NewWalletError(code string, message string, err error, network NetworkType) *WalletError {
	return &WalletError{
		Code:    code,
		Message: message,
		Err:     err,
		Network: network,
	}
}

// MissingFieldError reports a transaction request field that must be set
// before the operation can proceed.
func MissingFieldError(field string) *WalletError {
	return NewWalletError(ErrCodeMissingField, fmt.Sprintf("transaction request is missing %q", field), nil, "")
}

// IsWalletError checks if an error is, or wraps, a WalletError with the given code.
//
// Parameters:
//   - err: Error to check
//   - code: Error code to match against
//
// Returns:
//   - bool: true if err is a WalletError with matching code, false otherwise
func IsWalletError(err error, code string) bool {
	if err == nil {
		return false
	}
	var e *WalletError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsValidationError reports whether err was caused by an incomplete or
// inconsistent transaction request rather than by the network.
func IsValidationError(err error) bool {
	return IsWalletError(err, ErrCodeMissingField) || IsWalletError(err, ErrCodeInvalidFees)
}
