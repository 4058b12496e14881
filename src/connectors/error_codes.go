package connectors

import (
	"errors"
	"fmt"
)

// AsterErrorCodes maps futures API error codes to their names.
var AsterErrorCodes = map[int]string{
	-1000: "UNKNOWN",                 // Unknown error while processing the request
	-1001: "DISCONNECTED",            // Internal error; unable to process your request
	-1002: "UNAUTHORIZED",            // Not authorized to execute this request
	-1003: "TOO_MANY_REQUESTS",       // Too many requests
	-1007: "TIMEOUT",                 // Timeout waiting for response from backend server
	-1015: "TOO_MANY_ORDERS",         // Too many new orders
	-1021: "INVALID_TIMESTAMP",       // Timestamp outside of the recvWindow
	-1022: "INVALID_SIGNATURE",       // Signature for this request is not valid
	-1102: "MANDATORY_PARAM_EMPTY",   // A mandatory parameter was not sent or was empty
	-1111: "BAD_PRECISION",           // Precision is over the maximum defined for this asset
	-1121: "BAD_SYMBOL",              // Invalid symbol
	-2010: "NEW_ORDER_REJECTED",      // Order rejected
	-2011: "CANCEL_REJECTED",         // Cancel rejected
	-2013: "NO_SUCH_ORDER",           // Order does not exist
	-2014: "BAD_API_KEY_FMT",         // API-key format invalid
	-2015: "REJECTED_MBX_KEY",        // Invalid API-key, IP, or permissions for action
	-2019: "MARGIN_NOT_SUFFICIENT",   // Margin is insufficient
	-2022: "REDUCE_ONLY_REJECT",      // ReduceOnly order is rejected
	-4003: "QTY_LESS_THAN_ZERO",      // Quantity less than or equal to zero
	-4028: "INVALID_LEVERAGE",        // Leverage is not valid
	-4164: "MIN_NOTIONAL",            // Order's notional must be no smaller than the minimum
	-5021: "FOK_ORDER_REJECT",        // Fill-or-kill order rejected
	-5022: "GTX_ORDER_REJECT",        // Post-only order rejected
}

// GetErrorMsg returns a human-readable name for an API error code.
// If the code is unknown, returns a generic message including the code.
func GetErrorMsg(code int) string {
	if msg, ok := AsterErrorCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_ASTER_ERROR_%d", code)
}

// GatewayError is the single error type surfaced by every Gateway implementation.
type GatewayError struct {
	Op         string
	Endpoint   string
	StatusCode int
	Code       int
	Err        error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("gateway %s", e.Op)
	if e.Endpoint != "" {
		msg += " " + e.Endpoint
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Code != 0 {
		msg += fmt.Sprintf(" [%d %s]", e.Code, GetErrorMsg(e.Code))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsGatewayError reports whether err carries a *GatewayError.
func IsGatewayError(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}

func newGatewayError(op, endpoint string, err error) *GatewayError {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return &GatewayError{Op: op, Endpoint: endpoint, Err: err}
}
