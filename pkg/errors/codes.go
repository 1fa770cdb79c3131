package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeRateLimited        ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeStorageError       ErrorCode = "COMMON_017"
)

// Aliases kept short for call sites.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Normalizer Module Error Codes
const (
	ErrCodeNormalizeFailed    ErrorCode = "NORM_001"
	ErrCodeAssetLoadFailed    ErrorCode = "NORM_002"
	ErrCodeAssetFormatInvalid ErrorCode = "NORM_003"
)

// Extractor Module Error Codes
const (
	ErrCodeExtractionFailed   ErrorCode = "EXTRACT_001"
	ErrCodeModelUnavailable   ErrorCode = "EXTRACT_002"
	ErrCodeModelResponseBad   ErrorCode = "EXTRACT_003"
	ErrCodeBackendUnsupported ErrorCode = "EXTRACT_004"
)

// Parse Module Error Codes
const (
	ErrCodeParseFailed         ErrorCode = "PARSE_001"
	ErrCodeEmptyInput          ErrorCode = "PARSE_002"
	ErrCodeBatchModeInvalid    ErrorCode = "PARSE_003"
	ErrCodeContractViolation   ErrorCode = "PARSE_004"
	ErrCodeInstructionNotFound ErrorCode = "PARSE_005"
	ErrCodeBatchTooLarge       ErrorCode = "PARSE_006"
	ErrCodeOutputFormatInvalid ErrorCode = "PARSE_007"
)

// Messaging Module Error Codes
const (
	ErrCodeMessagePublishFailed ErrorCode = "MQ_001"
	ErrCodeMessageDecodeFailed  ErrorCode = "MQ_002"
	ErrCodeProducerClosed       ErrorCode = "MQ_003"
)

// ErrorCodeHTTPStatus maps codes to HTTP statuses.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeRateLimited:        http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeStorageError:       http.StatusInternalServerError,

	ErrCodeNormalizeFailed:    http.StatusUnprocessableEntity,
	ErrCodeAssetLoadFailed:    http.StatusInternalServerError,
	ErrCodeAssetFormatInvalid: http.StatusInternalServerError,

	ErrCodeExtractionFailed:   http.StatusBadGateway,
	ErrCodeModelUnavailable:   http.StatusServiceUnavailable,
	ErrCodeModelResponseBad:   http.StatusBadGateway,
	ErrCodeBackendUnsupported: http.StatusInternalServerError,

	ErrCodeParseFailed:         http.StatusUnprocessableEntity,
	ErrCodeEmptyInput:          http.StatusBadRequest,
	ErrCodeBatchModeInvalid:    http.StatusBadRequest,
	ErrCodeContractViolation:   http.StatusInternalServerError,
	ErrCodeInstructionNotFound: http.StatusNotFound,
	ErrCodeBatchTooLarge:       http.StatusRequestEntityTooLarge,
	ErrCodeOutputFormatInvalid: http.StatusBadRequest,

	ErrCodeMessagePublishFailed: http.StatusInternalServerError,
	ErrCodeMessageDecodeFailed:  http.StatusBadRequest,
	ErrCodeProducerClosed:       http.StatusServiceUnavailable,
}

// ErrorCodeMessage holds the default message for each code.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeRateLimited:        "rate limit exceeded",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeStorageError:       "object storage error",

	ErrCodeNormalizeFailed:    "failed to normalize dose instruction",
	ErrCodeAssetLoadFailed:    "failed to load normalizer asset",
	ErrCodeAssetFormatInvalid: "invalid normalizer asset format",

	ErrCodeExtractionFailed:   "entity extraction failed",
	ErrCodeModelUnavailable:   "tagging model unavailable",
	ErrCodeModelResponseBad:   "malformed tagging model response",
	ErrCodeBackendUnsupported: "unsupported model backend",

	ErrCodeParseFailed:         "failed to parse dose instruction",
	ErrCodeEmptyInput:          "dose instruction is empty",
	ErrCodeBatchModeInvalid:    "unknown batch mode",
	ErrCodeContractViolation:   "internal contract violation",
	ErrCodeInstructionNotFound: "structured instruction not found",
	ErrCodeBatchTooLarge:       "batch exceeds configured limit",
	ErrCodeOutputFormatInvalid: "unsupported output format",

	ErrCodeMessagePublishFailed: "failed to publish message",
	ErrCodeMessageDecodeFailed:  "failed to decode message",
	ErrCodeProducerClosed:       "producer closed",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
