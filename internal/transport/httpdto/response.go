package httpdto

// Response is the envelope every endpoint answers with: Data on success,
// Error plus a machine-readable Code otherwise.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse builds an error envelope. Code is one of the stable
// identifiers clients switch on (INVALID_REQUEST, NOT_FOUND, FORBIDDEN,
// UNAUTHORIZED, CONFLICT, RATE_LIMITED, UNAVAILABLE, INTERNAL_ERROR).
func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    code,
	}
}
