package service

type ErrorCode string

const (
	ErrorCodeInvalidURL         ErrorCode = "INVALID_URL"
	ErrorCodeMissingCredential  ErrorCode = "MISSING_CREDENTIAL"
	ErrorCodeRemoteAPI          ErrorCode = "REMOTE_API"
	ErrorCodeRemoteProtocol     ErrorCode = "REMOTE_PROTOCOL"
	ErrorCodeRemoteUnavailable  ErrorCode = "REMOTE_UNAVAILABLE"
	ErrorCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrorCodeUserExists         ErrorCode = "USER_EXISTS"
	ErrorCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrorCodeInvalidBody        ErrorCode = "INVALID_BODY"
	ErrorCodeUnspecified        ErrorCode = "UNSPECIFIED"
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`

	// UpstreamStatus carries the remote status code for REMOTE_API errors
	// so the transport layer can surface it verbatim.
	UpstreamStatus int `json:"-"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

func (e *Error) WithUpstreamStatus(status int) *Error {
	e.UpstreamStatus = status
	return e
}

func (e *Error) Error() string {
	return e.Message
}
