package plume

import (
	"errors"
	"fmt"
)

// SMTPCode represents SMTP reply codes (RFC 5321).
// 2yz: Success, 3yz: Continue, 4yz: Transient failure, 5yz: Permanent failure.
type SMTPCode int

const (
	// 2xx - Success
	CodeServiceReady   SMTPCode = 220
	CodeServiceClosing SMTPCode = 221
	CodeOK             SMTPCode = 250
	CodeCannotVRFY     SMTPCode = 252

	// 3xx - Intermediate
	CodeStartMailInput SMTPCode = 354

	// 4xx - Transient Failure
	CodeServiceUnavailable  SMTPCode = 421
	CodeLocalError          SMTPCode = 451
	CodeInsufficientStorage SMTPCode = 452

	// 5xx - Permanent Failure
	CodeCommandUnrecognized   SMTPCode = 500
	CodeSyntaxError           SMTPCode = 501
	CodeCommandNotImplemented SMTPCode = 502
	CodeBadSequence           SMTPCode = 503
	CodeMailboxNotFound       SMTPCode = 550
	CodeExceededStorage       SMTPCode = 552
	CodeTransactionFailed     SMTPCode = 554
)

// Response represents an SMTP reply to be sent to the client.
type Response struct {
	Code         SMTPCode
	EnhancedCode string
	Message      string
}

// String formats the response as an SMTP reply line, without the trailing CRLF.
func (r Response) String() string {
	if r.EnhancedCode != "" {
		return fmt.Sprintf("%d %s %s", r.Code, r.EnhancedCode, r.Message)
	}
	return fmt.Sprintf("%d %s", r.Code, r.Message)
}

// IsError returns true for 4xx or 5xx codes.
func (r Response) IsError() bool {
	return r.Code >= 400
}

// IsSuccess returns true for 2xx codes.
func (r Response) IsSuccess() bool {
	return r.Code >= 200 && r.Code < 300
}

// IsIntermediate returns true for 3xx codes.
func (r Response) IsIntermediate() bool {
	return r.Code >= 300 && r.Code < 400
}

// IsTransientError returns true for 4xx codes.
func (r Response) IsTransientError() bool {
	return r.Code >= 400 && r.Code < 500
}

// IsPermanentError returns true for 5xx codes.
func (r Response) IsPermanentError() bool {
	return r.Code >= 500
}

// ResponseOK creates a standard 250 OK response.
func ResponseOK(message string) Response {
	return Response{Code: CodeOK, Message: message}
}

// ResponseServiceReady creates a 220 service ready response.
// The domain must be the first word after the code.
func ResponseServiceReady(domain string, message string) Response {
	msg := domain
	if message != "" {
		msg = domain + " " + message
	}
	return Response{Code: CodeServiceReady, Message: msg}
}

// ResponseServiceClosing creates a 221 service closing response.
func ResponseServiceClosing(domain string) Response {
	return Response{Code: CodeServiceClosing, Message: domain + " Service closing transmission channel"}
}

// ResponseBadSequence creates a 503 bad sequence of commands response.
func ResponseBadSequence(message string) Response {
	return Response{Code: CodeBadSequence, EnhancedCode: "5.5.1", Message: message}
}

// ResponseSyntaxError creates a 501 syntax error response.
func ResponseSyntaxError(message string) Response {
	return Response{Code: CodeSyntaxError, EnhancedCode: "5.5.2", Message: message}
}

// ResponseCommandNotImplemented creates a 502 command not implemented response.
func ResponseCommandNotImplemented(command string) Response {
	return Response{Code: CodeCommandNotImplemented, Message: command + " not implemented"}
}

// ResponseTransactionFailed creates a 554 transaction failed response.
func ResponseTransactionFailed(message string) Response {
	return Response{Code: CodeTransactionFailed, EnhancedCode: "5.6.0", Message: message}
}

// ResponseExceededStorage creates a 552 exceeded storage response.
func ResponseExceededStorage(message string) Response {
	return Response{Code: CodeExceededStorage, EnhancedCode: "5.3.4", Message: message}
}

// ResponseInternalError is the fixed response substituted for any error
// outcome that does not carry a failure-classified Response of its own.
func ResponseInternalError() Response {
	return Response{Code: CodeLocalError, EnhancedCode: "4.3.0", Message: "Internal error"}
}

// ResponseError carries a Response through an error return. Handlers and
// pipelines return it when they want a specific reply on the wire instead of
// the generic failure mapping.
type ResponseError struct {
	Response Response
}

// Fail wraps resp in a ResponseError.
func Fail(resp Response) error {
	return &ResponseError{Response: resp}
}

func (e *ResponseError) Error() string {
	return e.Response.String()
}

// responseForError converts an error from a pipeline operation into the
// failure Response reported to the client. A ResponseError carrying a
// failure-classified Response is passed through; a ResponseError whose
// Response claims success is illegal on an error path and is replaced by the
// fixed internal-error Response, as is any plain error.
func responseForError(err error) Response {
	var re *ResponseError
	if errors.As(err, &re) {
		if re.Response.IsError() {
			return re.Response
		}
		return ResponseInternalError()
	}
	return ResponseInternalError()
}
