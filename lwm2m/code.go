package lwm2m

import "strings"

// Code is a two-part CoAP-style response code carried on every correlated
// uplink message, e.g. "2.05".
type Code string

// Response codes used by the EMQx LwM2M gateway.
const (
	CodeCreated                  Code = "2.01"
	CodeDeleted                  Code = "2.02"
	CodeValid                    Code = "2.03"
	CodeChanged                  Code = "2.04"
	CodeContent                  Code = "2.05"
	CodeBadRequest               Code = "4.00"
	CodeUnauthorized             Code = "4.01"
	CodeBadOption                Code = "4.02"
	CodeForbidden                Code = "4.03"
	CodeNotFound                 Code = "4.04"
	CodeMethodNotAllowed         Code = "4.05"
	CodeNotAcceptable            Code = "4.06"
	CodePreconditionFailed       Code = "4.12"
	CodeRequestEntityTooLarge    Code = "4.13"
	CodeUnsupportedContentFormat Code = "4.15"
	CodeInternalServerError      Code = "5.00"
	CodeNotImplemented           Code = "5.01"
	CodeBadGateway               Code = "5.02"
	CodeServiceUnavailable       Code = "5.03"
	CodeGatewayTimeout           Code = "5.04"
	CodeProxyingNotSupported     Code = "5.05"
)

var codeNames = map[Code]string{
	CodeCreated:                  "created",
	CodeDeleted:                  "deleted",
	CodeValid:                    "valid",
	CodeChanged:                  "changed",
	CodeContent:                  "content",
	CodeBadRequest:               "bad_request",
	CodeUnauthorized:             "unauthorized",
	CodeBadOption:                "bad_option",
	CodeForbidden:                "forbidden",
	CodeNotFound:                 "not_found",
	CodeMethodNotAllowed:         "method_not_allowed",
	CodeNotAcceptable:            "not_acceptable",
	CodePreconditionFailed:       "precondition_failed",
	CodeRequestEntityTooLarge:    "request_entity_too_large",
	CodeUnsupportedContentFormat: "unsupported_content_format",
	CodeInternalServerError:      "internal_server_error",
	CodeNotImplemented:           "not_implemented",
	CodeBadGateway:               "bad_gateway",
	CodeServiceUnavailable:       "service_unavailable",
	CodeGatewayTimeout:           "gateway_timeout",
	CodeProxyingNotSupported:     "proxying_not_supported",
}

// Success reports whether the code is in the 2.xx class.
func (c Code) Success() bool {
	return strings.HasPrefix(string(c), "2.")
}

// Name returns the lower-case symbolic name (the wire codeMsg), or the
// code itself when unknown.
func (c Code) Name() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return string(c)
}

// String returns "code (name)", e.g. "4.04 (not_found)".
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return string(c) + " (" + name + ")"
	}
	return string(c)
}
