// Package errors provides coded, structured errors shared across kioku packages.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"
	CodeConfigModalityNotFound     Code = "config.modality.not_found"

	CodeCacheEmbeddingSizeMismatch Code = "cache.embedding.size_mismatch"
	CodeCacheRecordEncodeFailure   Code = "cache.record.encode.failure"
	CodeCacheEmbeddingInvalid      Code = "cache.embedding.invalid_value"

	CodeIndexPointDimensionMismatch Code = "index.point.dimension_mismatch"
	CodeIndexPointInvalid           Code = "index.point.invalid_value"
	CodeIndexCapacityExceeded       Code = "index.capacity.exceeded"
	CodeIndexResizeInvalid          Code = "index.resize.invalid_value"
	CodeIndexTypeUnsupported        Code = "index.type.unsupported"

	CodeStoreRecordDecodeFailure Code = "store.record.decode.failure"
	CodeStoreBackendUnsupported  Code = "store.backend.unsupported"
	CodeStoreConnectFailure      Code = "store.connect.failure"
	CodeStoreDatabaseFailure     Code = "store.database.failure"

	CodeProviderRequestInvalid     Code = "provider.request.invalid"
	CodeProviderRequestUnsupported Code = "provider.request.unsupported"
	CodeProviderResponseInvalid    Code = "provider.response.invalid"
	CodeProviderUpstreamFailure    Code = "provider.upstream.failure"
	CodeProviderUnavailable        Code = "provider.breaker.unavailable"
	CodeProviderKindUnsupported    Code = "provider.kind.unsupported"

	CodeQueryInputInvalid  Code = "query.input.invalid"
	CodeQueryPolicyInvalid Code = "query.policy.invalid_value"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerStartFailure    Code = "server.start.failure"

	CodeCLIRequestFailure  Code = "cli.request.failure"
	CodeCLIResponseInvalid Code = "cli.response.invalid"
	CodeCLIInputInvalid    Code = "cli.input.invalid"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldModality(value string) Attr {
	return Field("modality", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

// IsSizeMismatch reports whether err rejected an embedding or vector of the wrong length.
func IsSizeMismatch(err error) bool {
	r := reason(CodeOf(err))
	return r == "size_mismatch" || r == "dimension_mismatch"
}

// IsConfiguration reports whether err came from configuration loading, validation or modality lookup.
func IsConfiguration(err error) bool {
	return strings.HasPrefix(string(CodeOf(err)), "config.")
}

func IsUnsupported(err error) bool {
	return reason(CodeOf(err)) == "unsupported"
}

func IsUnavailable(err error) bool {
	return reason(CodeOf(err)) == "unavailable"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err), IsSizeMismatch(err):
		return http.StatusBadRequest
	case IsUnsupported(err):
		return http.StatusNotImplemented
	case IsUnavailable(err):
		return http.StatusServiceUnavailable
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return oops.Code(CodeServerInternalFailure).Wrap(joined)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
