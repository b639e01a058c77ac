package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodeSessionCreation, status: http.StatusUnprocessableEntity, publicMsg: "checkout session could not be created", detailsOK: true},
		{code: CodeUntrustedEvent, status: http.StatusBadRequest, publicMsg: "event could not be verified"},
		{code: CodeInvalidMetadata, status: http.StatusUnprocessableEntity, publicMsg: "session metadata is invalid", detailsOK: true},
		{code: CodePersistence, status: http.StatusInternalServerError, publicMsg: "failed to persist booking", retryable: true},
		{code: CodeNotification, status: http.StatusInternalServerError, publicMsg: "notification delivery failed", retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeFollowsWrappedChain(t *testing.T) {
	inner := New(CodeUntrustedEvent, "bad signature")
	outer := fmt.Errorf("handler: %w", inner)
	if !IsCode(outer, CodeUntrustedEvent) {
		t.Fatalf("expected wrapped code to be detected")
	}
	if IsCode(outer, CodeValidation) {
		t.Fatalf("unexpected code match")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestFormattedConstructors(t *testing.T) {
	err := Newf(CodeStateConflict, "booking is %s", "cancelled")
	if err.Message() != "booking is cancelled" {
		t.Fatalf("unexpected message %q", err.Message())
	}

	cause := stdErrors.New("stripe timeout")
	wrapped := Wrapf(CodeSessionCreation, cause, "create session for %d items", 2)
	if wrapped.Message() != "create session for 2 items" {
		t.Fatalf("unexpected message %q", wrapped.Message())
	}
	if got := wrapped.Error(); got != "SESSION_CREATION_FAILED: create session for 2 items: stripe timeout" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestWithDetailMergesIntoMap(t *testing.T) {
	err := New(CodeValidation, "bad line").WithDetail("item", 1).WithDetail("field", "quantity")
	details, ok := err.Details().(map[string]any)
	if !ok || details["item"] != 1 || details["field"] != "quantity" {
		t.Fatalf("unexpected details %#v", err.Details())
	}

	replaced := New(CodeValidation, "x").WithDetails("raw").WithDetail("k", "v")
	if d, ok := replaced.Details().(map[string]any); !ok || len(d) != 1 {
		t.Fatalf("expected non-map details replaced, got %#v", replaced.Details())
	}

	var nilErr *Error
	if nilErr.WithDetail("k", "v") != nil {
		t.Fatal("nil receiver should stay nil")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{stdErrors.New("plain"), true},
		{New(CodeInvalidMetadata, "bad"), false},
		{fmt.Errorf("materialize: %w", New(CodePersistence, "insert failed")), true},
		{New(CodeSessionCreation, "rejected"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
