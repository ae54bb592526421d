package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
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
		{code: CodeInvalidTransition, status: http.StatusUnprocessableEntity, publicMsg: "status transition not allowed", detailsOK: true},
		{code: CodePreconditionFailed, status: http.StatusPreconditionFailed, publicMsg: "required data missing", detailsOK: true},
		{code: CodeConcurrentModification, status: http.StatusConflict, publicMsg: "order changed concurrently, please retry", retryable: true},
		{code: CodePartialSettlement, status: http.StatusUnprocessableEntity, publicMsg: "transfer proof required for every seller", detailsOK: true},
		{code: CodeAlreadySettled, status: http.StatusConflict, publicMsg: "order already settled"},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "too many requests", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
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
	wrapped := Wrap(CodeConcurrentModification, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConcurrentModification {
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
	typed := New(CodeAlreadySettled, "settled")
	wrapped := fmt.Errorf("record transfer: %w", typed)
	if !IsCode(wrapped, CodeAlreadySettled) {
		t.Fatalf("expected wrapped error to carry %s", CodeAlreadySettled)
	}
	if IsCode(stdErrors.New("plain"), CodeAlreadySettled) {
		t.Fatal("plain errors must not match typed codes")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatal("untyped errors should map to internal")
	}
	if IsCode(nil, CodeInternal) {
		t.Fatal("nil error must not match any code")
	}
}

func TestDumpCapturesChainAndRetryable(t *testing.T) {
	cause := stdErrors.New("row version mismatch")
	err := Wrap(CodeConcurrentModification, cause, "update order")

	dump := Dump(err)
	if dump.Code != CodeConcurrentModification {
		t.Fatalf("unexpected code %s", dump.Code)
	}
	if !dump.Retryable {
		t.Fatal("concurrent modification should be retryable")
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected 2 chain entries, got %d", len(dump.Chain))
	}
	if dump.Postgres != nil {
		t.Fatal("no postgres detail expected")
	}
	if Dump(nil).Message != "" {
		t.Fatal("dump of nil should be empty")
	}
}

func TestDumpExtractsPostgresDetail(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_seller_settlements_order_seller", TableName: "seller_settlements"}
	err := Wrap(CodeAlreadySettled, fmt.Errorf("insert settlement: %w", pgErr), "settlement already recorded")

	fields := Dump(err).Fields()
	if fields["pg_code"] != "23505" || fields["pg_constraint"] != "ux_seller_settlements_order_seller" {
		t.Fatalf("unexpected pg fields: %v", fields)
	}
	if fields["error_code"] != CodeAlreadySettled {
		t.Fatalf("unexpected error_code %v", fields["error_code"])
	}
}
