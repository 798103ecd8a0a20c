package firestore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{codes.NotFound, true, false, false},
		{codes.AlreadyExists, false, true, false},
		{codes.FailedPrecondition, false, true, false},
		{codes.Aborted, false, true, false},
		{codes.Unavailable, false, false, true},
		{codes.ResourceExhausted, false, false, true},
		{codes.PermissionDenied, false, false, false},
	}

	for _, tc := range cases {
		err := WrapError("products.get", status.Error(tc.code, "boom"))
		var repoErr *Error
		if !errors.As(err, &repoErr) {
			t.Fatalf("%s: expected *Error, got %T", tc.code, err)
		}
		if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
			t.Fatalf("%s: unexpected classification nf=%v c=%v u=%v", tc.code, repoErr.IsNotFound(), repoErr.IsConflict(), repoErr.IsUnavailable())
		}
	}
}

func TestWrapErrorPassesThroughCancellation(t *testing.T) {
	if err := WrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.DeadlineExceeded, "slow")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestWrapErrorKeepsExistingOperation(t *testing.T) {
	inner := NotFound("cart_items.get", "row")
	err := WrapError("transaction", fmt.Errorf("checkout: %w", inner))
	var repoErr *Error
	if !errors.As(err, &repoErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if repoErr.op != "cart_items.get" {
		t.Fatalf("expected original op, got %q", repoErr.op)
	}
	if !repoErr.IsNotFound() {
		t.Fatal("expected not found classification")
	}
}

func TestConflictHelper(t *testing.T) {
	err := Conflict("orders.place", errors.New("out of stock"))
	var repoErr *Error
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if err.Error() != "orders.place: out of stock" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(status.Error(codes.NotFound, "missing")) {
		t.Fatal("expected raw NotFound status to match")
	}
	if !IsNotFound(fmt.Errorf("wrapped: %w", NotFound("profiles.get", "profile"))) {
		t.Fatal("expected wrapped repository error to match")
	}
	if IsNotFound(errors.New("boom")) || IsNotFound(nil) {
		t.Fatal("unexpected match")
	}
}
