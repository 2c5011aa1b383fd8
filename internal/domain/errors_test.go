package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestAsError(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("handler: %w", ErrProductsNotFound)

	domainErr, ok := AsError(wrapped)
	if !ok {
		t.Fatal("expected to extract domain error from wrapped chain")
	}
	if domainErr.Status != 404 || domainErr.Message != "Products not found" {
		t.Errorf("unexpected error contents: %+v", domainErr)
	}

	if _, ok := AsError(errors.New("plain")); ok {
		t.Error("plain error must not be recognized as domain error")
	}
}

func TestNewOrderNotFound_MessageContainsID(t *testing.T) {
	t.Parallel()

	err := NewOrderNotFound("3c2d9f6a")
	if err.Status != 404 {
		t.Errorf("expected status 404, got %d", err.Status)
	}
	if err.Message != "Order with id #3c2d9f6a not found" {
		t.Errorf("unexpected message: %s", err.Message)
	}
}

func TestNewValidationError(t *testing.T) {
	t.Parallel()

	err := NewValidationError("page must be a positive number")
	if err.Status != 400 {
		t.Errorf("expected status 400, got %d", err.Status)
	}
	if err.Error() != "page must be a positive number" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{ErrOrderNotFound, true},
		{fmt.Errorf("load: %w", ErrOrderNotFound), true},
		{NewOrderNotFound("abc"), true},
		{ErrProductsNotFound, true},
		{NewValidationError("bad input"), false},
		{errors.New("boom"), false},
	}

	for _, tc := range cases {
		if got := IsNotFound(tc.err); got != tc.want {
			t.Errorf("IsNotFound(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
