package store

import (
	"context"
	"errors"
	"testing"
)

func TestSpecificErrorsWrapTheirKind(t *testing.T) {
	cases := []struct {
		err  error
		kind error
	}{
		{ErrSlotFull, ErrConflict},
		{ErrDuplicateBooking, ErrConflict},
		{ErrAlreadyCancelled, ErrConflict},
		{ErrNotPending, ErrConflict},
		{ErrPassNotActive, ErrConflict},
		{ErrCodeTaken, ErrConflict},
		{ErrBookingNotFound, ErrNotFound},
		{ErrPassNotFound, ErrNotFound},
		{ErrAmenityNotFound, ErrNotFound},
		{ErrSlotNotFound, ErrValidation},
		{ErrAmenityInactive, ErrValidation},
		{Validation("slot_name is required"), ErrValidation},
	}
	for _, tt := range cases {
		if !errors.Is(tt.err, tt.kind) {
			t.Fatalf("%v does not wrap %v", tt.err, tt.kind)
		}
	}
	if errors.Is(ErrSlotFull, ErrNotFound) {
		t.Fatalf("slot full must not be a not-found error")
	}
}

func TestTransientKeepsCause(t *testing.T) {
	err := Transient(context.DeadlineExceeded)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient kind")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cause to be preserved")
	}
	if Transient(nil) != nil {
		t.Fatalf("expected nil for nil cause")
	}
}
