package errors

import "testing"

func TestSentinelWrapping(t *testing.T) {
	err := Wrap(ErrNotFound, "canvas abc")
	if !IsNotFound(err) {
		t.Errorf("wrapped ErrNotFound not detected by IsNotFound")
	}
	if IsLocked(err) {
		t.Errorf("ErrNotFound wrongly detected as ErrLocked")
	}

	err = Wrapf(ErrLocked, "shape %s", "shape-1")
	if !IsLocked(err) {
		t.Errorf("wrapped ErrLocked not detected by IsLocked")
	}

	if !Is(Wrap(ErrBatchTooLarge, "got 150"), ErrBatchTooLarge) {
		t.Errorf("wrapped ErrBatchTooLarge lost its identity")
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("shape %s", "shape-1")
	if !IsNotFound(err) {
		t.Errorf("NewNotFoundError result not detected by IsNotFound")
	}

	err = NewInvalidRequestError("bad field %q", "x")
	if !IsInvalidRequest(err) {
		t.Errorf("NewInvalidRequestError result not detected by IsInvalidRequest")
	}
}
