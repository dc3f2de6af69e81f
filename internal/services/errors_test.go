package services_test

import (
	"errors"
	"strings"
	"testing"

	"mediaforge/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrProcessing, "engine", "transform", "ffmpeg exited", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrProcessing) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"engine", "transform", "ffmpeg exited"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindMapping(t *testing.T) {
	cases := []struct {
		err  error
		want services.ErrorKind
	}{
		{nil, services.KindNone},
		{services.Wrap(services.ErrValidation, "command", "quality", "bad tier", nil), services.KindValidation},
		{services.Wrap(services.ErrNotFound, "store", "get asset", "", nil), services.KindNotFound},
		{services.Wrap(services.ErrPrecondition, "worker", "resolve", "not ingested", nil), services.KindPrecondition},
		{services.Wrap(services.ErrProcessing, "engine", "transform", "", services.ErrTimeout), services.KindTimeout},
		{services.Wrap(services.ErrPersistence, "store", "update", "", nil), services.KindPersistence},
		{errors.New("plain"), services.KindUnknown},
	}
	for _, tc := range cases {
		if got := services.Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestFailureMessageCollapsesTimeout(t *testing.T) {
	err := services.Wrap(services.ErrProcessing, "engine", "transform", "deadline", services.ErrTimeout)
	if got := services.FailureMessage(err); got != "timeout" {
		t.Fatalf("expected timeout message, got %q", got)
	}
	plain := services.Wrap(services.ErrProcessing, "engine", "transform", "exit status 1", nil)
	if got := services.FailureMessage(plain); !strings.Contains(got, "exit status 1") {
		t.Fatalf("expected diagnostic preserved, got %q", got)
	}
}
