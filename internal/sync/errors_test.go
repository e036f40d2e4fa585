package sync

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind_String(t *testing.T) {
	tests := map[string]struct {
		kind Kind
		want string
	}{
		"config":  {kind: KindConfig, want: "config"},
		"auth":    {kind: KindAuth, want: "auth"},
		"api":     {kind: KindAPI, want: "api"},
		"apply":   {kind: KindApply, want: "apply"},
		"unknown": {kind: Kind(99), want: "unknown"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", newError(KindApply, "insert", "ev1", cause))

	if !IsKind(err, KindApply) {
		t.Error("IsKind(KindApply) = false, want true")
	}
	if IsKind(err, KindAuth) {
		t.Error("IsKind(KindAuth) = true, want false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(cause) = false, want true")
	}
	if IsDegraded(err) {
		t.Error("IsDegraded() = true, want false")
	}
	want := "wrapped: apply error during insert (ev1): boom"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	degraded := &Error{Kind: KindAPI, Op: "list events", Degraded: true}
	if !IsDegraded(degraded) {
		t.Error("IsDegraded() = false, want true")
	}
	if degraded.Error() != "api error during list events" {
		t.Errorf("Error() = %q", degraded.Error())
	}
	if IsKind(errors.New("plain"), KindAPI) {
		t.Error("IsKind(plain error) = true, want false")
	}
}
