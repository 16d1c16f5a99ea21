package push

import (
	"errors"
	"fmt"
	"testing"

	logx "nutripush/pkg/logx"
)

func TestIsGone(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"410", &SendError{StatusCode: 410}, true},
		{"404", &SendError{StatusCode: 404}, true},
		{"wrapped 410", fmt.Errorf("send: %w", &SendError{StatusCode: 410}), true},
		{"429", &SendError{StatusCode: 429}, false},
		{"500", &SendError{StatusCode: 500}, false},
		{"plain error", errors.New("dial tcp: timeout"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := IsGone(tt.err); got != tt.want {
				t.Fatalf("IsGone(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSendErrorMessage(t *testing.T) {
	t.Parallel()
	e := &SendError{StatusCode: 410}
	if e.Error() != "push service returned 410" {
		t.Fatalf("got %q", e.Error())
	}
	e = &SendError{StatusCode: 400, Body: "bad subscription"}
	if e.Error() != "push service returned 400: bad subscription" {
		t.Fatalf("got %q", e.Error())
	}
}

func TestCredentialsConfigured(t *testing.T) {
	t.Parallel()
	if (Credentials{}).Configured() {
		t.Fatal("empty credentials should not be configured")
	}
	if (Credentials{VAPIDPublicKey: "pub"}).Configured() {
		t.Fatal("private key is required")
	}
	c := Credentials{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"}
	if !c.Configured() {
		t.Fatal("both keys present should be configured")
	}
}

func TestNewWebPushRequiresKeys(t *testing.T) {
	t.Parallel()
	if _, err := NewWebPush(Config{}, Credentials{}, logx.Nop()); err == nil {
		t.Fatal("missing keys should error")
	}
}
