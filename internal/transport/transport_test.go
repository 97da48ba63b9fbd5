package transport

import (
	"context"
	"testing"
)

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got != Unknown {
		t.Errorf("untagged = %s, want %s", got, Unknown)
	}
	ctx := NewContext(context.Background(), WebSocket)
	if got := FromContext(ctx); got != WebSocket {
		t.Errorf("tagged = %s, want %s", got, WebSocket)
	}
}

func TestRemote(t *testing.T) {
	tests := []struct {
		t    Transport
		want bool
	}{
		{Unix, false},
		{WebSocket, true},
		{Unknown, false},
	}
	for _, tt := range tests {
		if got := tt.t.Remote(); got != tt.want {
			t.Errorf("%s.Remote() = %v, want %v", tt.t, got, tt.want)
		}
	}
	if got := Transport("").String(); got != "unknown" {
		t.Errorf("zero value String() = %q, want unknown", got)
	}
}
