package cache

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestNewRedisCacheRequiresAddr(t *testing.T) {
	if _, err := NewRedisCache(context.Background(), RedisConfig{}); err == nil {
		t.Error("NewRedisCache without address should fail")
	}
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	// Grab a free port and close it so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := NewRedisCache(ctx, RedisConfig{Addr: addr}); err == nil {
		t.Error("NewRedisCache against a closed port should fail")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"timeout", timeoutErr{}, true},
		{"eof", io.EOF, true},
		{"other", errors.New("WRONGTYPE"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if IsRetryable(got) != tt.retryable {
				t.Errorf("classify(%v) retryable = %v, want %v", tt.err, IsRetryable(got), tt.retryable)
			}
			if tt.retryable && !errors.Is(got, ErrNetwork) {
				t.Errorf("classify(%v) should wrap ErrNetwork", tt.err)
			}
		})
	}
}
