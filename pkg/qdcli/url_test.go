package qdcli

import (
	"errors"
	"testing"
)

func TestParseDaemonURL(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantWS string
	}{
		{"http://127.0.0.1:3849", "http://127.0.0.1:3849", "ws://127.0.0.1:3849/jsonrpc/ws"},
		{"  localhost:8080 ", "http://localhost:8080", "ws://localhost:8080/jsonrpc/ws"},
		{"tcp://myserver", "http://myserver:3849", "ws://myserver:3849/jsonrpc/ws"},
		{"HTTPS://dl.example.com/", "https://dl.example.com:3849", "wss://dl.example.com:3849/jsonrpc/ws"},
		{"http://[::1]:9000", "http://[::1]:9000", "ws://[::1]:9000/jsonrpc/ws"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := ParseDaemonURL(tt.raw)
			if err != nil {
				t.Fatalf("ParseDaemonURL: %v", err)
			}
			if u.String() != tt.want {
				t.Errorf("String() = %q, want %q", u.String(), tt.want)
			}
			if u.WebSocket() != tt.wantWS {
				t.Errorf("WebSocket() = %q, want %q", u.WebSocket(), tt.wantWS)
			}
			if u.RPC() != tt.want+"/jsonrpc" {
				t.Errorf("RPC() = %q", u.RPC())
			}
		})
	}
}

func TestParseDaemonURL_Invalid(t *testing.T) {
	tests := []struct {
		raw  string
		want error
	}{
		{"", ErrEmptyURL},
		{"   ", ErrEmptyURL},
		{"unix:///tmp/queuedl.sock", ErrUnsupportedScheme},
		{"ftp://host:21", ErrUnsupportedScheme},
		{"http://host:70000", ErrInvalidURL},
		{"http://host:abc", ErrInvalidURL},
		{"http://host:3849/api", ErrInvalidURL},
		{"http://:3849", ErrInvalidURL},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, err := ParseDaemonURL(tt.raw)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
