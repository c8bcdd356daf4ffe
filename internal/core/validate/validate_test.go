package validate

import (
	"errors"
	"testing"

	"github.com/hay-kot/parley/internal/core/chat"
)

func TestUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid name", "alice", false},
		{"valid hostname style", "lab-pc.local", false},
		{"empty string", "", true},
		{"only spaces", "   ", true},
		{"inner space", "bob smith", true},
		{"only tabs", "\t\t", true},
		{"broadcast sentinel", "all", true},
		{"too long", string(make([]byte, 65)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Username(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Username(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"ipv4", "10.0.0.2:5000", false},
		{"hostname", "bob.lan:8080", false},
		{"ipv6", "[::1]:5000", false},
		{"missing port", "10.0.0.2", true},
		{"missing host", ":5000", true},
		{"port zero", "10.0.0.2:0", true},
		{"port too large", "10.0.0.2:70000", true},
		{"named port", "10.0.0.2:http", true},
		{"url", "http://10.0.0.2:5000", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Address(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Address(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, chat.ErrInvalidAddress) {
				t.Errorf("Address(%q) error = %v, want ErrInvalidAddress", tt.input, err)
			}
		})
	}
}

func TestListenAddress(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{":5000", false},
		{"0.0.0.0:5000", false},
		{"127.0.0.1:0", false},
		{"5000", true},
		{":port", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ListenAddress(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ListenAddress(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
