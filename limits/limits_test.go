package limits

import (
	"errors"
	"strings"
	"testing"
)

// TestDerivedLimits verifies the derived constants stay consistent
func TestDerivedLimits(t *testing.T) {
	if MaxDatagramPayload != MaxDatagramSize-HeaderSize {
		t.Errorf("MaxDatagramPayload = %d, want %d", MaxDatagramPayload, MaxDatagramSize-HeaderSize)
	}
	if MaxReadBuffer < MaxDatagramSize {
		t.Errorf("MaxReadBuffer %d smaller than MaxDatagramSize %d", MaxReadBuffer, MaxDatagramSize)
	}
}

func TestValidateEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr error
	}{
		{"empty", 0, ErrMessageEmpty},
		{"one byte", 1, nil},
		{"at limit", MaxDatagramPayload, nil},
		{"over limit", MaxDatagramPayload + 1, ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEnvelope(make([]byte, tt.size))
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateDatagram(t *testing.T) {
	if err := ValidateDatagram(make([]byte, MaxDatagramSize)); err != nil {
		t.Errorf("datagram at limit rejected: %v", err)
	}
	if err := ValidateDatagram(make([]byte, MaxDatagramSize+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestValidateKindID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{"empty", "", ErrKindIDEmpty},
		{"short", "echo", nil},
		{"at limit", strings.Repeat("k", MaxKindIDLength), nil},
		{"too long", strings.Repeat("k", MaxKindIDLength+1), ErrKindIDTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKindID(tt.id)
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateMessageSizeContext(t *testing.T) {
	err := ValidateMessageSize(make([]byte, 20), 10)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "size 20 exceeds limit 10") {
		t.Errorf("error lacks size context: %v", err)
	}
}
