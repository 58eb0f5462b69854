package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConvertStrToInt(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    uint64
		wantErr bool
	}{
		{name: "decimal", in: "4096", want: 4096},
		{name: "hex", in: "0x1000", want: 0x1000},
		{name: "hex upper", in: "0X400000", want: 0x400000},
		{name: "bare hex digits", in: "ff", want: 0xff},
		{name: "max", in: "0xffffffffffffffff", want: ^uint64(0)},
		{name: "garbage", in: "wheel", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertStrToInt(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ConvertStrToInt(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ConvertStrToInt(%q) = %#x, want %#x", tt.in, got, tt.want)
			}
		})
	}
}

func TestRetry(t *testing.T) {
	errTransient := errors.New("transient")

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 3, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Retry() error = %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("runs out of attempts", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 2, 0, func() error {
			calls++
			return errTransient
		})
		if !errors.Is(err, errTransient) {
			t.Fatalf("Retry() error = %v, want %v", err, errTransient)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("stop is not retried", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 5, time.Millisecond, func() error {
			calls++
			return Stop(errTransient)
		})
		if err != errTransient {
			t.Fatalf("Retry() error = %v, want the unwrapped error", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Retry(ctx, 5, time.Hour, func() error { return errTransient })
		if !errors.Is(err, errTransient) {
			t.Fatalf("Retry() error = %v", err)
		}
	})

	if Stop(nil) != nil {
		t.Error("Stop(nil) should be nil")
	}
}
