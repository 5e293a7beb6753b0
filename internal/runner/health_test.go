package runner

import (
	"bytes"
	"io"
	"testing"
)

func TestHealthWriter_Patterns(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"SSL: CERTIFICATE_VERIFY_FAILED certificate verify failed", "TLS verification failed"},
		{"error: SSL certificate problem: certificate has expired", "TLS certificate expired"},
		{"httpcore.ConnectError: [Errno 111] Connection refused", "connection refused"},
		{"openai.APIConnectionError: Connection error.", "model endpoint unreachable"},
		{"[Errno -2] Name or service not known", "DNS resolution failed"},
		{"page.goto: net::ERR_NAME_NOT_RESOLVED at https://nope.invalid", "target site DNS resolution failed"},
		{"openai.APITimeoutError: Request timed out.", "model endpoint timed out"},
	}
	for _, tc := range cases {
		hw := newHealthWriter(io.Discard)
		_, _ = hw.Write([]byte(tc.input))
		if !hw.Detected() {
			t.Errorf("%q: expected detection", tc.input)
			continue
		}
		if hw.Reason() != tc.want {
			t.Errorf("%q: reason %q, want %q", tc.input, hw.Reason(), tc.want)
		}
	}
}

func TestHealthWriter_NoFalsePositive(t *testing.T) {
	hw := newHealthWriter(io.Discard)
	_, _ = hw.Write([]byte("--- Step 1/30 ---\nTask finished successfully.\n"))
	if hw.Detected() {
		t.Errorf("unexpected detection: %q", hw.Reason())
	}
}

func TestHealthWriter_FirstReasonSticks(t *testing.T) {
	hw := newHealthWriter(io.Discard)
	_, _ = hw.Write([]byte("Connection refused"))
	_, _ = hw.Write([]byte("Name or service not known"))
	if hw.Reason() != "connection refused" {
		t.Errorf("reason changed after first detection: %q", hw.Reason())
	}
}

func TestHealthWriter_Passthrough(t *testing.T) {
	var buf bytes.Buffer
	hw := newHealthWriter(&buf)
	_, _ = hw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("expected passthrough, got %q", buf.String())
	}
}
