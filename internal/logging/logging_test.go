package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "info", want: LevelInfo},
		{in: "warn", want: LevelWarn},
		{in: "warning", want: LevelWarn},
		{in: "ERROR", want: LevelError},
		{in: "verbose", want: LevelInfo, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	SetLevel(LevelWarn)
	defer SetLevel(LevelInfo)

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below level leaked into output: %q", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("expected warn and error messages in output: %q", out)
	}
}

func TestLogFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	SetLevel(LevelInfo)

	Info("processing %d rows", 42)

	out := buf.String()
	if !strings.Contains(out, "[INFO] processing 42 rows") {
		t.Errorf("unexpected log line: %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("log line missing trailing newline")
	}
}
