package transcription

import (
	"errors"
	"testing"

	"github.com/adimov-eth/transcribe/internal/types"
)

// fakeRunner returns canned output per invocation
type fakeRunner struct {
	stdout string
	stderr string
	err    error
	calls  [][]string
}

func (f *fakeRunner) Run(name string, args ...string) (string, string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.stdout, f.stderr, f.err
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"2880.5\n", 2880.5, false},
		{"  123.000000  ", 123, false},
		{"0", 0, false},
		{"N/A", 0, true},
		{"", 0, true},
		{"-5.0", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := parseDuration(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseDuration(%q) expected error, got %v", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDuration(%q): %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestProbeDuration(t *testing.T) {
	probe := &MediaProbe{runner: &fakeRunner{stdout: "600.25\n"}}

	got, err := probe.Duration("/tmp/audio.mp3")
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if got != 600.25 {
		t.Errorf("Duration = %v, want 600.25", got)
	}
}

func TestProbeDurationToolFailure(t *testing.T) {
	probe := &MediaProbe{runner: &fakeRunner{err: errors.New("exit status 1"), stderr: "no such file"}}

	_, err := probe.Duration("/tmp/missing.mp3")
	if err == nil {
		t.Fatal("expected error")
	}
	if code := types.ErrorCode(err); code != types.CodeDuration {
		t.Errorf("error code = %q, want %q", code, types.CodeDuration)
	}
}

func TestProbePassesPathAsDiscreteArgument(t *testing.T) {
	runner := &fakeRunner{stdout: "1\n"}
	probe := &MediaProbe{runner: runner}

	path := `/tmp/weird name; $(rm -rf).mp3`
	if _, err := probe.Duration(path); err != nil {
		t.Fatalf("Duration: %v", err)
	}

	call := runner.calls[0]
	if call[len(call)-1] != path {
		t.Errorf("last argument = %q, want the raw path", call[len(call)-1])
	}
}
