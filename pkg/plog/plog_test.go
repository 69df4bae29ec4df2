package plog

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	var logBuf bytes.Buffer
	log := New(&logBuf, &logBuf, LevelInfo)

	t.Run("Logs all levels when level is Debug", func(t *testing.T) {
		logBuf.Reset()
		log.SetLevel(LevelDebug)

		log.Debug("debug message", "key", "val1")
		log.Info("info message", "key", "val2")
		log.Warn("warn message")

		output := logBuf.String()

		if !strings.Contains(output, "level=DEBUG msg=\"debug message\" key=val1") {
			t.Errorf("expected debug message to be logged, but it wasn't. Got: %s", output)
		}
		if !strings.Contains(output, "level=INFO msg=\"info message\" key=val2") {
			t.Errorf("expected info message to be logged, but it wasn't. Got: %s", output)
		}
		if !strings.Contains(output, "level=WARN msg=\"warn message\"") {
			t.Errorf("expected warn message to be logged, but it wasn't. Got: %s", output)
		}
	})

	t.Run("Suppresses lower levels when level is Warn", func(t *testing.T) {
		logBuf.Reset()
		log.SetLevel(LevelWarn)

		log.Debug("debug message")
		log.Info("info message")

		output := logBuf.String()

		if strings.Contains(output, "level=DEBUG") || strings.Contains(output, "level=INFO") {
			t.Errorf("expected no debug or info output at warn level, but got: %s", output)
		}
	})

	t.Run("Logs Notice and above, but suppresses Debug", func(t *testing.T) {
		logBuf.Reset()
		log.SetLevel(LevelNotice)

		log.Debug("debug message")
		log.Notice("notice message", "key", "val1")
		log.Info("info message", "key", "val2")

		output := logBuf.String()

		if strings.Contains(output, "level=DEBUG msg=\"debug message\"") {
			t.Errorf("expected debug message to be suppressed at notice level, but it was logged. Got: %s", output)
		}
		if !strings.Contains(output, "level=NOTICE msg=\"notice message\" key=val1") {
			t.Errorf("expected notice message to be logged, but it wasn't. Got: %s", output)
		}
		if !strings.Contains(output, "level=INFO msg=\"info message\" key=val2") {
			t.Errorf("expected info message to be logged, but it wasn't. Got: %s", output)
		}
	})
}

func TestLevelDispatch(t *testing.T) {
	var stdout, stderr bytes.Buffer
	log := New(&stdout, &stderr, LevelInfo)

	log.Info("to stdout")
	log.Warn("to stderr")
	log.Error("also stderr")

	if !strings.Contains(stdout.String(), "to stdout") || strings.Contains(stdout.String(), "stderr") {
		t.Errorf("unexpected stdout content: %s", stdout.String())
	}
	if !strings.Contains(stderr.String(), "to stderr") || !strings.Contains(stderr.String(), "also stderr") {
		t.Errorf("unexpected stderr content: %s", stderr.String())
	}

	t.Run("Quiet mode keeps warnings", func(t *testing.T) {
		stdout.Reset()
		stderr.Reset()
		log.SetQuiet(true)
		log.Info("hidden")
		log.Warn("visible")
		if stdout.Len() != 0 {
			t.Errorf("expected no stdout output in quiet mode, got: %s", stdout.String())
		}
		if !strings.Contains(stderr.String(), "visible") {
			t.Errorf("expected warning on stderr in quiet mode, got: %s", stderr.String())
		}
	})
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"debug", "debug", false},
		{"NOTICE", "notice", false},
		{" info ", "info", false},
		{"warn", "warn", false},
		{"error", "error", false},
		{"verbose", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseLevel(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if !tc.wantErr && LevelName(got) != tc.want {
				t.Errorf("ParseLevel(%q) = %s, want %s", tc.input, LevelName(got), tc.want)
			}
		})
	}
}

func TestCountsAndSummary(t *testing.T) {
	var logBuf bytes.Buffer
	log := New(&logBuf, &logBuf, LevelInfo)

	log.Info("nothing to see")
	log.Warn("first warning")
	log.With("component", "sync").Warn("second warning")
	log.Error("an error")

	w, e := log.Counts()
	if w != 2 || e != 1 {
		t.Fatalf("expected 2 warnings and 1 error, got %d and %d", w, e)
	}

	logBuf.Reset()
	log.Summary("Backup terminated successfully")
	if w2, e2 := log.Counts(); w2 != w || e2 != e {
		t.Errorf("Summary must not change the counters, got %d/%d", w2, e2)
	}

	output := logBuf.String()
	for _, want := range []string{
		"The following ERRORS were encountered",
		"an error",
		"The following WARNINGS were encountered",
		"first warning",
		"second warning",
		"Backup terminated successfully, 2 warnings and 1 errors.",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("summary output missing %q, got: %s", want, output)
		}
	}
}

func TestDiscardStillCounts(t *testing.T) {
	log := Discard()
	log.Warn("w")
	log.Error("e")
	if w, e := log.Counts(); w != 1 || e != 1 {
		t.Errorf("expected 1 warning and 1 error, got %d and %d", w, e)
	}
}

func TestAttachRunLog(t *testing.T) {
	var logBuf bytes.Buffer
	log := New(&logBuf, &logBuf, LevelInfo)

	path := filepath.Join(t.TempDir(), "2024-01-01_10:00:00.log")

	detach, err := log.AttachRunLog(path, 10)
	if err != nil {
		t.Fatalf("AttachRunLog failed: %v", err)
	}
	log.With("run", "r1").Info("into both", "k", "v")
	if err := detach(); err != nil {
		t.Fatalf("detach failed: %v", err)
	}
	log.Info("console only")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read run log: %v", err)
	}
	if !strings.Contains(string(data), "msg=\"into both\" run=r1 k=v") {
		t.Errorf("run log missing record, got: %s", data)
	}
	if strings.Contains(string(data), "console only") {
		t.Errorf("run log received a record after detach: %s", data)
	}
	if !strings.Contains(logBuf.String(), "into both") {
		t.Errorf("console missing record, got: %s", logBuf.String())
	}

	t.Run("Refuses existing file", func(t *testing.T) {
		_, err := log.AttachRunLog(path, 10)
		if !errors.Is(err, ErrRunLogExists) {
			t.Errorf("expected ErrRunLogExists, got %v", err)
		}
	})
}
