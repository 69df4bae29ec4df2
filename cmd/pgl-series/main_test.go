package main

import (
	"context"
	"io"
	"testing"

	"github.com/paulschiretz/pgl-series/pkg/flagparse"
	"github.com/paulschiretz/pgl-series/pkg/plog"
	"github.com/paulschiretz/pgl-series/pkg/runerr"
)

func TestRun(t *testing.T) {
	orig := flagparse.UsageOutput
	flagparse.UsageOutput = io.Discard
	t.Cleanup(func() { flagparse.UsageOutput = orig })

	tests := []struct {
		name      string
		args      []string
		expectErr bool
		kind      runerr.Kind
	}{
		{name: "No Args Prints Usage", args: nil},
		{name: "Help", args: []string{"help"}},
		{name: "Subcommand Help", args: []string{"backup", "--help"}},
		{name: "Version", args: []string{"version"}},
		{name: "Unknown Command", args: []string{"restore"}, expectErr: true},
		{name: "Unknown Flag", args: []string{"backup", "--mode=snapshot"}, expectErr: true},
		{name: "Backup Without Destination", args: []string{"backup", "-s", "/srv"}, expectErr: true, kind: runerr.InvalidRequest},
		{name: "Status Without Destination", args: []string{"status"}, expectErr: true, kind: runerr.InvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), plog.Discard(), tt.args)
			if tt.expectErr {
				if err == nil {
					t.Fatal("expected an error, got nil")
				}
				if tt.kind != runerr.KindUnknown && !runerr.Is(err, tt.kind) {
					t.Errorf("expected %v, got %v", tt.kind, err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
