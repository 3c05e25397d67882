// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"testing"

	"labkit/internal/pipeline"
	"labkit/internal/runtime"
	"labkit/pkg/chatops"
)

func TestPackageArg(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{"package field", `{"package":"bst"}`, "bst", false},
		{"args fallback", `{"args":["enclog","extra"]}`, "enclog", false},
		{"package wins over args", `{"package":"bst","args":["enclog"]}`, "bst", false},
		{"empty payload", "", "", true},
		{"no name anywhere", `{"args":[]}`, "", true},
		{"malformed payload", `{"package":`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := chatops.Command{Name: "install"}
			if tt.data != "" {
				cmd.Data = json.RawMessage(tt.data)
			}

			got, err := packageArg(cmd)
			if (err != nil) != tt.wantErr {
				t.Fatalf("packageArg() error = %v, wantErr %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("packageArg() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitListenAddr(t *testing.T) {
	t.Parallel()

	host, port, err := splitListenAddr("127.0.0.1:8080")
	if err != nil {
		t.Fatalf("splitListenAddr failed: %v", err)
	}
	if host != "127.0.0.1" || port != 8080 {
		t.Errorf("splitListenAddr() = %q, %d; want 127.0.0.1, 8080", host, port)
	}

	if _, _, err := splitListenAddr("no-port"); err == nil {
		t.Error("address without port should fail")
	}
	if _, _, err := splitListenAddr("127.0.0.1:http"); err == nil {
		t.Error("non-numeric port should fail")
	}
}

func TestOutcomeInfo(t *testing.T) {
	t.Parallel()

	ok := &pipeline.Outcome{Completed: []string{"provision", "dependencies", "package"}}
	info := outcomeInfo("bst", ok)
	if info["ok"] != true {
		t.Error("successful outcome should report ok=true")
	}
	if info["exit_code"] != 0 {
		t.Errorf("exit_code = %v, want 0", info["exit_code"])
	}
	if _, present := info["failed_stage"]; present {
		t.Error("successful outcome should not report a failed stage")
	}

	failed := &pipeline.Outcome{
		ExitCode:  runtime.ExitCode(3),
		Err:       &pipeline.StageError{Stage: "tests"},
		Completed: []string{"provision"},
	}
	info = outcomeInfo("bst", failed)
	if info["ok"] != false {
		t.Error("failed outcome should report ok=false")
	}
	if info["failed_stage"] != "tests" {
		t.Errorf("failed_stage = %v, want tests", info["failed_stage"])
	}
	if info["exit_code"] != 3 {
		t.Errorf("exit_code = %v, want 3", info["exit_code"])
	}
}
