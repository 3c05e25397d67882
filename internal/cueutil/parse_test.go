// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"strings"
	"testing"
)

const benchSchema = `
#Bench: {
	name:     string
	slots:    int
	powered:  bool
	comment?: string
}
`

type benchConfig struct {
	Name    string `json:"name"`
	Slots   int    `json:"slots"`
	Powered bool   `json:"powered"`
	Comment string `json:"comment,omitempty"`
}

func TestDecode(t *testing.T) {
	t.Run("valid input decodes", func(t *testing.T) {
		data := []byte(`
name: "bench-a"
slots: 4
powered: true
comment: "primary"
`)
		result, err := Decode[benchConfig]([]byte(benchSchema), data, "#Bench")
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}

		if result.Value.Name != "bench-a" {
			t.Errorf("expected name='bench-a', got %q", result.Value.Name)
		}
		if result.Value.Slots != 4 {
			t.Errorf("expected slots=4, got %d", result.Value.Slots)
		}
		if !result.Value.Powered {
			t.Error("expected powered=true")
		}
	})

	t.Run("optional field can be omitted", func(t *testing.T) {
		data := []byte(`
name: "bench-b"
slots: 1
powered: false
`)
		result, err := Decode[benchConfig]([]byte(benchSchema), data, "#Bench")
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if result.Value.Comment != "" {
			t.Errorf("expected empty comment, got %q", result.Value.Comment)
		}
	})

	t.Run("wrong type is rejected", func(t *testing.T) {
		data := []byte(`
name: "bench-c"
slots: "four"
powered: true
`)
		if _, err := Decode[benchConfig]([]byte(benchSchema), data, "#Bench"); err == nil {
			t.Error("expected error for invalid type")
		}
	})

	t.Run("missing required field is rejected", func(t *testing.T) {
		data := []byte(`
name: "bench-d"
powered: true
`)
		if _, err := Decode[benchConfig]([]byte(benchSchema), data, "#Bench"); err == nil {
			t.Error("expected error for missing required field")
		}
	})

	t.Run("WithFilename shows up in errors", func(t *testing.T) {
		data := []byte(`
name: "bench-e"
slots: "nope"
powered: true
`)
		_, err := Decode[benchConfig](
			[]byte(benchSchema),
			data,
			"#Bench",
			WithFilename("bench.cue"),
		)
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "bench.cue") {
			t.Errorf("error should contain filename, got: %v", err)
		}
	})

	t.Run("unknown schema path is an internal error", func(t *testing.T) {
		data := []byte(`name: "x"`)
		if _, err := Decode[benchConfig]([]byte(benchSchema), data, "#Missing"); err == nil {
			t.Error("expected error for missing schema definition")
		}
	})
}

func TestDecodeEnumConstraint(t *testing.T) {
	schema := `
#Settings: {
	runtime?: "native" | "virtual"
	registries?: [...string]
}
`
	type settings struct {
		Runtime    string   `json:"runtime,omitempty"`
		Registries []string `json:"registries,omitempty"`
	}

	t.Run("valid enum value", func(t *testing.T) {
		data := []byte(`
runtime: "virtual"
registries: ["/opt/registry"]
`)
		result, err := Decode[settings]([]byte(schema), data, "#Settings")
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if result.Value.Runtime != "virtual" {
			t.Errorf("expected runtime='virtual', got %q", result.Value.Runtime)
		}
	})

	t.Run("empty input with WithConcrete(false)", func(t *testing.T) {
		result, err := Decode[settings]([]byte(schema), []byte(`{}`), "#Settings", WithConcrete(false))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if result.Value.Runtime != "" {
			t.Errorf("expected empty runtime, got %q", result.Value.Runtime)
		}
	})

	t.Run("invalid enum value is rejected", func(t *testing.T) {
		data := []byte(`runtime: "container"`)
		if _, err := Decode[settings]([]byte(schema), data, "#Settings"); err == nil {
			t.Error("expected error for invalid enum value")
		}
	})
}

func TestCheckFileSize(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		if err := CheckFileSize(make([]byte, 64), 100, "small.cue"); err != nil {
			t.Errorf("expected success, got %v", err)
		}
	})

	t.Run("over limit", func(t *testing.T) {
		err := CheckFileSize(make([]byte, 200), 100, "big.cue")
		if err == nil {
			t.Fatal("expected error for oversized file")
		}
		if !strings.Contains(err.Error(), "exceeds maximum") {
			t.Errorf("error should mention the limit, got: %v", err)
		}
	})

	t.Run("limit enforced through Decode", func(t *testing.T) {
		data := make([]byte, 200)
		for i := range data {
			data[i] = 'a'
		}
		_, err := Decode[benchConfig]([]byte(benchSchema), data, "#Bench", WithMaxSize(100))
		if err == nil {
			t.Error("expected error for oversized input")
		}
	})
}

func TestDecodeString(t *testing.T) {
	data := []byte(`
name: "bench-s"
slots: 2
powered: true
`)
	result, err := DecodeString[benchConfig](benchSchema, data, "#Bench")
	if err != nil {
		t.Fatalf("DecodeString failed: %v", err)
	}
	if result.Value.Name != "bench-s" {
		t.Errorf("expected name='bench-s', got %q", result.Value.Name)
	}
	if result.Unified.Err() != nil {
		t.Errorf("unified value has error: %v", result.Unified.Err())
	}
}
