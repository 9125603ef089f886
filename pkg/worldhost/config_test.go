package worldhost

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestUnmarshalEnvDefaults(t *testing.T) {
	var c Config
	if err := c.UnmarshalEnv(nil, false); err != nil {
		t.Fatal(err)
	}
	if c.Addr != ":9646" {
		t.Fatalf("Addr = %q, want :9646", c.Addr)
	}
	if c.InJavaPort != 25565 || c.ExJavaPort != 25565 {
		t.Fatalf("java ports = %d,%d, want 25565,25565", c.InJavaPort, c.ExJavaPort)
	}
	if c.AnalyticsTime != 0 || c.ShutdownTime != 0 {
		t.Fatalf("expected zero durations by default")
	}
	if c.LogLevel != zerolog.InfoLevel {
		t.Fatalf("LogLevel = %v, want info", c.LogLevel)
	}
}

func TestUnmarshalEnvOverrides(t *testing.T) {
	var c Config
	err := c.UnmarshalEnv([]string{
		"WORLDHOST_ADDR=:1234",
		"WORLDHOST_BASE_ADDR=wh.example",
		"WORLDHOST_ANALYTICS_TIME=30s",
		"WORLDHOST_LOG_LEVEL=debug",
		"WORLDHOST_LOG_PRETTY=true",
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	if c.Addr != ":1234" || c.BaseAddr != "wh.example" {
		t.Fatalf("got Addr=%q BaseAddr=%q", c.Addr, c.BaseAddr)
	}
	if c.AnalyticsTime != 30*time.Second {
		t.Fatalf("AnalyticsTime = %v, want 30s", c.AnalyticsTime)
	}
	if c.LogLevel != zerolog.DebugLevel || !c.LogPretty {
		t.Fatalf("got LogLevel=%v LogPretty=%v", c.LogLevel, c.LogPretty)
	}
}

func TestUnmarshalEnvAddrCanBeUnset(t *testing.T) {
	var c Config
	if err := c.UnmarshalEnv([]string{"WORLDHOST_ADDR="}, false); err != nil {
		t.Fatal(err)
	}
	if c.Addr != "" {
		t.Fatalf("Addr = %q, want empty (the ?= default may be explicitly cleared)", c.Addr)
	}
}

func TestUnmarshalEnvIncrementalLeavesUnsetFieldsAlone(t *testing.T) {
	var c Config
	c.Addr = ":9999"
	if err := c.UnmarshalEnv([]string{"WORLDHOST_BASE_ADDR=wh.example"}, true); err != nil {
		t.Fatal(err)
	}
	if c.Addr != ":9999" {
		t.Fatalf("incremental unmarshal touched Addr: got %q", c.Addr)
	}
	if c.BaseAddr != "wh.example" {
		t.Fatalf("BaseAddr = %q, want wh.example", c.BaseAddr)
	}
}

func TestUnmarshalEnvUnknownVariableErrors(t *testing.T) {
	var c Config
	if err := c.UnmarshalEnv([]string{"WORLDHOST_NOT_A_REAL_KEY=x"}, false); err == nil {
		t.Fatal("expected an error for an unknown WORLDHOST_ variable")
	}
}
