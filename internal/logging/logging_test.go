package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput(Config{Level: "debug", Format: "JSON"}, &buf)
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level=%v", l.GetLevel())
	}
	l.WithField("world_id", 3).Debug("designation intercepted")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not json: %q", buf.String())
	}
	if line["msg"] != "designation intercepted" || line["world_id"] != float64(3) {
		t.Fatalf("line=%v", line)
	}
}

func TestNew_TextAndFallbackLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput(Config{Level: "loud"}, &buf)
	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level=%v", l.GetLevel())
	}
	l.Debug("hidden")
	l.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "msg=shown") {
		t.Fatalf("output=%q", buf.String())
	}
}
