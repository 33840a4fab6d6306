package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const zoneSchema = `{
	"type": "object",
	"properties": {
		"speed": {"type": "number"},
		"unwind1": {"type": "number"},
		"dryer1": {"type": "number"}
	}
}`

func TestParseValidSchema(t *testing.T) {
	s, err := Parse(zoneSchema)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []string{"dryer1", "speed", "unwind1"}
	if diff := cmp.Diff(want, s.FieldKeys()); diff != "" {
		t.Errorf("FieldKeys mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	if _, err := Parse("{"); err == nil {
		t.Error("Parse(\"{\") should fail")
	}
}

func TestParseRejectsNoProperties(t *testing.T) {
	if _, err := Parse(`{"type": "object"}`); err == nil {
		t.Error("Parse without properties should fail")
	}
}

func TestResolveFieldsMalformedReturnsEmpty(t *testing.T) {
	got := ResolveFields("{")
	if len(got) != 0 {
		t.Errorf("ResolveFields(\"{\") = %v, want empty", got)
	}
}

func TestResolveFieldsEmptyString(t *testing.T) {
	if got := ResolveFields(""); len(got) != 0 {
		t.Errorf("ResolveFields(\"\") = %v, want empty", got)
	}
}

func TestResolveFieldsValid(t *testing.T) {
	got := ResolveFields(zoneSchema)
	if len(got) != 3 {
		t.Errorf("ResolveFields returned %d keys, want 3", len(got))
	}
}

func TestLabelFor(t *testing.T) {
	labels := map[string]string{"speed": "Speed (M/Min)"}
	if got := LabelFor("speed", labels); got != "Speed (M/Min)" {
		t.Errorf("LabelFor(speed) = %q", got)
	}
	if got := LabelFor("pressure", labels); got != "pressure" {
		t.Errorf("LabelFor(pressure) = %q, want key verbatim", got)
	}
	if got := LabelFor("speed", nil); got != "speed" {
		t.Errorf("LabelFor with nil dict = %q, want key verbatim", got)
	}
}

func TestDefaultLabelsCoverToleranceCategories(t *testing.T) {
	labels := DefaultLabels()
	for _, key := range []string{"speed", "unwind1", "rewind", "dryer1", "chillerTemp"} {
		if labels[key] == "" {
			t.Errorf("DefaultLabels missing %q", key)
		}
	}
}
