package subagent

import (
	"strings"
	"testing"
)

func TestExtractAgentID_Shapes(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"quoted snake", `Launched: {"agent_id":"abc-123"}`, "abc-123"},
		{"quoted camel", `{"agentId":"xyz"}`, "xyz"},
		{"loose equals", `started agent_id=run42 ok`, "run42"},
		{"loose colon", `Agent ID: deadbeef99`, "deadbeef99"},
		{"json top level", `{"id":"top7"}`, "top7"},
		{"json nested data", `{"data":{"agent_id":"nested1"}}`, "nested1"},
		{"bare hex", `background agent cafe1234 started`, "cafe1234"},
		{"nothing", `no identifiers in sight`, ""},
	}
	for _, tc := range cases {
		if got := ExtractAgentID(tc.text); got != tc.want {
			t.Errorf("%s: ExtractAgentID(%q) = %q, want %q", tc.name, tc.text, got, tc.want)
		}
	}
}

func TestExtractAgentID_HexScanBounded(t *testing.T) {
	// A bare hex token past the scan window must not match.
	text := strings.Repeat("x", hexScanLimit) + " cafe1234"
	if got := ExtractAgentID(text); got != "" {
		t.Errorf("hex beyond the scan window matched: %q", got)
	}
}

func TestStillRunning_Shapes(t *testing.T) {
	running := []string{
		`{"retrieval_status":"not_ready"}`,
		`{"status":"running"}`,
		`{"status":"PENDING"}`,
		`{"agents":{"A1":{"status":"in_progress"}}}`,
		`{"text":"{\"retrieval_status\":\"not_ready\"}"}`,
		`[{"type":"text","text":"{\"status\":\"running\"}"}]`,
	}
	for _, payload := range running {
		if !StillRunning(payload) {
			t.Errorf("should report still running: %s", payload)
		}
	}

	terminal := []string{
		`{"retrieval_status":"success"}`,
		`{"agents":{"A1":{"status":"completed","result":"done"}}}`,
		`plain text, no JSON`,
		``,
	}
	for _, payload := range terminal {
		if StillRunning(payload) {
			t.Errorf("should report terminal: %s", payload)
		}
	}
}

func TestExtractResult_Preference(t *testing.T) {
	payload := `{"agents":{"A1":{"result":"mine"},"A2":{"result":"other"}}}`
	if got := ExtractResult(payload, "A1"); got != "mine" {
		t.Errorf("matched agent result preferred, got %q", got)
	}

	fallback := `{"agents":{"B9":{"result":"only"}}}`
	if got := ExtractResult(fallback, "A1"); got != "only" {
		t.Errorf("first agent entry is the fallback, got %q", got)
	}

	raw := "not json at all"
	if got := ExtractResult(raw, "A1"); got != raw {
		t.Errorf("unparseable payload passes through, got %q", got)
	}

	topLevel := `{"result":"flat"}`
	if got := ExtractResult(topLevel, "A1"); got != "flat" {
		t.Errorf("top-level result field, got %q", got)
	}
}
