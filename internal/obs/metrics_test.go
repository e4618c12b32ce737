package obs

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/v1/achievements":          "/v1/achievements",
		"/v1/achievements/abc":      "/v1/achievements/:id",
		"/v1/goals/01HZX":           "/v1/goals/:id",
		"/v1/files/xyz":             "/v1/files/:id",
		"/v1/goals/01HZX/toggle":    "/v1/goals/:id/toggle",
		"/v1/portfolio/u1":          "/v1/portfolio/:id",
		"/storage/avatars/u1/a.png": "/storage/avatars/:path",
		"/v1/profile/refresh":       "/v1/profile/refresh",
		"/v1/insights/gaps?year=24": "/v1/insights/gaps",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestRecordMutationCountsFailures(t *testing.T) {
	before := testutil.ToFloat64(remoteFailuresTotal.WithLabelValues("test.op"))
	RecordMutation("test.op", nil)
	RecordMutation("test.op", errors.New("boom"))
	after := testutil.ToFloat64(remoteFailuresTotal.WithLabelValues("test.op"))
	if after-before != 1 {
		t.Fatalf("expected one remote failure, got %v", after-before)
	}
	if got := testutil.ToFloat64(mutationsTotal.WithLabelValues("test.op", "ok")); got < 1 {
		t.Fatalf("expected ok mutation counted, got %v", got)
	}
}

func TestSetOutputRedirectsLogger(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	LogRequest("request_complete", map[string]any{"path": "/healthz", "status": 200})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg", "service", "path", "status"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in %v", key, entry)
		}
	}
	if entry["msg"] != "request_complete" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
}
