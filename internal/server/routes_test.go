package server

import (
	"net/http"
	"testing"
)

func addEvent(t *testing.T, srv *Server, body string) string {
	t.Helper()
	w := do(t, srv, "POST", "/api/events", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("add event: status = %d, body = %s", w.Code, w.Body.String())
	}
	id, _ := decodeBody(t, w)["id"].(string)
	if id == "" {
		t.Fatal("add event returned no id")
	}
	return id
}

func TestAddAndGetEvent(t *testing.T) {
	srv := testServer(t)
	id := addEvent(t, srv, `{"purpose":"budget meeting","location":"Berlin","entities":["Alice"]}`)

	w := do(t, srv, "GET", "/api/events/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["purpose"] != "budget meeting" || body["location"] != "Berlin" {
		t.Errorf("event = %v", body)
	}
	if emb, _ := body["embedding"].([]any); len(emb) != 3 {
		t.Errorf("embedding = %v", body["embedding"])
	}

	w = do(t, srv, "GET", "/api/events?limit=5", nil)
	if events, _ := decodeBody(t, w)["events"].([]any); len(events) != 1 {
		t.Errorf("list = %s", w.Body.String())
	}
}

func TestAddEventRejectsEmpty(t *testing.T) {
	srv := testServer(t)
	if w := do(t, srv, "POST", "/api/events", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if w := do(t, srv, "POST", "/api/events", `{broken`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid json: status = %d, want 400", w.Code)
	}
}

func TestGetEventNotFound(t *testing.T) {
	srv := testServer(t)
	if w := do(t, srv, "GET", "/api/events/ghost", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestIngestTurnFillsPool(t *testing.T) {
	srv := testServer(t)
	id := addEvent(t, srv, `{"purpose":"flutter widget notes"}`)

	w := do(t, srv, "POST", "/api/turns", `{"content":"I keep coming back to Flutter"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	result, _ := body["result"].(map[string]any)
	if result["source"] == "" || result["source"] == nil {
		t.Errorf("result = %v", result)
	}
	poolEntries, _ := body["pool"].([]any)
	if len(poolEntries) != 1 {
		t.Fatalf("pool = %v", body["pool"])
	}
	node := poolEntries[0].(map[string]any)["node"].(map[string]any)
	if node["id"] != id {
		t.Errorf("pool node = %v, want %s", node["id"], id)
	}

	w = do(t, srv, "GET", "/api/focuses?tier=active", nil)
	if foci, _ := decodeBody(t, w)["focuses"].([]any); len(foci) == 0 {
		t.Errorf("no active focuses: %s", w.Body.String())
	}
	w = do(t, srv, "GET", "/api/pool", nil)
	if entries, _ := decodeBody(t, w)["pool"].([]any); len(entries) != 1 {
		t.Errorf("pool = %s", w.Body.String())
	}
}

func TestIngestRequiresContent(t *testing.T) {
	srv := testServer(t)
	if w := do(t, srv, "POST", "/api/turns", `{"content":"  "}`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRetrieveWithHardConstraint(t *testing.T) {
	srv := testServer(t)
	addEvent(t, srv, `{"purpose":"budget meeting","location":"Berlin office"}`)
	addEvent(t, srv, `{"purpose":"budget meeting","location":"Paris"}`)

	w := do(t, srv, "POST", "/api/retrieve", `{"topics":["budget"],"location":"berlin"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	entries, _ := decodeBody(t, w)["pool"].([]any)
	if len(entries) != 1 {
		t.Fatalf("pool = %s", w.Body.String())
	}
	node := entries[0].(map[string]any)["node"].(map[string]any)
	if node["location"] != "Berlin office" {
		t.Errorf("location = %v", node["location"])
	}
}

func TestFocusesValidation(t *testing.T) {
	srv := testServer(t)
	if w := do(t, srv, "GET", "/api/focuses?tier=bogus", nil); w.Code != http.StatusBadRequest {
		t.Errorf("tier: status = %d, want 400", w.Code)
	}
	if w := do(t, srv, "GET", "/api/focuses?n=-1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("n: status = %d, want 400", w.Code)
	}
	w := do(t, srv, "GET", "/api/focuses", nil)
	if w.Code != http.StatusOK || w.Body.String() != "{\"focuses\":[]}\n" {
		t.Errorf("empty focuses = %d %q", w.Code, w.Body.String())
	}
	if w := do(t, srv, "GET", "/api/focuses/ghost", nil); w.Code != http.StatusNotFound {
		t.Errorf("focus: status = %d, want 404", w.Code)
	}
}

func TestActivationRoute(t *testing.T) {
	srv := testServer(t)
	a := addEvent(t, srv, `{"purpose":"budget meeting"}`)
	b := addEvent(t, srv, `{"purpose":"budget follow-up"}`)

	w := do(t, srv, "POST", "/api/activations", `{"id":"`+a+`","similarity":0.9,"related_id":"`+b+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if n := decodeBody(t, w)["activations"]; n != float64(1) {
		t.Errorf("activations = %v", n)
	}

	cases := []struct {
		body string
		want int
	}{
		{`{"id":"` + a + `"}`, http.StatusBadRequest},
		{`{"id":"` + a + `","similarity":2}`, http.StatusBadRequest},
		{`{"id":"ghost","similarity":0.5}`, http.StatusNotFound},
	}
	for _, c := range cases {
		if w := do(t, srv, "POST", "/api/activations", c.body); w.Code != c.want {
			t.Errorf("%s: status = %d, want %d", c.body, w.Code, c.want)
		}
	}

	w = do(t, srv, "GET", "/api/stats", nil)
	if body := decodeBody(t, w); body["edges"] != float64(1) || body["events"] != float64(2) {
		t.Errorf("stats = %v", body)
	}
}

func TestParametersRoundTrip(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "PUT", "/api/parameters", `{"strategy":"softmax"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["strategy"] != "softmax" || body["theta_react"] != 0.4 {
		t.Errorf("params = %v", body)
	}

	w = do(t, srv, "PUT", "/api/parameters", `{"theta_time":0.9}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad weights: status = %d, want 400", w.Code)
	}
	w = do(t, srv, "GET", "/api/parameters", nil)
	if body := decodeBody(t, w); body["theta_time"] != 0.3 {
		t.Errorf("invalid update leaked: %v", body)
	}
}

func TestDistributionRoute(t *testing.T) {
	srv := testServer(t)
	addEvent(t, srv, `{"purpose":"budget meeting"}`)

	if w := do(t, srv, "GET", "/api/distribution", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing q: status = %d, want 400", w.Code)
	}
	w := do(t, srv, "GET", "/api/distribution?q=meeting", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decodeBody(t, w); body["count"] != float64(1) {
		t.Errorf("distribution = %v", body)
	}
}
