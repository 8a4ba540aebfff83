package testkit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	vhttp "github.com/shashiranjanraj/ventas/pkg/http"
)

// ─── MockTransport ────────────────────────────────────────────────────────────

// MockStep is one scripted reply. Steps match in order on method and URL
// prefix; a step with Times > 0 is used up after that many calls.
type MockStep struct {
	Method   string
	MatchURL string
	Status   int
	Body     any   // marshalled to JSON unless it is a string or []byte
	Err      error // returned instead of a response, like a dropped connection
	Times    int

	calls int
}

// MockTransport implements http.RoundTripper for pkg/http's DefaultClient.
//
//	mt := testkit.Install(t, &testkit.MockStep{Method: "POST", MatchURL: srv + "/api/sales", Status: 201, Body: env})
//	// ... exercise code that calls pkg/http ...
//	mt.AssertAllCalled(t)
type MockTransport struct {
	mu       sync.Mutex
	steps    []*MockStep
	Requests []RecordedRequest
}

// RecordedRequest is an outgoing call as the transport saw it.
type RecordedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Install puts a MockTransport with steps on pkg/http's client and restores
// the real transport when the test ends.
func Install(t testing.TB, steps ...*MockStep) *MockTransport {
	t.Helper()
	mt := &MockTransport{steps: steps}
	vhttp.DefaultClient.Transport = mt
	t.Cleanup(vhttp.ResetTransport)
	return mt
}

// RoundTrip answers the request from the first matching step.
func (mt *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		_ = req.Body.Close()
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.Requests = append(mt.Requests, RecordedRequest{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	})

	for _, step := range mt.steps {
		if step.Method != "" && !strings.EqualFold(step.Method, req.Method) {
			continue
		}
		if !strings.HasPrefix(req.URL.String(), step.MatchURL) {
			continue
		}
		if step.Times > 0 && step.calls >= step.Times {
			continue
		}
		step.calls++
		if step.Err != nil {
			return nil, step.Err
		}
		return buildHTTPResponse(req, step)
	}

	return nil, fmt.Errorf("testkit: unexpected outgoing HTTP call %s %s", req.Method, req.URL)
}

// AssertAllCalled fails the test for every step that was never used.
func (mt *MockTransport) AssertAllCalled(t testing.TB) {
	t.Helper()
	mt.mu.Lock()
	defer mt.mu.Unlock()

	for _, s := range mt.steps {
		assert.NotZero(t, s.calls, "testkit: mock step %s %s was never called", s.Method, s.MatchURL)
	}
}

// Calls returns how many recorded requests went to a URL with prefix.
func (mt *MockTransport) Calls(prefix string) int {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	n := 0
	for _, r := range mt.Requests {
		if strings.HasPrefix(r.URL, prefix) {
			n++
		}
	}
	return n
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func buildHTTPResponse(req *http.Request, step *MockStep) (*http.Response, error) {
	code := step.Status
	if code == 0 {
		code = http.StatusOK
	}

	var raw []byte
	switch b := step.Body.(type) {
	case nil:
	case string:
		raw = []byte(b)
	case []byte:
		raw = b
	default:
		var err error
		if raw, err = json.Marshal(b); err != nil {
			return nil, fmt.Errorf("testkit: marshal mock body: %w", err)
		}
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	return &http.Response{
		StatusCode: code,
		Status:     fmt.Sprintf("%d %s", code, http.StatusText(code)),
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(raw)),
		Request:    req,
	}, nil
}
