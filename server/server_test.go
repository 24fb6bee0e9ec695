package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/agent"
	"github.com/hupe1980/flowmesh/metrics"
	"github.com/hupe1980/flowmesh/orchestrator"
)

const submitBody = `{
  "name": "Demo",
  "project_id": "proj-1",
  "stages": [
    {
      "name": "only",
      "tasks": [
        {
          "id": "t1",
          "name": "Task One",
          "capability": "testing",
          "timeout": "5s",
          "retry": {"max_attempts": 1, "backoff": "fixed", "base_delay": "1ms", "max_delay": "1ms"}
        }
      ]
    }
  ]
}`

func newTestServer(t *testing.T, optFns ...func(o *Options)) (*Server, *orchestrator.Orchestrator) {
	t.Helper()

	orch := orchestrator.New()
	orch.RegisterAgent(agent.NewSimulatedAgent("sim-testing", "testing", func(o *agent.SimulatedOptions) {
		o.Latency = time.Millisecond
	}))

	return New(orch, optFns...), orch
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_SubmitAndPollStatus(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/workflows", submitBody)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitResp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitResp))
	workflowID := submitResp["workflow_id"]
	require.NotEmpty(t, workflowID)

	assert.Eventually(t, func() bool {
		rec := doRequest(s, http.MethodGet, "/api/v1/workflows/"+workflowID, "")
		if rec.Code != http.StatusOK {
			return false
		}
		var status orchestrator.Status
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			return false
		}
		return status.Status == "completed" && status.Progress == 100
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_SubmitRejectsBadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	t.Run("InvalidJSON", func(t *testing.T) {
		rec := doRequest(s, http.MethodPost, "/api/v1/workflows", "{")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid JSON")
	})

	t.Run("InvalidGraph", func(t *testing.T) {
		body := `{"name":"Broken","project_id":"p","stages":[{"name":"s","tasks":[{"id":"a","name":"A","capability":"testing","depends_on":["ghost"]}]}]}`
		rec := doRequest(s, http.MethodPost, "/api/v1/workflows", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "ghost")
	})
}

func TestServer_StatusUnknownWorkflow(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/v1/workflows/unknown", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "workflow not found")
}

func TestServer_AdminEndpointsAccept(t *testing.T) {
	s, _ := newTestServer(t)

	for _, action := range []string{"pause", "resume", "cancel"} {
		rec := doRequest(s, http.MethodPost, "/api/v1/workflows/some-id/"+action, "")
		assert.Equal(t, http.StatusAccepted, rec.Code, action)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()

	orch := orchestrator.New()
	orch.RegisterAgent(agent.NewSimulatedAgent("sim-testing", "testing", func(o *agent.SimulatedOptions) {
		o.Latency = time.Millisecond
	}))
	metrics.NewCollector(registry).Bind(orch.Bus())

	s := New(orch, func(o *Options) { o.Gatherer = registry })

	rec := doRequest(s, http.MethodPost, "/api/v1/workflows", submitBody)
	require.Equal(t, http.StatusAccepted, rec.Code)

	assert.Eventually(t, func() bool {
		rec := doRequest(s, http.MethodGet, "/metrics", "")
		return rec.Code == http.StatusOK &&
			strings.Contains(rec.Body.String(), "flowmesh_workflows_started_total 1")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_NoMetricsWithoutGatherer(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
