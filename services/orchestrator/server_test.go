// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindweave-ai/mindweave/services/thought"
)

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWorkflowEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	o := testOrchestrator(t, &stubBackend{})
	router := o.Router()

	w := doJSON(t, router, http.MethodPost, "/v1/workflow", WorkflowRequest{
		ProjectID: "proj-1",
		Query:     "plan the migration",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var tree thought.ThoughtTree
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tree))
	assert.Equal(t, "proj-1", tree.ProjectID)
	assert.NotEmpty(t, tree.Thoughts)
}

func TestWorkflowEndpointRejectsBadBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	o := testOrchestrator(t, &stubBackend{})
	router := o.Router()

	w := doJSON(t, router, http.MethodPost, "/v1/workflow", map[string]string{"query": "q"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerPanicEscalatesHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	o := testOrchestrator(t, &stubBackend{})
	router := o.Router()
	router.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := doJSON(t, router, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "CRITICAL", o.Health().Status)

	w = doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTreeEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	o := testOrchestrator(t, &stubBackend{})
	router := o.Router()

	w := doJSON(t, router, http.MethodGet, "/v1/workflow/proj-1/tree", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	doJSON(t, router, http.MethodPost, "/v1/workflow", WorkflowRequest{ProjectID: "proj-1", Query: "q"})

	w = doJSON(t, router, http.MethodGet, "/v1/workflow/proj-1/tree", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSelectEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	o := testOrchestrator(t, &stubBackend{})
	router := o.Router()

	w := doJSON(t, router, http.MethodPost, "/v1/workflow/select", SelectPathRequest{ProjectID: "proj-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	doJSON(t, router, http.MethodPost, "/v1/workflow", WorkflowRequest{ProjectID: "proj-1", Query: "q"})

	w = doJSON(t, router, http.MethodPost, "/v1/workflow/select", SelectPathRequest{ProjectID: "proj-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp thought.PathResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Content)

	w = doJSON(t, router, http.MethodPost, "/v1/workflow/select",
		SelectPathRequest{ProjectID: "proj-1", BranchIndex: 99})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	o := testOrchestrator(t, &stubBackend{})
	router := o.Router()

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report HealthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "HEALTHY", report.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	o := testOrchestrator(t, &stubBackend{})
	router := o.Router()

	doJSON(t, router, http.MethodPost, "/v1/workflow", WorkflowRequest{ProjectID: "proj-1", Query: "q"})

	w := doJSON(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mindweave_workflow_runs_total")
	assert.Contains(t, w.Body.String(), "mindweave_resilience_health_level")
}
