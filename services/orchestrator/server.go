// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router builds the gin engine with all routes attached.
//
// A handler panic is a fatal, unexpected error: it escalates the
// aggregated health to CRITICAL before the 500 goes out.
func (o *Orchestrator) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		o.exec.EscalateCritical(fmt.Sprintf("handler panic: %v", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}))

	router.GET("/health", o.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		o.metrics.Registry(), promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	{
		v1.POST("/workflow", o.handleWorkflow)
		v1.GET("/workflow/:projectId/tree", o.handleTree)
		v1.GET("/workflow/:projectId/history", o.handleHistory)
		v1.POST("/workflow/select", o.handleSelectPath)
		v1.GET("/collab/ws", o.hub.Handler())
	}
	return router
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (o *Orchestrator) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", o.cfg.Server.Port),
		Handler: o.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	o.log.Info("orchestrator listening", "port", o.cfg.Server.Port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), o.cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (o *Orchestrator) handleWorkflow(c *gin.Context) {
	var req WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tree, err := o.RunWorkflow(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tree)
}

func (o *Orchestrator) handleTree(c *gin.Context) {
	tree := o.Tree(c.Param("projectId"))
	if tree == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrNoTree.Error()})
		return
	}
	c.JSON(http.StatusOK, tree)
}

func (o *Orchestrator) handleHistory(c *gin.Context) {
	thoughts, err := o.History(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"thoughts": thoughts, "count": len(thoughts)})
}

func (o *Orchestrator) handleSelectPath(c *gin.Context) {
	var req SelectPathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := o.SelectPath(c.Request.Context(), req)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, ErrNoTree):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrBranchIndex):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (o *Orchestrator) handleHealth(c *gin.Context) {
	report := o.Health()
	status := http.StatusOK
	if report.Status == "CRITICAL" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
