// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mindweave-ai/mindweave/pkg/logging"
	"github.com/mindweave-ai/mindweave/services/orchestrator"
)

// --- Global Command Variables ---
var (
	configPath string
	projectID  string
	agentSpecs []string
	selectBest bool
	inMemory   bool

	rootCmd = &cobra.Command{
		Use:   "mindweave",
		Short: "A cli to run and serve multi-agent Tree-of-Thought reasoning",
		Long: `Mindweave orchestrates a crew of reasoning agents that explore a
				problem as a tree of thoughts, scores every reasoning path, and
				assembles the strongest ones into an answer.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator HTTP and websocket server",
		RunE:  runServe,
	}

	workflowCmd = &cobra.Command{
		Use:   "workflow [query]",
		Short: "Run one reasoning workflow and print the resulting tree",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runWorkflow,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")

	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(workflowCmd)
	workflowCmd.Flags().StringVar(&projectID, "project", "default", "Project id the tree belongs to")
	workflowCmd.Flags().StringSliceVar(&agentSpecs, "agent", nil,
		"Agent as id:role (repeatable), e.g. --agent critic-1:critic")
	workflowCmd.Flags().BoolVar(&selectBest, "select", false, "Also print the synthesized best path")
	workflowCmd.Flags().BoolVar(&inMemory, "in-memory", false, "Skip on-disk thought persistence")
}

func buildOrchestrator(forCLI bool) (*orchestrator.Orchestrator, *logging.Logger, error) {
	cfg, err := orchestrator.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if inMemory {
		cfg.Storage.InMemory = true
	}

	logCfg := logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "orchestrator",
		JSON:    cfg.Logging.JSON,
	}
	if forCLI {
		// Keep stderr clean for the rendered tree.
		logCfg.Service = "cli"
		logCfg.Quiet = true
	}
	log := logging.New(logCfg)

	o, err := orchestrator.New(cfg, nil, log)
	if err != nil {
		log.Close()
		return nil, nil, err
	}
	if forCLI {
		// One-shot runs have no websocket observers.
		o.DisableEvents()
	}
	return o, log, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	o, log, err := buildOrchestrator(false)
	if err != nil {
		return err
	}
	defer log.Close()
	defer o.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return o.Serve(ctx)
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	o, log, err := buildOrchestrator(true)
	if err != nil {
		return err
	}
	defer log.Close()
	defer o.Close()

	req := orchestrator.WorkflowRequest{
		ProjectID: projectID,
		Query:     strings.Join(args, " "),
	}
	for _, spec := range agentSpecs {
		id, role, ok := strings.Cut(spec, ":")
		if !ok {
			return fmt.Errorf("invalid agent spec %q, expected id:role", spec)
		}
		req.Agents = append(req.Agents, orchestrator.AgentSpec{ID: id, Role: role})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tree, err := o.RunWorkflow(ctx, req)
	if err != nil {
		return err
	}
	fmt.Println(tree.Format())

	if selectBest && len(tree.Branches) > 0 {
		resp, err := o.SelectPath(ctx, orchestrator.SelectPathRequest{ProjectID: projectID})
		if err != nil {
			return err
		}
		fmt.Println("--- Best path ---")
		fmt.Println(resp.Content)
		fmt.Printf("(score %.3f across %d thoughts)\n", resp.Score, len(resp.ThoughtIDs))
	}
	return nil
}
