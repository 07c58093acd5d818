package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/boristopalov/verigen/pkg/agent"
	"github.com/boristopalov/verigen/pkg/codegen"
	"github.com/boristopalov/verigen/pkg/config"
	"github.com/boristopalov/verigen/pkg/core"
	"github.com/boristopalov/verigen/pkg/dialogue"
	"github.com/boristopalov/verigen/pkg/messaging"
	"github.com/boristopalov/verigen/pkg/orchestrator"
	"github.com/boristopalov/verigen/pkg/providers"
)

var (
	flagConfig string
	flagOutput string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "verigen",
		Short: "Verigen generates UVM testbenches by coordinating a team of LLM agents over an in-process message bus.",
	}

	generateCmd := &cobra.Command{
		Use:   "generate <spec.json>",
		Short: "Generate a UVM testbench from a DUT specification file",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate,
	}
	generateCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output directory")
	generateCmd.Flags().StringVar(&flagConfig, "config", "", "Path to YAML config file")

	planCmd := &cobra.Command{
		Use:   "plan <spec.json>",
		Short: "Show the parsed DUT specification without generating code",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlan,
	}

	for _, envFile := range []string{
		".env",
		"../../.env",
		"../../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(planCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadDUTSpec(path string) (core.DUTSpec, error) {
	var dut core.DUTSpec
	data, err := os.ReadFile(path)
	if err != nil {
		return dut, fmt.Errorf("failed to read spec file: %w", err)
	}
	if err := json.Unmarshal(data, &dut); err != nil {
		return dut, fmt.Errorf("failed to parse spec file: %w", err)
	}
	return dut, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	if flagOutput != "" {
		cfg.OutputDir = flagOutput
	}

	dut, err := loadDUTSpec(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		cancel()
	}()

	var client agent.Client
	switch cfg.Provider {
	case "gemini":
		client, err = providers.Gemini(ctx)
		if err != nil {
			return err
		}
	default:
		client = providers.OpenAi()
	}

	bus := messaging.NewRouter()
	defer bus.Reset()
	tracker := dialogue.NewTracker(cfg.MaxRevisions)
	project := codegen.NewProject(cfg.OutputDir)

	newOpts := func(name string) []agent.Option {
		return []agent.Option{
			agent.WithClient(client),
			agent.WithModel(agent.ModelInfo{Id: cfg.ModelFor(name), Config: make(map[string]any)}),
		}
	}
	agent.NewEnvAgent(bus, newOpts("env_agent")...)
	agent.NewUVMAgent(bus, newOpts("uvm_agent")...)
	agent.NewSequenceAgent(bus, newOpts("sequence_agent")...)
	agent.NewScoreboardAgent(bus, newOpts("scoreboard_agent")...)

	orch := orchestrator.New(bus, tracker, project, newOpts("orchestrator")...)

	fmt.Printf("Generating testbench for DUT: %s\n", dut.Name)
	fmt.Printf("  Ports: %d\n", len(dut.Ports))
	fmt.Printf("  Output: %s\n", cfg.OutputDir)

	plan, err := orch.GenerateTestbench(ctx, dut)
	if err != nil {
		log.Printf("generation finished with unresolved dialogues: %v", err)
	}
	fmt.Printf("  Plan: %s (%d agents)\n", plan.Name, len(plan.Agents))

	project.GenerateFilelist()
	written, err := project.FlushAll()
	if err != nil {
		return err
	}
	fmt.Printf("  Wrote %d files\n", len(written))
	fmt.Println("Generation complete!")
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	dut, err := loadDUTSpec(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("DUT: %s (%s)\n", dut.Name, dut.ModuleName)
	fmt.Printf("  Ports: %d\n", len(dut.Ports))
	for _, port := range dut.Ports {
		fmt.Printf("    %-6s %-20s %s\n", port.Direction, port.SVType(), port.Name)
	}
	fmt.Printf("  Protocols: %d\n", len(dut.Protocols))
	for _, proto := range dut.Protocols {
		fmt.Printf("    %s (%s)\n", proto.Name, proto.ProtocolType)
	}
	return nil
}
