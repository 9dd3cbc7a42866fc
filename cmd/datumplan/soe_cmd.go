package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/SodiumBank/Datum/pkg/config"
	"github.com/SodiumBank/Datum/pkg/profiles"
	"github.com/SodiumBank/Datum/pkg/soe"
	"github.com/SodiumBank/Datum/pkg/standards"
)

// runSOECmd implements `datumplan soe`: loads a request from a
// JSON fixture file and prints the resulting SOERun, exercising the
// engine without a running server — useful for one-off industry
// profile validation and for CI smoke checks.
func runSOECmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("soe", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		inputPath   string
		profilesDir string
		runID       string
	)
	cmd.StringVar(&inputPath, "input", "", "Path to a JSON soe.Request fixture (REQUIRED)")
	cmd.StringVar(&profilesDir, "profiles-dir", "profiles", "Directory of industry_<code>.yaml fixtures")
	cmd.StringVar(&runID, "run-id", "cli-run", "SOE run id to stamp on the result")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if inputPath == "" {
		fmt.Fprintln(stderr, "Error: --input is required")
		return 2
	}

	raw, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: reading --input: %v\n", err)
		return 2
	}
	var req soe.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		fmt.Fprintf(stderr, "Error: invalid request JSON: %v\n", err)
		return 2
	}

	industryProfiles, err := config.LoadAllIndustryProfiles(profilesDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: loading industry profiles: %v\n", err)
		return 2
	}
	profileRegistry := profiles.NewMemoryRegistry()
	for _, ip := range industryProfiles {
		profileRegistry.PutIndustryProfile(ip)
	}
	packRegistry, err := standards.NewMemoryRegistry()
	if err != nil {
		fmt.Fprintf(stderr, "Error: init standards registry: %v\n", err)
		return 2
	}

	run, err := soe.Evaluate(context.Background(), soe.Deps{Profiles: profileRegistry, Packs: packRegistry}, req, runID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: SOE evaluation failed: %v\n", err)
		return 1
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Error: marshaling result: %v\n", err)
		return 2
	}
	fmt.Fprintln(stdout, string(data))
	return 0
}
