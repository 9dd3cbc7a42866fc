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

// runReplayCmd implements `datumplan replay`: re-evaluates a
// previously recorded SOE run's request with audit_replay forced on,
// against the current (possibly deprecated) profile catalog, and
// reports whether the decisions still match — the audit trail's
// reproducibility guarantee.
//
// Exit codes:
//
//	0 = replay matches the recorded run
//	1 = replay diverged
//	2 = runtime error
func runReplayCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("replay", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		runPath     string
		profilesDir string
		jsonOutput  bool
	)
	cmd.StringVar(&runPath, "run", "", "Path to a previously recorded soe.Run JSON file (REQUIRED)")
	cmd.StringVar(&profilesDir, "profiles-dir", "profiles", "Directory of industry_<code>.yaml fixtures")
	cmd.BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if runPath == "" {
		fmt.Fprintln(stderr, "Error: --run is required")
		return 2
	}

	raw, err := os.ReadFile(runPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: reading --run: %v\n", err)
		return 2
	}
	var recorded soe.Run
	if err := json.Unmarshal(raw, &recorded); err != nil {
		fmt.Fprintf(stderr, "Error: invalid run JSON: %v\n", err)
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

	activeProfiles := make([]string, 0, len(recorded.ProfileStack))
	for _, entry := range recorded.ProfileStack {
		activeProfiles = append(activeProfiles, entry.ProfileID)
	}

	replayed, err := soe.Evaluate(context.Background(), soe.Deps{Profiles: profileRegistry, Packs: packRegistry}, soe.Request{
		IndustryProfile: recorded.IndustryProfile,
		HardwareClass:   recorded.HardwareClass,
		ActiveProfiles:  activeProfiles,
		AuditReplay:     true,
	}, recorded.SOERunID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: replay evaluation failed: %v\n", err)
		return 2
	}

	issues := diffDecisions(recorded.Decisions, replayed.Decisions)

	result := map[string]any{
		"run_id":         recorded.SOERunID,
		"decision_count": len(recorded.Decisions),
		"replay_status":  "MATCH",
	}
	if len(issues) > 0 {
		result["replay_status"] = "DIVERGED"
		result["issues"] = issues
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		fmt.Fprintf(stdout, "Replay %s: %s\n", result["replay_status"], recorded.SOERunID)
		for _, issue := range issues {
			fmt.Fprintf(stdout, "  - %s\n", issue)
		}
	}

	if len(issues) > 0 {
		return 1
	}
	return 0
}

// diffDecisions compares two decision sets by id, flagging anything
// the replay resolved to a different action or enforcement.
func diffDecisions(recorded, replayed []soe.Decision) []string {
	var issues []string

	byID := make(map[string]soe.Decision, len(replayed))
	for _, d := range replayed {
		byID[d.ID] = d
	}

	for _, want := range recorded {
		got, ok := byID[want.ID]
		if !ok {
			issues = append(issues, fmt.Sprintf("decision %s: present in recorded run, missing from replay", want.ID))
			continue
		}
		if got.Action.Type != want.Action.Type || got.Enforcement != want.Enforcement {
			issues = append(issues, fmt.Sprintf("decision %s: recorded %s/%s, replay %s/%s",
				want.ID, want.Action.Type, want.Enforcement, got.Action.Type, got.Enforcement))
		}
	}
	if len(recorded) != len(replayed) {
		issues = append(issues, fmt.Sprintf("decision count changed: recorded %d, replay %d", len(recorded), len(replayed)))
	}

	return issues
}
