// Command advisor is a one-shot CLI: it runs a single decision pass (or
// the approval-queue subcommand) against one Core and exits, for cron
// or manual invocation outside the long-running server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/eyeinthesky6/indexpilot-sub002/config"
	internalcore "github.com/eyeinthesky6/indexpilot-sub002/internal/core"
	"github.com/eyeinthesky6/indexpilot-sub002/logging"
	"github.com/eyeinthesky6/indexpilot-sub002/scheduler"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.INFO, os.Stdout)
	ctx := context.Background()

	svc, err := internalcore.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "core init: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	switch os.Args[1] {
	case "run":
		runPass(ctx, svc, os.Args[2:])
	case "approve":
		decideApproval(svc, os.Args[2:], true)
	case "reject":
		decideApproval(svc, os.Args[2:], false)
	case "approvals":
		listApprovals(svc)
	case "composite":
		runCompositeScan(ctx, svc, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: advisor run [--apply] | approve <id> | reject <id> | approvals | composite <table> [--apply]")
}

// runCompositeScan drives C12 for one table, auditing opportunities and
// (in --apply mode) creating the winning composite indexes directly.
func runCompositeScan(ctx context.Context, svc *internalcore.Core, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	table := args[0]
	mode := scheduler.ModeAdvisory
	for _, a := range args[1:] {
		if a == "--apply" {
			mode = scheduler.ModeApply
		}
	}

	created, err := svc.RunCompositeScan(ctx, table, mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "composite scan: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(map[string]interface{}{"created": created})
}

func runPass(ctx context.Context, svc *internalcore.Core, args []string) {
	mode := scheduler.ModeAdvisory
	for _, a := range args {
		if a == "--apply" {
			mode = scheduler.ModeApply
		}
	}

	result, err := svc.Scheduler.RunPass(ctx, mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run pass: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(result)
}

// decideApproval operates against the approval store built for apply
// mode's human-in-the-loop gate (spec's supplemented approval-queue
// feature), resolving a pending request by ID.
func decideApproval(svc *internalcore.Core, args []string, approve bool) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	if err := svc.Safety.Approvals.Decide(args[0], approve); err != nil {
		fmt.Fprintf(os.Stderr, "decide approval: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("ok")
}

func listApprovals(svc *internalcore.Core) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(svc.Safety.Approvals.List())
}
