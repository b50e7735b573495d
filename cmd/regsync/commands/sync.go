package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cloudreg/regsync/internal/logger"
	"github.com/cloudreg/regsync/internal/notify"
	"github.com/cloudreg/regsync/internal/registry"
	enginesync "github.com/cloudreg/regsync/internal/sync"
	"github.com/cloudreg/regsync/pkg/config"
	"github.com/cloudreg/regsync/pkg/types"

	// built-in providers register themselves
	_ "github.com/cloudreg/regsync/internal/providers/aws"
	_ "github.com/cloudreg/regsync/internal/providers/gcp"
	_ "github.com/cloudreg/regsync/internal/providers/kubernetes"
)

func newSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass",
		Long: `Collect instances from every enabled provider, diff them against the
registry, and apply the resulting plan. With --dry-run the plan is
printed and nothing is applied.`,
		RunE: runSync,
	}

	cmd.Flags().Bool("dry-run", false, "plan only, apply nothing")
	cmd.Flags().Bool("no-delete", false, "suppress deletes for this run")
	cmd.Flags().Int("retries", 0, "retry the whole run this many times on fatal errors")

	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if noDelete, _ := cmd.Flags().GetBool("no-delete"); noDelete {
		cfg.Sync.NoDelete = true
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	client := registry.NewHTTPClient(registry.Options{
		BaseURL:         cfg.Registry.URL,
		AccessKeyID:     cfg.Registry.AccessKeyID,
		AccessKeySecret: cfg.Registry.AccessKeySecret,
		OrgID:           cfg.Registry.OrgID,
		Timeout:         cfg.Registry.Timeout,
	}, log)

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.Enabled && cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Secret, log)
	}

	engine := enginesync.New(cfg, client, notifier, log)
	output, _ := cmd.Root().PersistentFlags().GetString("output")

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		plans, err := engine.Plan(cmd.Context())
		if err != nil {
			return err
		}
		return renderPlans(plans, output)
	}

	retries, _ := cmd.Flags().GetInt("retries")
	summary, err := runWithRetry(cmd.Context(), engine, retries, cfg, log)
	if err != nil {
		return err
	}
	return renderSummary(summary, output)
}

// runWithRetry retries the whole run on fatal errors. Scope-level failures
// land in the summary and never trigger a retry.
func runWithRetry(ctx context.Context, engine *enginesync.Engine, retries int, cfg *config.Config, log logger.Logger) (*types.RunSummary, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			log.WithField("attempt", attempt+1).Warn("retrying sync run")
			select {
			case <-time.After(cfg.Sync.RetryInterval):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		summary, err := engine.Run(ctx)
		if err == nil {
			return summary, nil
		}
		lastErr = err
		log.Error("sync run failed", err)
	}
	return nil, lastErr
}

func renderPlans(plans []*types.SyncPlan, output string) error {
	switch output {
	case "json":
		return printJSON(plans)
	case "yaml":
		return printYAML(plans)
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	for _, plan := range plans {
		fmt.Printf("%s\n", color.New(color.Bold).Sprint(plan.NodePath))
		if plan.Empty() {
			fmt.Println(faint("  nothing to do"))
			continue
		}
		for _, c := range plan.Creates {
			fmt.Printf("  %s %s (%s)\n", green("+ create"), c.Record.Hostname, c.Record.PrimaryIP)
		}
		for _, c := range plan.Updates {
			fmt.Printf("  %s %s (%s) drift: %v\n", yellow("~ update"), c.Record.Hostname, c.Record.PrimaryIP, c.Drift)
		}
		for _, c := range plan.Deletes {
			fmt.Printf("  %s %s (%s)\n", red("- delete"), c.Record.Hostname, c.Record.PrimaryIP)
		}
		for _, c := range plan.Skips {
			fmt.Printf("  %s %s (%s)\n", faint("  skip  "), c.Record.Hostname, faint(string(c.Reason)))
		}
	}
	return nil
}

func renderSummary(summary *types.RunSummary, output string) error {
	switch output {
	case "json":
		return printJSON(summary)
	case "yaml":
		return printYAML(summary)
	}

	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	totals := summary.Totals()
	fmt.Printf("%s (run %s, %s)\n", bold("Sync complete"), summary.RunID, summary.Duration.Round(time.Millisecond))
	fmt.Printf("  created %s  updated %s  deleted %s  skipped %d  failed %s\n",
		green(totals.Created), green(totals.Updated), green(totals.Deleted),
		totals.Skipped, red(totals.Failed))

	for _, res := range summary.Results {
		status := green("ok")
		if !res.Succeeded() {
			status = red("failed: " + res.Error)
		}
		fmt.Printf("  %-40s %s\n", res.NodePath, status)
		for _, o := range res.Outcomes {
			if o.Status == types.StatusFailed {
				fmt.Printf("    %s %s %s: %s\n", red("✗"), o.Op, o.Record.Hostname, o.Error)
			}
		}
	}

	if totals.Failed > 0 {
		fmt.Fprintln(os.Stderr, red(fmt.Sprintf("%d item(s) failed to apply", totals.Failed)))
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(v)
}
