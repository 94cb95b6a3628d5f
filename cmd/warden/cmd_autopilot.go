package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"warden/internal/artifact"
	"warden/internal/autopilot"
	"warden/internal/drift"
	"warden/internal/federated"
	"warden/internal/futures"
	"warden/internal/policy"
	"warden/internal/review"
	"warden/internal/runbook"
)

// autopilotCmd combines the latest layer analyses into one risk assessment.
var autopilotCmd = &cobra.Command{
	Use:   "autopilot",
	Short: "Score global governance risk and emit remediation tasks",
	Long: `Folds the most recent drift, forecast, federated, and review artifacts into
one global risk score, bands it, and emits a task per breached threshold.
Exit code mirrors the band: 0 stable/elevated, 1 volatile, 2 critical.`,
	RunE: runAutopilot,
}

// runbookCmd plans remediation steps for the latest autopilot assessment.
var runbookCmd = &cobra.Command{
	Use:   "runbook",
	Short: "Generate an ordered remediation runbook",
	Long: `Turns the latest autopilot assessment and layer analyses into an ordered
remediation plan. Exit code mirrors the severity: 0 low/moderate, 1 high,
2 critical.`,
	RunE: runRunbook,
}

// watchCmd re-runs the autopilot cycle whenever the policy file changes.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the policy file and re-run autopilot on change",
	RunE:  runWatch,
}

var emitTasks bool

func init() {
	autopilotCmd.Flags().BoolVar(&emitTasks, "emit-tasks", true, "Emit remediation tasks")
}

// cycleSnapshot loads the most recent artifact of every layer the autopilot
// consumes. Missing layers stay nil.
func cycleSnapshot() (autopilot.CycleSnapshot, error) {
	var snap autopilot.CycleSnapshot
	st := artifacts()

	var d drift.Analysis
	if found, err := st.Latest(artifact.LayerDrift, &d); err != nil {
		return snap, err
	} else if found {
		snap.Drift = &d
	}

	var f futures.Result
	if found, err := st.Latest(artifact.LayerFutures, &f); err != nil {
		return snap, err
	} else if found {
		snap.Futures = &f
	}

	var h federated.Health
	if found, err := st.Latest(artifact.LayerFederated, &h); err != nil {
		return snap, err
	} else if found {
		snap.Federated = &h
	}

	var r review.Result
	if found, err := st.Latest(artifact.LayerReview, &r); err != nil {
		return snap, err
	} else if found {
		snap.Review = &r
	}

	return snap, nil
}

func runAutopilotCycle() (autopilot.Output, error) {
	snap, err := cycleSnapshot()
	if err != nil {
		return autopilot.Output{}, err
	}

	apCfg := cfg.Autopilot
	apCfg.EmitTasks = apCfg.EmitTasks && emitTasks

	out, err := autopilot.RunCycle(cfg.ProjectID, snap, time.Now(), apCfg)
	if err != nil {
		return autopilot.Output{}, err
	}
	logger.Info("autopilot cycle complete",
		zap.String("band", out.Risk.GlobalRisk),
		zap.Float64("risk", out.Risk.Metrics.RiskScore),
		zap.Int("tasks", len(out.RecommendedActions)))
	return out, emit(artifact.LayerAutopilot, "autopilot", out)
}

func runAutopilot(cmd *cobra.Command, args []string) error {
	out, err := runAutopilotCycle()
	if err != nil {
		return err
	}
	exitCode = bandExitCode(out.Risk.GlobalRisk)
	return nil
}

func runRunbook(cmd *cobra.Command, args []string) error {
	st := artifacts()

	var ap autopilot.Output
	found, err := st.Latest(artifact.LayerAutopilot, &ap)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no autopilot artifact found; run `warden autopilot` first")
	}

	snap, err := cycleSnapshot()
	if err != nil {
		return err
	}

	var reviews []review.Result
	if snap.Review != nil {
		reviews = []review.Result{*snap.Review}
	}
	var traces []policy.PolicyTrace
	if ts, err := openTraceStore(); err == nil {
		traces, _ = ts.Recent(50)
		ts.Close()
	}

	out, err := runbook.Generate(cfg.ProjectID, ap, snap.Drift, snap.Futures, snap.Federated, traces, reviews, time.Now())
	if err != nil {
		return err
	}
	logger.Info("runbook generated",
		zap.String("severity", out.Severity),
		zap.Int("steps", len(out.Steps)))
	if err := emit(artifact.LayerRunbook, "runbook", out); err != nil {
		return err
	}
	exitCode = severityExitCode(out.Severity)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(cfg.PolicyPath); err != nil {
		return fmt.Errorf("failed to watch %s: %w", cfg.PolicyPath, err)
	}
	logger.Info("watching policy file", zap.String("path", cfg.PolicyPath))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Info("policy changed, re-running autopilot", zap.String("event", event.String()))
			if _, err := runAutopilotCycle(); err != nil {
				logger.Error("autopilot cycle failed", zap.Error(err))
			}
			// Editors replace files on save; re-add the path in case the
			// inode changed.
			_ = watcher.Add(cfg.PolicyPath)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch error", zap.Error(err))
		case <-sigCh:
			logger.Info("shutting down watch")
			return nil
		}
	}
}

// bandExitCode maps the autopilot band to the process exit code.
func bandExitCode(band string) int {
	switch band {
	case autopilot.BandCritical:
		return 2
	case autopilot.BandVolatile:
		return 1
	default:
		return 0
	}
}

// severityExitCode maps runbook severity to the process exit code.
func severityExitCode(severity string) int {
	switch severity {
	case runbook.SeverityCritical:
		return 2
	case runbook.SeverityHigh:
		return 1
	default:
		return 0
	}
}
