package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"warden/internal/artifact"
	"warden/internal/policy"
)

var (
	evalActionID    string
	evalActionType  string
	evalCommand     string
	evalPath        string
	evalProjectPath string

	overrideRuleID string
	overrideMode   string
	overrideReason string
)

// evaluateCmd evaluates a single action against the policy and archives the
// trace.
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one action against the policy and capture its trace",
	Long: `Evaluates a single agent action against the governing policy document.
The decision, the per-rule match record, and the human-readable summary are
archived as a trace for the analysis engines.

Example:
  warden evaluate --type run-command --command "rm -rf build/"
  warden evaluate --type write-file --path .env --override-rule allow-env --override-mode allow`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evalActionID, "id", "", "Action id (default: generated)")
	evaluateCmd.Flags().StringVar(&evalActionType, "type", "", "Action type: run-command, write-file, start")
	evaluateCmd.Flags().StringVar(&evalCommand, "command", "", "Command line for run-command actions")
	evaluateCmd.Flags().StringVar(&evalPath, "path", "", "File path for write-file actions")
	evaluateCmd.Flags().StringVar(&evalProjectPath, "project-path", "", "Project path for start actions")
	evaluateCmd.Flags().StringVar(&overrideRuleID, "override-rule", "", "Rule id the override targets")
	evaluateCmd.Flags().StringVar(&overrideMode, "override-mode", "", "Override decision: allow, deny, review")
	evaluateCmd.Flags().StringVar(&overrideReason, "override-reason", "", "Free-text override justification")
	_ = evaluateCmd.MarkFlagRequired("type")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	pol, err := loadPolicy()
	if err != nil {
		return err
	}

	id := evalActionID
	if id == "" {
		id = uuid.NewString()
	}
	action := policy.Action{
		ID:          id,
		Type:        policy.ActionType(evalActionType),
		Command:     evalCommand,
		Path:        evalPath,
		ProjectPath: evalProjectPath,
		Timestamp:   time.Now().UTC(),
	}

	var octx *policy.OverrideContext
	if overrideRuleID != "" {
		octx = &policy.OverrideContext{
			ActionType: action.Type,
			RuleID:     overrideRuleID,
			Mode:       policy.Decision(overrideMode),
			Reason:     overrideReason,
		}
	}

	result, err := policy.Evaluate(action, octx, pol)
	if err != nil {
		return err
	}
	logger.Info("evaluated action",
		zap.String("id", action.ID),
		zap.String("type", string(action.Type)),
		zap.String("outcome", string(result.Outcome)))

	ts, err := openTraceStore()
	if err != nil {
		return err
	}
	defer ts.Close()
	if err := ts.Archive(result.Trace); err != nil {
		return err
	}

	if err := emit(artifact.LayerTraces, "trace", result.Trace); err != nil {
		return err
	}
	fmt.Printf("decision: %s\n", result.Outcome)
	return nil
}
