package temporal

import (
	"fmt"
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const maxAttempts = 3

// BuildInput holds the workflow parameters. Root, ConfigPath and Out are
// paths on the worker.
type BuildInput struct {
	Root       string
	Base       string
	ConfigPath string
	// Entries are root-relative paths or globs.
	Entries []string
	Out     string
}

// BuildOutput holds the workflow result.
type BuildOutput struct {
	OutputPath string
	Written    []string
	Modules    int
	Parsed     int64
	CacheHits  int64
	Warnings   []string
	Errors     []string
}

// Failed reports whether any entry failed to build.
func (o *BuildOutput) Failed() bool { return len(o.Errors) > 0 }

// BuildWorkflow runs a project build as a single activity. Configuration
// errors are not retried.
func BuildWorkflow(ctx workflow.Context, input BuildInput) (*BuildOutput, error) {
	if len(input.Entries) == 0 {
		return nil, fmt.Errorf("no entries given")
	}
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: maxAttempts,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var out BuildOutput
	if err := workflow.ExecuteActivity(ctx, BuildActivity, input).Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	workflow.GetLogger(ctx).Info("build finished",
		"written", len(out.Written),
		"warnings", len(out.Warnings),
		"errors", len(out.Errors),
	)
	return &out, nil
}
