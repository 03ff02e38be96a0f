package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/target/hrm-scheduler/internal/core"
	"github.com/target/hrm-scheduler/internal/domain/catalog"
	"github.com/target/hrm-scheduler/internal/domain/model"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
)

// PeriodCheckerOptions groups dependencies shared by the dependency and idempotency checks.
type PeriodCheckerOptions struct {
	Catalog *catalog.Catalog      // Required
	Runs    core.JobRunRepository // Required
	Clock   OrgClock
}

func (o PeriodCheckerOptions) validate() error {
	if o.Catalog == nil {
		return errors.New("catalog is required")
	}
	if o.Runs == nil {
		return errors.New("JobRunRepository is required")
	}
	return nil
}

// successQuery builds the lookup for a SUCCESS run of names covering the period of params.
func successQuery(names []string, params catalog.Params, clock OrgClock) model.SuccessQuery {
	w := params.Window(clock.Loc(), clock.Now())
	return model.SuccessQuery{
		Names:     names,
		From:      w.From,
		To:        w.To,
		PeriodKey: params.PeriodKey(),
	}
}

// DependencyValidator checks that every declared dependency of a job succeeded for the target period.
type DependencyValidator struct {
	catalog *catalog.Catalog
	runs    core.JobRunRepository
	clock   OrgClock
}

// NewDependencyValidator constructs a DependencyValidator.
func NewDependencyValidator(opts PeriodCheckerOptions) (*DependencyValidator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &DependencyValidator{catalog: opts.Catalog, runs: opts.Runs, clock: opts.Clock}, nil
}

// Validate walks the dependencies of name in declared order and fails with DependencyNotMet
// naming the first one without a SUCCESS run (scheduled or manual) for the period of params.
func (v *DependencyValidator) Validate(ctx context.Context, name catalog.JobName, params catalog.Params) error {
	def, ok := v.catalog.Get(name)
	if !ok {
		return apperrors.ParametersInvalid("jobName", fmt.Sprintf("unknown job %q", name))
	}
	for _, dep := range def.Dependencies {
		met, err := v.runs.HasSuccess(ctx, successQuery(dep.RunNames(), params, v.clock))
		if err != nil {
			return fmt.Errorf("check dependency %s: %w", dep, err)
		}
		if !met {
			return apperrors.DependencyNotMet(string(name), string(dep))
		}
	}
	return nil
}

// IdempotencyChecker blocks a second successful run of a job for the same period.
type IdempotencyChecker struct {
	runs  core.JobRunRepository
	clock OrgClock
}

// NewIdempotencyChecker constructs an IdempotencyChecker.
func NewIdempotencyChecker(opts PeriodCheckerOptions) (*IdempotencyChecker, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &IdempotencyChecker{runs: opts.Runs, clock: opts.Clock}, nil
}

// AssertNotAlreadyProcessed fails with AlreadyProcessed when name already has a SUCCESS run
// covering the period of params. Invocations without period parameters are never blocked.
func (c *IdempotencyChecker) AssertNotAlreadyProcessed(ctx context.Context, name catalog.JobName, params catalog.Params) error {
	if !params.HasPeriod() {
		return nil
	}
	done, err := c.runs.HasSuccess(ctx, successQuery(name.RunNames(), params, c.clock))
	if err != nil {
		return fmt.Errorf("check previous runs of %s: %w", name, err)
	}
	if done {
		return apperrors.AlreadyProcessed()
	}
	return nil
}
