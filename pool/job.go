package pool

import (
	"context"
)

// Job defines job interface
type Job interface {
	Name() string
	Execute() error
	GetContext() context.Context
}

// JobFunc wraps a function as a named Job
type JobFunc struct {
	JobName string
	Ctx     context.Context
	F       func(ctx context.Context) error
}

// Name get job name
func (j *JobFunc) Name() string {
	return j.JobName
}

// GetContext get job context
func (j *JobFunc) GetContext() context.Context {
	return j.Ctx
}

// Execute runs the wrapped function
func (j *JobFunc) Execute() error {
	if j.F == nil {
		return nil
	}
	ctx := j.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return j.F(ctx)
}
