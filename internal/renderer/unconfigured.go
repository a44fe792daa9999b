package renderer

import (
	"context"
	"fmt"
)

// UnconfiguredProvider stands in for a renderer type we recognize but
// cannot run, either because its credentials are missing or because no
// client is implemented yet. Every call fails with the same descriptive
// error so the job lands in a clear error state instead of silently
// falling back.
type UnconfiguredProvider struct {
	kind   string
	reason string
}

var _ Provider = (*UnconfiguredProvider)(nil)

func NewUnconfiguredProvider(kind, reason string) *UnconfiguredProvider {
	return &UnconfiguredProvider{kind: kind, reason: reason}
}

func (p *UnconfiguredProvider) Name() string { return p.kind }

func (p *UnconfiguredProvider) err() error {
	return fmt.Errorf("renderer %q is not available: %s", p.kind, p.reason)
}

func (p *UnconfiguredProvider) Prepare(_ context.Context, job *Job) error {
	err := p.err()
	job.SetState(StatusError, err.Error())
	return err
}

func (p *UnconfiguredProvider) Render(_ context.Context, job *Job) error {
	err := p.err()
	job.SetState(StatusError, err.Error())
	return err
}

func (p *UnconfiguredProvider) Status(_ context.Context, job *Job) (State, error) {
	return job.State(), p.err()
}

func (p *UnconfiguredProvider) CollectOutputs(_ context.Context, _ *Job) (map[string]any, error) {
	return nil, p.err()
}

func (p *UnconfiguredProvider) Cancel(_ context.Context, _ *Job) error {
	return p.err()
}
