package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/target/hrm-scheduler/internal/core"
	"github.com/target/hrm-scheduler/internal/domain/catalog"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
)

// HandlerResolver maps catalog jobs to their handlers and dry-run previews.
type HandlerResolver interface {
	Handler(name catalog.JobName) (core.JobHandler, error)
	Preview(ctx context.Context, name catalog.JobName, params catalog.Params) (map[string]any, error)
}

// HandlerRegistryOptions groups dependencies for HandlerRegistry.
type HandlerRegistryOptions struct {
	Catalog  *catalog.Catalog                    // Required
	Handlers map[catalog.JobName]core.JobHandler // Required: one entry per non-group job
	// Partial allows jobs without a handler; resolving them yields NoHandlerFound.
	Partial bool
}

// HandlerRegistry is the typed job name to handler table.
type HandlerRegistry struct {
	catalog  *catalog.Catalog
	handlers map[catalog.JobName]core.JobHandler
}

var _ HandlerResolver = (*HandlerRegistry)(nil)

// NewHandlerRegistry validates the handler table against the catalog. Every non-group job
// must have a handler unless Partial is set, and no handler may be bound to an unknown job or a group.
func NewHandlerRegistry(opts HandlerRegistryOptions) (*HandlerRegistry, error) {
	if opts.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	handlers := make(map[catalog.JobName]core.JobHandler, len(opts.Handlers))
	for name, h := range opts.Handlers {
		def, ok := opts.Catalog.Get(name)
		if !ok {
			return nil, fmt.Errorf("handler registered for unknown job %s", name)
		}
		if def.IsGroup() {
			return nil, fmt.Errorf("handler registered for group %s", name)
		}
		if h == nil {
			return nil, fmt.Errorf("nil handler for job %s", name)
		}
		handlers[name] = h
	}
	if !opts.Partial {
		var missing []catalog.JobName
		for _, def := range opts.Catalog.List() {
			if _, ok := handlers[def.Name]; !ok && !def.IsGroup() {
				missing = append(missing, def.Name)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("no handler registered for %v", missing)
		}
	}
	return &HandlerRegistry{catalog: opts.Catalog, handlers: handlers}, nil
}

// Handler returns the handler of name or a NoHandlerFound error.
func (r *HandlerRegistry) Handler(name catalog.JobName) (core.JobHandler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, apperrors.NoHandlerFound(string(name))
	}
	return h, nil
}

// Preview delegates to the handler when it implements core.JobPreviewer and otherwise
// describes the job from its catalog entry.
func (r *HandlerRegistry) Preview(ctx context.Context, name catalog.JobName, params catalog.Params) (map[string]any, error) {
	def, ok := r.catalog.Get(name)
	if !ok {
		return nil, apperrors.ParametersInvalid("jobName", fmt.Sprintf("unknown job %q", name))
	}
	h, err := r.Handler(name)
	if err != nil {
		return nil, err
	}
	if p, ok := h.(core.JobPreviewer); ok {
		return p.Preview(ctx, params)
	}
	preview := map[string]any{
		"job":          string(name),
		"description":  def.Description,
		"wouldExecute": true,
	}
	if params.HasPeriod() {
		preview["period"] = params.PeriodKey()
	}
	return preview, nil
}
