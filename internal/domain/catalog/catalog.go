package catalog

import (
	"errors"
	"fmt"
	"slices"

	apperrors "github.com/target/hrm-scheduler/internal/errors"
)

// Member is one step of a group pipeline.
type Member struct {
	Name   JobName    `json:"name"`
	Period PeriodRule `json:"period,omitempty"`
}

// Definition describes one triggerable job.
type Definition struct {
	Name         JobName       `json:"name"`
	Description  string        `json:"description"`
	Type         JobType       `json:"type"`
	Params       ParamKind     `json:"requiredParameters"`
	Dependencies []JobName     `json:"dependencies"`
	Members      []Member      `json:"members,omitempty"`
	Schedule     string        `json:"schedule,omitempty"`
	Guard        CalendarGuard `json:"calendarGuard,omitempty"`
}

// IsGroup reports whether the definition is executed by the orchestrator.
func (d Definition) IsGroup() bool { return len(d.Members) > 0 }

// Catalog is the immutable set of job definitions and their dependency graph.
type Catalog struct {
	defs  map[JobName]Definition
	order []JobName
	topo  []JobName
}

// New validates defs and builds a catalog. It fails on duplicate names, unknown references,
// group members out of dependency order, and dependency cycles.
func New(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		defs:  make(map[JobName]Definition, len(defs)),
		order: make([]JobName, 0, len(defs)),
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.New("catalog: job name is required")
		}
		if _, dup := c.defs[d.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate job %s", d.Name)
		}
		if d.Params == "" {
			d.Params = ParamsNone
		}
		if d.Dependencies == nil {
			d.Dependencies = []JobName{}
		}
		c.defs[d.Name] = d
		c.order = append(c.order, d.Name)
	}

	if err := c.checkReferences(); err != nil {
		return nil, err
	}
	topo, err := c.topologicalSort()
	if err != nil {
		return nil, err
	}
	c.topo = topo
	if err := c.checkGroupOrder(); err != nil {
		return nil, err
	}
	return c, nil
}

// MustNew is New that panics on error; intended for the built-in catalog.
func MustNew(defs []Definition) *Catalog {
	c, err := New(defs)
	if err != nil {
		//nolint:forbidigo // built-in catalog misconfiguration is a programming error
		panic(err)
	}
	return c
}

func (c *Catalog) checkReferences() error {
	for _, name := range c.order {
		d := c.defs[name]
		for _, dep := range d.Dependencies {
			if _, ok := c.defs[dep]; !ok {
				return fmt.Errorf("catalog: %s depends on unknown job %s", name, dep)
			}
			if dep == name {
				return fmt.Errorf("catalog: %s depends on itself", name)
			}
		}
		for _, m := range d.Members {
			md, ok := c.defs[m.Name]
			if !ok {
				return fmt.Errorf("catalog: group %s references unknown job %s", name, m.Name)
			}
			if md.IsGroup() {
				return fmt.Errorf("catalog: group %s nests group %s", name, m.Name)
			}
		}
	}
	return nil
}

// topologicalSort orders jobs so that every dependency precedes its dependents (Kahn's algorithm).
// Ties keep declaration order.
func (c *Catalog) topologicalSort() ([]JobName, error) {
	indegree := make(map[JobName]int, len(c.order))
	dependents := make(map[JobName][]JobName, len(c.order))
	for _, name := range c.order {
		indegree[name] += 0
		for _, dep := range c.defs[name].Dependencies {
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []JobName
	for _, name := range c.order {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	out := make([]JobName, 0, len(c.order))
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		out = append(out, next)
		for _, d := range dependents[next] {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if len(out) != len(c.order) {
		var cyclic []JobName
		for _, name := range c.order {
			if indegree[name] > 0 {
				cyclic = append(cyclic, name)
			}
		}
		return nil, fmt.Errorf("catalog: dependency cycle among %v", cyclic)
	}
	return out, nil
}

// checkGroupOrder ensures that inside a group every member runs after the members it depends on.
func (c *Catalog) checkGroupOrder() error {
	for _, name := range c.order {
		d := c.defs[name]
		pos := make(map[JobName]int, len(d.Members))
		for i, m := range d.Members {
			pos[m.Name] = i
		}
		for i, m := range d.Members {
			for _, dep := range c.defs[m.Name].Dependencies {
				if j, ok := pos[dep]; ok && j > i {
					return fmt.Errorf("catalog: group %s runs %s before its dependency %s", name, m.Name, dep)
				}
			}
		}
	}
	return nil
}

// Get returns the definition for name.
func (c *Catalog) Get(name JobName) (Definition, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// Parse resolves user input (case-insensitive, manual prefix allowed) to a known job name.
func (c *Catalog) Parse(s string) (JobName, error) {
	name := normalizeName(s)
	if name == "" {
		return "", apperrors.ParametersInvalid("jobName", "jobName is required")
	}
	if _, ok := c.defs[name]; !ok {
		return "", apperrors.ParametersInvalid("jobName", fmt.Sprintf("unknown job %q", s))
	}
	return name, nil
}

// List returns every definition in declaration order.
func (c *Catalog) List() []Definition {
	out := make([]Definition, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.defs[name])
	}
	return out
}

// Names returns every job name in declaration order.
func (c *Catalog) Names() []JobName {
	return slices.Clone(c.order)
}

// Scheduled returns the definitions bound to a cron schedule.
func (c *Catalog) Scheduled() []Definition {
	var out []Definition
	for _, name := range c.order {
		if d := c.defs[name]; d.Schedule != "" {
			out = append(out, d)
		}
	}
	return out
}

// TopologicalOrder returns job names ordered so that dependencies come first.
func (c *Catalog) TopologicalOrder() []JobName {
	return slices.Clone(c.topo)
}

// Groups returns the group definitions in declaration order.
func (c *Catalog) Groups() []Definition {
	var out []Definition
	for _, name := range c.order {
		if d := c.defs[name]; d.IsGroup() {
			out = append(out, d)
		}
	}
	return out
}
