package projection

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/ormcore/internal/orm/schema"
)

var (
	// ErrMaxDepthExceeded is returned when a shape nests deeper than the planner allows
	ErrMaxDepthExceeded = errors.New("maximum projection depth exceeded")

	// ErrInvalidShape is returned when a shape expression cannot be parsed
	ErrInvalidShape = errors.New("invalid shape")
)

// DefaultMaxDepth is the default navigation depth limit
const DefaultMaxDepth = 10

// Planner builds fetch plans against a frozen model. It holds no mutable
// state and may be shared between goroutines.
type Planner struct {
	model    *schema.FrozenModel
	logger   *zap.Logger
	maxDepth int
}

// Option configures a Planner
type Option func(*Planner)

// WithLogger sets the planner logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMaxDepth limits how deep a shape may nest navigations
func WithMaxDepth(depth int) Option {
	return func(p *Planner) {
		if depth > 0 {
			p.maxDepth = depth
		}
	}
}

// NewPlanner creates a planner for model
func NewPlanner(model *schema.FrozenModel, opts ...Option) *Planner {
	p := &Planner{
		model:    model,
		logger:   zap.NewNop(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type pending struct {
	step  *FetchStep
	shape *Shape
}

// Plan turns a shape rooted at an entity into a fetch plan with one step
// per distinct navigation path, ordered breadth-first
func (p *Planner) Plan(root string, shape *Shape) (*FetchPlan, error) {
	entity, err := p.model.Lookup(root)
	if err != nil {
		return nil, err
	}
	if shape == nil {
		shape = &Shape{}
	}

	plan := &FetchPlan{Root: entity, Shape: shape.Clone()}
	rootStep := &FetchStep{Parent: -1, Entity: entity}
	plan.Steps = append(plan.Steps, rootStep)

	queue := []pending{{step: rootStep, shape: shape}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := p.expand(plan, current.step, current.shape)
		if err != nil {
			return nil, err
		}
		queue = append(queue, children...)
	}

	p.logger.Debug("fetch plan built",
		zap.String("root", root),
		zap.String("shape", shape.String()),
		zap.Int("steps", len(plan.Steps)))

	return plan, nil
}

// expand selects the properties of step and appends a child step for every
// navigation in its shape
func (p *Planner) expand(plan *FetchPlan, step *FetchStep, shape *Shape) ([]pending, error) {
	var selected []string
	type navigation struct {
		name  string
		shape *Shape
	}
	var navigations []navigation

	for _, e := range shape.entries {
		if e.child == nil && step.Entity.HasProperty(e.name) {
			selected = append(selected, e.name)
			continue
		}
		if e.child == nil {
			if _, err := p.model.Navigate(step.Entity.Name, e.name); err != nil {
				return nil, fmt.Errorf("%s: %w", step.describe(), &schema.ModelError{
					Kind:     schema.ErrUnknownProperty,
					Entity:   step.Entity.Name,
					Property: e.name,
					Message:  "not a property or navigation",
				})
			}
		}
		child := e.child
		if child == nil {
			child = &Shape{}
		}
		navigations = append(navigations, navigation{name: e.name, shape: child})
	}

	if len(selected) == 0 {
		selected = step.Entity.PropertyNames()
	}
	for _, name := range selected {
		step.addProperty(name, false)
	}
	if !step.IsRoot() {
		step.addProperty(step.ownKey(), true)
	}

	var children []pending
	for _, nav := range navigations {
		route, err := p.model.Navigate(step.Entity.Name, nav.name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.describe(), err)
		}

		depth := step.Depth + 1
		if depth > p.maxDepth {
			return nil, fmt.Errorf("%w: %s.%s is %d levels deep (max %d)",
				ErrMaxDepthExceeded, step.describe(), nav.name, depth, p.maxDepth)
		}

		child := newChildStep(len(plan.Steps), step, route, depth)
		step.addProperty(child.ParentKey, true)
		plan.Steps = append(plan.Steps, child)
		children = append(children, pending{step: child, shape: nav.shape})
	}

	return children, nil
}

// newChildStep links a step to its parent through route. Its properties
// are filled in when it is expanded.
func newChildStep(index int, parent *FetchStep, route schema.Route, depth int) *FetchStep {
	path := route.Name
	if parent.Path != "" {
		path = parent.Path + "." + route.Name
	}

	step := &FetchStep{
		Index:        index,
		Path:         path,
		Entity:       route.Target,
		Parent:       parent.Index,
		Relationship: route.Relationship,
		Direction:    route.Direction,
		Many:         route.Many(),
		Depth:        depth,
	}

	rel := route.Relationship
	switch {
	case rel.Cardinality == schema.ManyToMany:
		step.ParentKey = route.Source.PrimaryKey().Name
		step.TargetKey = route.Target.PrimaryKey().Name
		step.Join = rel.Join
		if route.Direction == schema.PrincipalToDependent {
			step.MatchKey = rel.JoinPrincipalKey.Name
			step.JoinTargetKey = rel.JoinDependentKey.Name
		} else {
			step.MatchKey = rel.JoinDependentKey.Name
			step.JoinTargetKey = rel.JoinPrincipalKey.Name
		}
	case route.Direction == schema.PrincipalToDependent:
		step.ParentKey = rel.Principal.PrimaryKey().Name
		step.MatchKey = rel.ForeignKey.Name
	default:
		step.ParentKey = rel.ForeignKey.Name
		step.MatchKey = rel.Principal.PrimaryKey().Name
	}

	return step
}

// FetchStep is one batched fetch. Every step after the root fetches the
// rows of Entity whose MatchKey is among the ParentKey values of the rows
// fetched by the parent step.
type FetchStep struct {
	Index int
	// Path is the navigation path from the root, empty for the root step
	Path   string
	Entity *schema.Entity
	Depth  int

	// Properties lists what to fetch. Implicit holds the keys added only to
	// stitch parents and children; callers may strip them from results.
	Properties []string
	Implicit   []string

	// Parent is the index of the parent step, -1 for the root
	Parent       int
	Relationship *schema.Relationship
	Direction    schema.Direction
	Many         bool

	ParentKey string
	MatchKey  string

	// Many-to-many steps match MatchKey on the join entity, whose
	// JoinTargetKey references TargetKey on Entity
	Join          *schema.Entity
	JoinTargetKey string
	TargetKey     string
}

// IsRoot returns true for the first step of a plan
func (s *FetchStep) IsRoot() bool {
	return s.Parent < 0
}

// Name returns the navigation this step follows, empty for the root
func (s *FetchStep) Name() string {
	if i := strings.LastIndex(s.Path, "."); i >= 0 {
		return s.Path[i+1:]
	}
	return s.Path
}

// IsImplicit returns true if the property was only added for stitching
func (s *FetchStep) IsImplicit(name string) bool {
	for _, p := range s.Implicit {
		if p == name {
			return true
		}
	}
	return false
}

// ownKey is the property of this step's rows matched against parent keys
func (s *FetchStep) ownKey() string {
	if s.Join != nil {
		return s.TargetKey
	}
	return s.MatchKey
}

func (s *FetchStep) addProperty(name string, implicit bool) {
	for _, p := range s.Properties {
		if p == name {
			return
		}
	}
	s.Properties = append(s.Properties, name)
	if implicit {
		s.Implicit = append(s.Implicit, name)
	}
}

func (s *FetchStep) describe() string {
	if s.Path == "" {
		return s.Entity.Name
	}
	return s.Path
}

// FetchPlan is an ordered list of fetch steps. Steps appear breadth-first:
// every parent precedes its children.
type FetchPlan struct {
	Root  *schema.Entity
	Shape *Shape
	Steps []*FetchStep
}

// Step returns the step for a navigation path ("" for the root)
func (p *FetchPlan) Step(path string) (*FetchStep, bool) {
	for _, step := range p.Steps {
		if step.Path == path {
			return step, true
		}
	}
	return nil, false
}

// Children returns the direct child steps of a step
func (p *FetchPlan) Children(index int) []*FetchStep {
	var children []*FetchStep
	for _, step := range p.Steps {
		if step.Parent == index {
			children = append(children, step)
		}
	}
	return children
}

// String renders the plan one step per line
func (p *FetchPlan) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Fetch plan for %s (%d steps)\n", p.Root.Name, len(p.Steps)))

	for _, step := range p.Steps {
		props := make([]string, len(step.Properties))
		for i, name := range step.Properties {
			if step.IsImplicit(name) {
				props[i] = "+" + name
			} else {
				props[i] = name
			}
		}

		if step.IsRoot() {
			b.WriteString(fmt.Sprintf("  %d. %s [%s]\n",
				step.Index+1, step.Entity.TableName, strings.Join(props, ", ")))
			continue
		}

		arity := "one"
		if step.Many {
			arity = "many"
		}
		parent := p.Steps[step.Parent]
		source := step.Entity.TableName + "." + step.MatchKey
		if step.Join != nil {
			source = fmt.Sprintf("%s.%s via %s.%s", step.Entity.TableName, step.TargetKey,
				step.Join.TableName, step.MatchKey)
		}
		b.WriteString(fmt.Sprintf("  %d. %s -> %s [%s] where %s in %s.%s (%s)\n",
			step.Index+1, step.Path, step.Entity.Name, strings.Join(props, ", "),
			source, parent.Entity.TableName, step.ParentKey, arity))
	}

	return b.String()
}
