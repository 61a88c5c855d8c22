// Package component provides the hierarchical naming shared by sequencers,
// sockets and testbench components.
package component

// A Component is a named node in the testbench hierarchy.
type Component interface {
	Name() string
	FullName() string
	Parent() Component
}

// Base implements Component. It is meant to be embedded.
type Base struct {
	name     string
	parent   Component
	children []Component
}

// NewBase creates a component named name under parent. The parent may be nil
// for a top-level component.
func NewBase(name string, parent Component) *Base {
	b := &Base{name: name, parent: parent}

	if p, ok := parent.(interface{ addChild(Component) }); ok {
		p.addChild(b)
	}

	return b
}

// Name returns the leaf name.
func (b *Base) Name() string {
	return b.name
}

// FullName returns the dot-separated hierarchical name.
func (b *Base) FullName() string {
	if b.parent == nil || b.parent.FullName() == "" {
		return b.name
	}

	return b.parent.FullName() + "." + b.name
}

// Parent returns the parent component, or nil at the top.
func (b *Base) Parent() Component {
	return b.parent
}

// Children returns the components created directly under b.
func (b *Base) Children() []Component {
	return append([]Component(nil), b.children...)
}

func (b *Base) addChild(c Component) {
	b.children = append(b.children, c)
}
