package ftl

import (
	"github.com/ftlgo/ftl/value"
)

// Namespace is the variable scope of a template: the main template has
// one, and every imported library gets its own. A namespace is an ordinary
// hash value, so it can be stored in variables and read with dots.
//
// Lazily imported namespaces load their library on first access. A
// namespace belongs to one render and is not safe for concurrent use.
type Namespace struct {
	vars *value.Hash
	tmpl *Template

	load    func() error
	loadErr error
}

var _ value.MutableObject = (*Namespace)(nil)

func newNamespace(tmpl *Template) *Namespace {
	return &Namespace{vars: value.NewHash(), tmpl: tmpl}
}

func newLazyNamespace(load func(ns *Namespace) error) *Namespace {
	ns := &Namespace{vars: value.NewHash()}
	ns.load = func() error { return load(ns) }
	return ns
}

// ensureLoaded runs a pending lazy import and returns its error, if any.
// The error is remembered; a failed library stays failed.
func (ns *Namespace) ensureLoaded() error {
	if ns.load != nil {
		load := ns.load
		ns.load = nil
		ns.loadErr = load()
	}
	return ns.loadErr
}

// Template returns the template the namespace belongs to. It is nil for a
// lazy namespace that was not accessed yet.
func (ns *Namespace) Template() *Template {
	return ns.tmpl
}

// Get returns a variable of the namespace.
func (ns *Namespace) Get(name string) (value.Value, bool) {
	if ns.ensureLoaded() != nil {
		return value.Undefined(), false
	}
	return ns.vars.Get(name)
}

// Set stores a variable in the namespace.
func (ns *Namespace) Set(name string, v value.Value) {
	ns.vars.Set(name, v)
}

// GetAttr implements value.Object.
func (ns *Namespace) GetAttr(name string) value.Value {
	v, _ := ns.Get(name)
	return v
}

// SetAttr implements value.MutableObject.
func (ns *Namespace) SetAttr(name string, v value.Value) {
	ns.vars.Set(name, v)
}

// Keys implements value.MapObject.
func (ns *Namespace) Keys() []string {
	if ns.ensureLoaded() != nil {
		return nil
	}
	return ns.vars.Keys()
}

// ObjectLen implements value.ObjectWithLen.
func (ns *Namespace) ObjectLen() int {
	return len(ns.Keys())
}

func (ns *Namespace) String() string {
	if ns.tmpl == nil {
		return "<namespace>"
	}
	return "<namespace " + ns.tmpl.name + ">"
}

// materialize surfaces the error of a failed lazy import when v is such a
// namespace.
func materialize(v value.Value) error {
	if obj, ok := v.AsObject(); ok {
		if ns, ok := obj.(*Namespace); ok {
			return ns.ensureLoaded()
		}
	}
	return nil
}
