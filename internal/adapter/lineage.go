package adapter

import (
	"reflect"
)

// ancestor is one node of a type lineage. typ is the identity a registration uses for
// the node; embedded structs are always identified by their pointer type.
type ancestor struct {
	typ   reflect.Type
	path  []int
	depth int
}

// lineage is the precomputed ancestry of a concrete type: the type itself at depth 0,
// then its exported embedded structs breadth first.
type lineage struct {
	root  reflect.Type
	nodes []ancestor
}

type lineageStep struct {
	st          reflect.Type // struct type whose fields are walked next
	path        []int
	depth       int
	addressable bool
	seen        map[reflect.Type]bool
}

func buildLineage(t reflect.Type) *lineage {
	l := &lineage{
		root:  t,
		nodes: []ancestor{{typ: t, depth: 0}},
	}

	var first lineageStep
	switch {
	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct:
		first = lineageStep{st: t.Elem(), addressable: true}
	case t.Kind() == reflect.Struct:
		first = lineageStep{st: t}
	default:
		return l
	}
	first.seen = map[reflect.Type]bool{first.st: true}

	queue := []lineageStep{first}
	for len(queue) > 0 {
		step := queue[0]
		queue = queue[1:]

		for i := 0; i < step.st.NumField(); i++ {
			field := step.st.Field(i)
			if !field.Anonymous || !field.IsExported() {
				continue
			}

			path := make([]int, len(step.path)+1)
			copy(path, step.path)
			path[len(step.path)] = i

			var (
				typ         reflect.Type
				next        reflect.Type
				addressable bool
			)
			ft := field.Type
			switch {
			case ft.Kind() == reflect.Pointer && ft.Elem().Kind() == reflect.Struct:
				typ, next, addressable = ft, ft.Elem(), true
			case ft.Kind() == reflect.Struct:
				// A value owner cannot lend out its embedded structs, only copies.
				if step.addressable {
					typ = reflect.PointerTo(ft)
				}
				next, addressable = ft, step.addressable
			default:
				continue
			}

			// Recursive embedding through pointers would never terminate.
			if step.seen[next] {
				continue
			}

			depth := step.depth + 1
			if typ != nil {
				l.nodes = append(l.nodes, ancestor{typ: typ, path: path, depth: depth})
			}

			seen := make(map[reflect.Type]bool, len(step.seen)+1)
			for k := range step.seen {
				seen[k] = true
			}
			seen[next] = true
			queue = append(queue, lineageStep{
				st:          next,
				path:        path,
				depth:       depth,
				addressable: addressable,
				seen:        seen,
			})
		}
	}
	return l
}

// project walks path from owner to the embedded value and returns it as type want.
func project(owner reflect.Value, path []int, want reflect.Type) (reflect.Value, error) {
	if len(path) == 0 {
		return owner, nil
	}

	v := owner
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, invalidStateError("project", "owner %s is a nil pointer", v.Type())
		}
		v = v.Elem()
	}
	for i, idx := range path {
		v = v.Field(idx)
		if i < len(path)-1 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, invalidStateError("project", "embedded %s is nil", v.Type())
			}
			v = v.Elem()
		}
	}

	switch {
	case v.Kind() == reflect.Pointer && v.Type() == want:
	case v.CanAddr() && reflect.PointerTo(v.Type()) == want:
		v = v.Addr()
	default:
		return reflect.Value{}, invalidStateError("project", "cannot project %s to %s", owner.Type(), want)
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return reflect.Value{}, invalidStateError("project", "embedded %s is nil", v.Type())
	}
	return v, nil
}
