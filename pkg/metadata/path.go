package metadata

import (
	"strings"
)

// Path is an ordered list of name components rooted at a store.
//
// Paths produced by the directory service are rooted at the process-wide root
// store and cross into child stores through anchors. A Path is a value: it
// carries no freshness guarantee beyond the transaction it was computed in.
type Path struct {
	SID      SID
	Elements []string
}

// NewPath builds a Path from its components.
func NewPath(sid SID, elements ...string) Path {
	e := make([]string, len(elements))
	copy(e, elements)
	return Path{SID: sid, Elements: e}
}

// ParsePath splits a slash-separated string into a Path. Empty components are dropped.
func ParsePath(sid SID, s string) Path {
	var elements []string
	for _, e := range strings.Split(s, "/") {
		if e != "" {
			elements = append(elements, e)
		}
	}
	return Path{SID: sid, Elements: elements}
}

// IsEmpty reports whether the path names the store root.
func (p Path) IsEmpty() bool {
	return len(p.Elements) == 0
}

// Append returns a new path with name appended.
func (p Path) Append(name string) Path {
	e := make([]string, len(p.Elements), len(p.Elements)+1)
	copy(e, p.Elements)
	return Path{SID: p.SID, Elements: append(e, name)}
}

// Parent returns the path without its last component. The parent of the empty
// path is the empty path.
func (p Path) Parent() Path {
	if p.IsEmpty() {
		return p
	}
	return Path{SID: p.SID, Elements: p.Elements[:len(p.Elements)-1]}
}

// Last returns the last component, or "" for the empty path.
func (p Path) Last() string {
	if p.IsEmpty() {
		return ""
	}
	return p.Elements[len(p.Elements)-1]
}

// Equal reports whether p and q name the same location.
func (p Path) Equal(q Path) bool {
	if p.SID != q.SID || len(p.Elements) != len(q.Elements) {
		return false
	}
	for i := range p.Elements {
		if p.Elements[i] != q.Elements[i] {
			return false
		}
	}
	return true
}

// IsUnderOrEqual reports whether p equals q or is a descendant of q.
func (p Path) IsUnderOrEqual(q Path) bool {
	if p.SID != q.SID || len(p.Elements) < len(q.Elements) {
		return false
	}
	for i := range q.Elements {
		if p.Elements[i] != q.Elements[i] {
			return false
		}
	}
	return true
}

// String renders the path as "<sid>:/a/b".
func (p Path) String() string {
	return p.SID.String() + ":/" + strings.Join(p.Elements, "/")
}

// Relative renders the path without its store prefix.
func (p Path) Relative() string {
	return "/" + strings.Join(p.Elements, "/")
}

// ResolvedPath is a Path paired with the SOID of every prefix.
//
// SOIDs[i] identifies the object named by Elements[:i+1]. When a component is
// shared by an anchor and the root of its locally present store, the SOID is
// the store root, so walking SOIDs backwards never needs to re-resolve anchors.
type ResolvedPath struct {
	Path
	SOIDs []SOID
}

// NewResolvedPath pairs a path with its SOIDs. It panics if the lengths differ.
func NewResolvedPath(path Path, soids []SOID) ResolvedPath {
	if len(path.Elements) != len(soids) {
		panic("resolved path: element/SOID count mismatch")
	}
	return ResolvedPath{Path: path, SOIDs: soids}
}

// RootResolvedPath is the resolved path of the root store's ROOT.
func RootResolvedPath(sid SID) ResolvedPath {
	return ResolvedPath{Path: Path{SID: sid}}
}

// SOID returns the SOID of the last component. ok is false for the empty path,
// whose object is the ROOT of the root store.
func (rp ResolvedPath) SOID() (SOID, bool) {
	if len(rp.SOIDs) == 0 {
		return SOID{}, false
	}
	return rp.SOIDs[len(rp.SOIDs)-1], true
}

// Parent returns the resolved path of the parent component.
func (rp ResolvedPath) Parent() ResolvedPath {
	if len(rp.SOIDs) == 0 {
		return rp
	}
	return ResolvedPath{Path: rp.Path.Parent(), SOIDs: rp.SOIDs[:len(rp.SOIDs)-1]}
}

// Join returns a new resolved path extended with one component.
func (rp ResolvedPath) Join(soid SOID, name string) ResolvedPath {
	soids := make([]SOID, len(rp.SOIDs), len(rp.SOIDs)+1)
	copy(soids, rp.SOIDs)
	return ResolvedPath{Path: rp.Path.Append(name), SOIDs: append(soids, soid)}
}

// Substitute returns a copy whose last component is renamed and re-identified.
func (rp ResolvedPath) Substitute(soid SOID, name string) ResolvedPath {
	if len(rp.SOIDs) == 0 {
		return rp
	}
	return rp.Parent().Join(soid, name)
}
