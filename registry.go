package serial

import (
	"reflect"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// objectEntry describes one concrete type of a hierarchy.
type objectEntry struct {
	index  int          // ObjectIndex, dense in registration order
	typ    reflect.Type // concrete struct type
	parent reflect.Type // embedded parent level, nil for a base
	embed  int          // field index of the embedded parent
	level  adapter      // traverses the fields this level adds
}

func (e *objectEntry) sizeOf() int { return int(e.typ.Size()) }

// alloc returns zeroed storage for the concrete type.
func (e *objectEntry) alloc() reflect.Value { return reflect.New(e.typ) }

// construct prepares storage through the type's reconstruction strategy.
func (e *objectEntry) construct(storage reflect.Value) reflect.Value {
	return construct(e.typ, storage)
}

// linkedLevel is one level of a concrete object: the serializer entry of the
// level and the field path from the concrete type to the level's struct.
type linkedLevel struct {
	entry *serializerEntry
	path  []int
}

// serializerEntry is the traversal closure of one concrete type for one
// archive kind, linked to the entry of its parent level.
type serializerEntry struct {
	index  int // SerializerIndex, dense in link order
	object int
	level  adapter
	base   int           // SerializerIndex of the parent level, -1 for a base
	chain  []linkedLevel // from the bottommost base up to the entry itself
}

type serializerRegistry struct {
	kind     ArchiveKind
	entries  []*serializerEntry
	byObject map[int]*serializerEntry
}

// hierarchy holds both registries of one root interface.
type hierarchy struct {
	root    reflect.Type
	mu      sync.RWMutex
	objects []*objectEntry
	byType  map[reflect.Type]*objectEntry
	kinds   map[ArchiveKind]*serializerRegistry
}

var (
	// regMu serializes registrations across hierarchies.
	regMu       sync.Mutex
	hierarchies = xsync.NewMap[reflect.Type, *hierarchy]()
	members     = xsync.NewMap[reflect.Type, *hierarchy]()
)

func newHierarchy(root reflect.Type) *hierarchy {
	return &hierarchy{
		root:   root,
		byType: make(map[reflect.Type]*objectEntry),
		kinds:  make(map[ArchiveKind]*serializerRegistry),
	}
}

// hierarchyOf returns the hierarchy rooted at the interface type root, or nil.
func hierarchyOf(root reflect.Type) *hierarchy {
	h, _ := hierarchies.Load(root)
	return h
}

// hierarchyMember returns the hierarchy a concrete struct type is registered in, or nil.
func hierarchyMember(t reflect.Type) *hierarchy {
	h, _ := members.Load(t)
	return h
}

// add registers t. Callers hold regMu.
func (h *hierarchy) add(t reflect.Type, parent reflect.Type, embed int, level adapter) *objectEntry {
	if other := hierarchyMember(t); other != nil {
		if other == h {
			h.mu.RLock()
			e := h.byType[t]
			h.mu.RUnlock()
			if e.parent != parent {
				fatalf("parent(T) unchanged", "%s is already registered under %s with parent %s",
					typeName(t), typeName(h.root), typeName(e.parent))
			}
			return e
		}
		fatalf("single root", "%s is already registered under %s", typeName(t), typeName(other.root))
	}

	h.mu.Lock()
	e := &objectEntry{index: len(h.objects), typ: t, parent: parent, embed: embed, level: level}
	h.objects = append(h.objects, e)
	h.byType[t] = e
	h.mu.Unlock()

	members.Store(t, h)
	invalidatePlans()
	logger().Debug("registered polymorphic type",
		zap.String("root", typeName(h.root)),
		zapType(t),
		zap.Int("objectIndex", e.index),
	)
	return e
}

// entry returns the object entry of a concrete struct type, or nil.
func (h *hierarchy) entry(t reflect.Type) *objectEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byType[t]
}

// object returns the entry at index i, or nil when the index was never assigned.
func (h *hierarchy) object(i uint64) *objectEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i >= uint64(len(h.objects)) {
		return nil
	}
	return h.objects[i]
}

func (h *hierarchy) size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.objects)
}

// linked returns the serializer entry of obj for kind, creating and linking
// it on first use.
func (h *hierarchy) linked(kind ArchiveKind, obj *objectEntry) *serializerEntry {
	h.mu.RLock()
	if reg := h.kinds[kind]; reg != nil {
		if e := reg.byObject[obj.index]; e != nil {
			h.mu.RUnlock()
			return e
		}
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	reg := h.kinds[kind]
	if reg == nil {
		reg = &serializerRegistry{kind: kind, byObject: make(map[int]*serializerEntry)}
		h.kinds[kind] = reg
	}
	return h.linkLocked(reg, obj)
}

// linkLocked creates the entry of obj in reg after its parent's, resolving
// the parent by type rather than by index so the link does not depend on the
// order entries were created in. Callers hold h.mu.
func (h *hierarchy) linkLocked(reg *serializerRegistry, obj *objectEntry) *serializerEntry {
	if e := reg.byObject[obj.index]; e != nil {
		return e
	}
	e := &serializerEntry{object: obj.index, level: obj.level, base: -1}
	if obj.parent != nil {
		po := h.byType[obj.parent]
		if po == nil {
			fatalf("registered(parent)", "parent %s of %s is not registered under %s",
				typeName(obj.parent), typeName(obj.typ), typeName(h.root))
		}
		parent := h.linkLocked(reg, po)
		e.base = parent.index
		for _, l := range parent.chain {
			path := append([]int{obj.embed}, l.path...)
			e.chain = append(e.chain, linkedLevel{entry: l.entry, path: path})
		}
	}
	e.index = len(reg.entries)
	e.chain = append(e.chain, linkedLevel{entry: e})
	reg.entries = append(reg.entries, e)
	reg.byObject[obj.index] = e

	logger().Debug("linked polymorphic serializer",
		zap.String("root", typeName(h.root)),
		zap.Stringer("kind", reg.kind),
		zapType(obj.typ),
		zap.Int("serializerIndex", e.index),
		zap.Int("baseIndex", e.base),
	)
	return e
}

// state reports how far t has progressed through registration.
func (h *hierarchy) state(t reflect.Type) Registration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e := h.byType[t]
	if e == nil {
		return Unregistered
	}
	for _, reg := range h.kinds {
		if reg.byObject[e.index] != nil {
			return Linked
		}
	}
	return Registered
}
