package terrastream

// ResourceID is a generation-checked handle into the map's resource
// arena. Caches and the completion queue refer to resources only through
// these handles, so a handle that outlives its resource resolves to nil.
type ResourceID struct {
	index uint32
	gen   uint32
}

func (id ResourceID) Valid() bool {
	return id.gen != 0
}

type arenaSlot struct {
	gen uint32
	res *resource
}

type resourceArena struct {
	slots []arenaSlot
	free  []uint32
	live  int
}

func (a *resourceArena) add(r *resource) ResourceID {
	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		index = uint32(len(a.slots))
		a.slots = append(a.slots, arenaSlot{})
	}

	slot := &a.slots[index]
	slot.gen++
	if slot.gen == 0 {
		slot.gen = 1
	}
	slot.res = r
	a.live++
	return ResourceID{index: index, gen: slot.gen}
}

func (a *resourceArena) get(id ResourceID) *resource {
	if !id.Valid() || int(id.index) >= len(a.slots) {
		return nil
	}
	slot := &a.slots[id.index]
	if slot.gen != id.gen {
		return nil
	}
	return slot.res
}

func (a *resourceArena) release(id ResourceID) {
	if a.get(id) == nil {
		return
	}
	slot := &a.slots[id.index]
	slot.res = nil
	slot.gen++
	a.free = append(a.free, id.index)
	a.live--
}

func (a *resourceArena) len() int {
	return a.live
}
