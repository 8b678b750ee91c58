package state

// idWindow remembers ids over two generations. rotate forgets the older
// generation, so memory is bounded by what two generations saw.
type idWindow struct {
	cur  map[string]struct{}
	prev map[string]struct{}
}

func newIDWindow() idWindow {
	return idWindow{
		cur:  make(map[string]struct{}),
		prev: make(map[string]struct{}),
	}
}

func (w idWindow) has(id string) bool {
	if _, ok := w.cur[id]; ok {
		return true
	}
	_, ok := w.prev[id]
	return ok
}

func (w idWindow) add(id string) {
	w.cur[id] = struct{}{}
}

func (w *idWindow) rotate() {
	w.prev, w.cur = w.cur, make(map[string]struct{})
}

func (w idWindow) len() int {
	return len(w.cur) + len(w.prev)
}
