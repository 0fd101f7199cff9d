package cfg

// Table attaches pass-private state to blocks.
// Each pass owns its own table and resets it when done.
type Table[T any] struct {
	slots map[BlockID]*T
}

// NewTable creates an empty side table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{slots: make(map[BlockID]*T)}
}

// Ensure returns the state for b, allocating a zero value on first use.
func (t *Table[T]) Ensure(b *Block) *T {
	if v, ok := t.slots[b.ID]; ok {
		return v
	}
	v := new(T)
	t.slots[b.ID] = v
	return v
}

// Get returns the state for b if it was allocated.
func (t *Table[T]) Get(b *Block) (*T, bool) {
	v, ok := t.slots[b.ID]
	return v, ok
}

// Len reports the number of allocated slots.
func (t *Table[T]) Len() int { return len(t.slots) }

// Reset drops every slot.
func (t *Table[T]) Reset() {
	clear(t.slots)
}
