package session

// LabelCache keeps every label ever used in a working directory, in first
// appearance order and without duplicates. Positions in the list are what
// quick label selection refers to, so the order never changes once a
// label is in.
type LabelCache struct {
	labels []string
	index  map[string]int
	dirty  bool
}

// NewLabelCache seeds a cache from a persisted label list.
func NewLabelCache(initial []string) *LabelCache {
	c := &LabelCache{index: map[string]int{}}
	for _, label := range initial {
		c.add(label)
	}
	return c
}

func (c *LabelCache) add(label string) bool {
	if label == "" {
		return false
	}
	if _, ok := c.index[label]; ok {
		return false
	}
	c.index[label] = len(c.labels)
	c.labels = append(c.labels, label)
	return true
}

// Observe folds a record's labels into the cache.
func (c *LabelCache) Observe(labels []string) {
	for _, label := range labels {
		if c.add(label) {
			c.dirty = true
		}
	}
}

// Add registers a single label and reports whether it was new.
func (c *LabelCache) Add(label string) bool {
	if !c.add(label) {
		return false
	}
	c.dirty = true
	return true
}

// Labels returns a copy of the label list in first-seen order.
func (c *LabelCache) Labels() []string {
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

// At returns the label at a zero-based position.
func (c *LabelCache) At(i int) (string, bool) {
	if i < 0 || i >= len(c.labels) {
		return "", false
	}
	return c.labels[i], true
}

// Position returns the zero-based position of a label, or -1.
func (c *LabelCache) Position(label string) int {
	if i, ok := c.index[label]; ok {
		return i
	}
	return -1
}

func (c *LabelCache) Len() int {
	return len(c.labels)
}

// Dirty reports whether the cache holds labels not yet persisted.
func (c *LabelCache) Dirty() bool {
	return c.dirty
}

// MarkSaved clears the dirty flag after a successful persist.
func (c *LabelCache) MarkSaved() {
	c.dirty = false
}
