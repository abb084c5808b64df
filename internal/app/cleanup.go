package app

// cleanupStack releases startup resources in reverse order of acquisition.
type cleanupStack struct {
	fns []func()
}

func (c *cleanupStack) push(fn func()) {
	c.fns = append(c.fns, fn)
}

// unwind runs every pushed func once, newest first.
func (c *cleanupStack) unwind() {
	for i := len(c.fns) - 1; i >= 0; i-- {
		c.fns[i]()
	}
	c.fns = nil
}
