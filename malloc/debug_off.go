//go:build !malloc_debug

package malloc

func (a *Allocator) debugCheck(lineTag string) {}
