//go:build !amd64

package vmm

// defaultMMU is not available on this architecture; an MMU must be
// registered with SetMMU.
var defaultMMU MMU
