package vmm

import "pagevmm/kernel/mem"

// Page is a virtual page number, i.e. a virtual address with its page offset
// shifted out. Upper-half addresses keep their sign extension so converting
// a Page back to an address yields the original canonical address.
type Page uintptr

// Address returns the first virtual address covered by the page.
func (p Page) Address() uintptr {
	return uintptr(p) << mem.PageShift
}

// Indices returns the table indices that select the page's P1 entry.
func (p Page) Indices() Indices {
	return ToIndices(p.Address())
}

// PageFromAddress returns the Page that contains virtAddr.
func PageFromAddress(virtAddr uintptr) Page {
	return Page(virtAddr >> mem.PageShift)
}
