package kernel

// Error describes a kernel error. All kernel errors must be defined as global
// variables that are pointers to the Error structure. Error paths in the
// memory management code run with the vmm lock held and must not allocate, so
// errors.New and fmt.Errorf are off limits there.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface. The returned string is prefixed with
// the module name so log lines can be traced back to their origin.
func (e *Error) Error() string {
	if e.Module == "" {
		return e.Message
	}

	return e.Module + ": " + e.Message
}
