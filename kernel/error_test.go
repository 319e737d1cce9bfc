package kernel

import "testing"

func TestKernelError(t *testing.T) {
	specs := []struct {
		err *Error
		exp string
	}{
		{&Error{Module: "vmm", Message: "error message"}, "vmm: error message"},
		{&Error{Message: "no module"}, "no module"},
	}

	for specIndex, spec := range specs {
		if got := spec.err.Error(); got != spec.exp {
			t.Errorf("[spec %d] expected err.Error() to return %q; got %q", specIndex, spec.exp, got)
		}
	}
}
