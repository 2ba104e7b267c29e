package classify

import (
	"fmt"

	"golang.org/x/net/bpf"
)

// Filter runs a classic BPF program over frames in user space, for sources
// that cannot filter in the kernel.
type Filter struct {
	vm *bpf.VM
}

// NewFilter loads a compiled program.
func NewFilter(prog []bpf.RawInstruction) (*Filter, error) {
	insns, ok := bpf.Disassemble(prog)
	if !ok {
		return nil, fmt.Errorf("failed to decode BPF program")
	}
	vm, err := bpf.NewVM(insns)
	if err != nil {
		return nil, fmt.Errorf("failed to load BPF program: %w", err)
	}
	return &Filter{vm: vm}, nil
}

// Match reports whether the program accepts frame.
func (f *Filter) Match(frame []byte) bool {
	n, err := f.vm.Run(frame)
	return err == nil && n > 0
}
