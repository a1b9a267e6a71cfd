package afpacket

import (
	"golang.org/x/net/bpf"

	"firestige.xyz/ethresponder/internal/frame"
)

// Filter returns a classic BPF program that accepts ARP and IPv4 frames up to
// snapLen bytes and drops everything else in the kernel.
func Filter(snapLen uint32) []bpf.Instruction {
	return []bpf.Instruction{
		// ethertype
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(frame.EtherTypeARP), SkipTrue: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(frame.EtherTypeIPv4), SkipFalse: 1},
		bpf.RetConstant{Val: snapLen},
		bpf.RetConstant{Val: 0},
	}
}

// CompileFilter assembles Filter for the socket.
func CompileFilter(snapLen uint32) ([]bpf.RawInstruction, error) {
	return bpf.Assemble(Filter(snapLen))
}
