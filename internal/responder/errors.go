package responder

import (
	"fmt"
	"net/netip"

	"firestige.xyz/ethresponder/internal/core"
)

func errBadChecksum(layer string) error {
	return fmt.Errorf("%s: %w", layer, core.ErrBadChecksum)
}

func errCacheMiss(addr netip.Addr) error {
	return fmt.Errorf("reply to %s: %w", addr, core.ErrCacheMiss)
}

func errUnsupported(what string) error {
	return fmt.Errorf("unsupported: %s", what)
}
