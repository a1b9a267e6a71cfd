package daemon

import (
	// Link drivers register themselves with the driver registry.
	_ "firestige.xyz/ethresponder/internal/driver/pcapfile"
)
