package daemon

import (
	_ "firestige.xyz/ethresponder/internal/driver/afpacket"
	_ "firestige.xyz/ethresponder/internal/driver/tap"
)
