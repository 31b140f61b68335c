package storage

import (
	"fmt"
	"hash/fnv"
)

// Checksum folds the FNV-1a 64-bit hash of each data line into a running
// XOR. Line order does not affect the result, so files can be hashed in
// any interleaving.
type Checksum struct {
	sum     uint64
	enabled bool
}

func NewChecksum(enabled bool) *Checksum {
	return &Checksum{enabled: enabled}
}

// Add hashes one line without its trailing newline.
func (c *Checksum) Add(line string) {
	if !c.enabled {
		return
	}
	h := fnv.New64a()
	h.Write([]byte(line))
	c.sum ^= h.Sum64()
}

func (c *Checksum) Enabled() bool { return c.enabled }

func (c *Checksum) Sum() uint64 { return c.sum }

// String renders the sum the way the CLI prints it.
func (c *Checksum) String() string {
	return fmt.Sprintf("FNV1A64_XOR=%x", c.sum)
}
