package queue

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// DisplayCommand is the actuation a sign should perform, derived by the state
// engine. It exists only in transit: once enqueued it lives as a
// model.DownlinkItem until delivered.
type DisplayCommand struct {
	SpaceID     string
	DeviceID    string
	GatewayID   string
	Payload     []byte
	ContentHash string
	FPort       uint8
}

// ContentHash computes the deterministic digest of a command payload and its
// fport. Identical inputs always yield the identical hash; it drives both
// coalescing equality and suppression of already-delivered commands.
func ContentHash(payload []byte, fport uint8) string {
	h := blake3.New()
	h.Write([]byte{fport})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
