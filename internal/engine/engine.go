package engine

import (
	"time"

	"parking-display-backend/internal/model"
	"parking-display-backend/internal/queue"
)

// Payload state codes understood by the display firmware.
const (
	codeFree     = 0x00
	codeOccupied = 0x01
	codeReserved = 0x02
	codeUnknown  = 0x03
)

// Policy is per-tenant display configuration: which color and pattern codes
// the tenant's signs render for each state, how long an admin override lives,
// and the fport commands are sent on.
type Policy struct {
	Colors         map[model.DisplayState]uint8
	Patterns       map[model.DisplayState]uint8
	OverrideExpiry time.Duration
	FPort          uint8
}

// DefaultPolicy returns the policy applied to tenants with no stored one.
func DefaultPolicy() Policy {
	return Policy{
		Colors: map[model.DisplayState]uint8{
			model.DisplayFree:     0x01, // green
			model.DisplayOccupied: 0x02, // red
			model.DisplayReserved: 0x03, // amber
			model.DisplayUnknown:  0x00, // off
		},
		Patterns: map[model.DisplayState]uint8{
			model.DisplayFree:     0x00,
			model.DisplayOccupied: 0x00,
			model.DisplayReserved: 0x01,
			model.DisplayUnknown:  0x02,
		},
		OverrideExpiry: time.Hour,
		FPort:          10,
	}
}

// Compute derives the display command for a space. It is a pure function:
// identical inputs always produce an identical command. Priority, highest
// wins: unexpired admin override, ACTIVE reservation covering now, the latest
// occupancy snapshot, then the UNKNOWN fallback.
func Compute(space model.Space, policy Policy, occupancy *model.OccupancySnapshot, reservation *model.Reservation, override *model.Override, now time.Time) queue.DisplayCommand {
	state := resolveState(occupancy, reservation, override, now)
	payload := encodePayload(state, policy)
	return queue.DisplayCommand{
		SpaceID:     space.ID,
		DeviceID:    space.DisplayDeviceID,
		GatewayID:   space.GatewayID,
		Payload:     payload,
		ContentHash: queue.ContentHash(payload, policy.FPort),
		FPort:       policy.FPort,
	}
}

// resolveState walks the priority chain in order and returns the first
// source that applies.
func resolveState(occupancy *model.OccupancySnapshot, reservation *model.Reservation, override *model.Override, now time.Time) model.DisplayState {
	if override != nil && !override.Expired(now) {
		return override.State
	}
	if reservation != nil && reservation.Status == model.ReservationActive && reservation.Covers(now) {
		return model.DisplayReserved
	}
	if occupancy != nil {
		switch occupancy.State {
		case model.OccupancyFree:
			return model.DisplayFree
		case model.OccupancyOccupied:
			return model.DisplayOccupied
		}
	}
	return model.DisplayUnknown
}

func encodePayload(state model.DisplayState, policy Policy) []byte {
	var code byte
	switch state {
	case model.DisplayFree:
		code = codeFree
	case model.DisplayOccupied:
		code = codeOccupied
	case model.DisplayReserved:
		code = codeReserved
	default:
		code = codeUnknown
	}
	return []byte{code, policy.Colors[state], policy.Patterns[state]}
}
