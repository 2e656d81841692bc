package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-display-backend/internal/model"
	"parking-display-backend/internal/queue"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSpace() model.Space {
	return model.Space{
		ID:              "S1",
		TenantID:        "t1",
		DisplayDeviceID: "display-0001",
		GatewayID:       "gw-01",
		Enabled:         true,
	}
}

func occupancy(state model.OccupancyState) *model.OccupancySnapshot {
	return &model.OccupancySnapshot{
		SpaceID:    "S1",
		State:      state,
		ObservedAt: testNow.Add(-time.Minute),
		DeviceID:   "sensor-0001",
		FrameSeq:   7,
	}
}

func activeReservation(start, end time.Time) *model.Reservation {
	return &model.Reservation{
		ID:        "res-1",
		TenantID:  "t1",
		SpaceID:   "S1",
		StartTime: start,
		EndTime:   end,
		Status:    model.ReservationActive,
	}
}

func override(state model.DisplayState, expiresAt time.Time) *model.Override {
	return &model.Override{
		SpaceID:   "S1",
		TenantID:  "t1",
		State:     state,
		CreatedAt: testNow.Add(-time.Minute),
		ExpiresAt: expiresAt,
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	policy := DefaultPolicy()
	res := activeReservation(testNow.Add(-10*time.Minute), testNow.Add(20*time.Minute))
	ovr := override(model.DisplayFree, testNow.Add(time.Hour))

	first := Compute(testSpace(), policy, occupancy(model.OccupancyOccupied), res, ovr, testNow)
	for i := 0; i < 50; i++ {
		again := Compute(testSpace(), policy, occupancy(model.OccupancyOccupied), res, ovr, testNow)
		require.Equal(t, first, again, "identical inputs must yield identical output")
		require.Equal(t, first.Payload, again.Payload)
		require.Equal(t, first.ContentHash, again.ContentHash)
	}
}

func TestComputePriorityOrder(t *testing.T) {
	covering := activeReservation(testNow.Add(-10*time.Minute), testNow.Add(20*time.Minute))

	testCases := []struct {
		name        string
		occupancy   *model.OccupancySnapshot
		reservation *model.Reservation
		override    *model.Override
		want        model.DisplayState
	}{
		{
			name:      "override beats reservation and sensor",
			occupancy: occupancy(model.OccupancyOccupied), reservation: covering,
			override: override(model.DisplayFree, testNow.Add(time.Hour)),
			want:     model.DisplayFree,
		},
		{
			name:      "expired override falls through to reservation",
			occupancy: occupancy(model.OccupancyFree), reservation: covering,
			override: override(model.DisplayOccupied, testNow.Add(-time.Second)),
			want:     model.DisplayReserved,
		},
		{
			name:      "reservation beats sensor",
			occupancy: occupancy(model.OccupancyFree), reservation: covering,
			want:      model.DisplayReserved,
		},
		{
			name:      "reservation not covering now is ignored",
			occupancy: occupancy(model.OccupancyFree),
			reservation: activeReservation(
				testNow.Add(time.Hour), testNow.Add(2*time.Hour)),
			want: model.DisplayFree,
		},
		{
			name:      "cancelled reservation is ignored",
			occupancy: occupancy(model.OccupancyOccupied),
			reservation: &model.Reservation{
				StartTime: testNow.Add(-10 * time.Minute),
				EndTime:   testNow.Add(20 * time.Minute),
				Status:    model.ReservationCancelled,
			},
			want: model.DisplayOccupied,
		},
		{
			name:      "sensor free",
			occupancy: occupancy(model.OccupancyFree),
			want:      model.DisplayFree,
		},
		{
			name:      "sensor occupied",
			occupancy: occupancy(model.OccupancyOccupied),
			want:      model.DisplayOccupied,
		},
		{
			name:      "sensor unknown falls through to fallback",
			occupancy: occupancy(model.OccupancyUnknown),
			want:      model.DisplayUnknown,
		},
		{
			name: "no inputs at all",
			want: model.DisplayUnknown,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := resolveState(tc.occupancy, tc.reservation, tc.override, testNow)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestComputeUsesPolicyCodes(t *testing.T) {
	policy := DefaultPolicy()
	policy.Colors[model.DisplayReserved] = 0x42
	policy.Patterns[model.DisplayReserved] = 0x07
	policy.FPort = 20

	res := activeReservation(testNow.Add(-time.Minute), testNow.Add(29*time.Minute))
	cmd := Compute(testSpace(), policy, nil, res, nil, testNow)

	assert.Equal(t, "S1", cmd.SpaceID)
	assert.Equal(t, "display-0001", cmd.DeviceID)
	assert.Equal(t, "gw-01", cmd.GatewayID)
	assert.Equal(t, uint8(20), cmd.FPort)
	assert.Equal(t, []byte{codeReserved, 0x42, 0x07}, cmd.Payload)
	assert.Equal(t, queue.ContentHash(cmd.Payload, cmd.FPort), cmd.ContentHash)
}

func TestComputeDiffersByFPort(t *testing.T) {
	a := DefaultPolicy()
	b := DefaultPolicy()
	b.FPort = a.FPort + 1

	cmdA := Compute(testSpace(), a, occupancy(model.OccupancyFree), nil, nil, testNow)
	cmdB := Compute(testSpace(), b, occupancy(model.OccupancyFree), nil, nil, testNow)
	assert.Equal(t, cmdA.Payload, cmdB.Payload)
	assert.NotEqual(t, cmdA.ContentHash, cmdB.ContentHash, "fport is part of the content hash")
}
