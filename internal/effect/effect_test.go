package effect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intuitionamiga/auralcore/internal/backend"
)

func openHeadless(t *testing.T) *backend.HeadlessBackend {
	t.Helper()
	b := backend.NewHeadlessBackend()
	_, err := b.Open("", nil)
	require.NoError(t, err)
	return b
}

func TestNewClampsSlotCountToSpecRange(t *testing.T) {
	be := openHeadless(t)
	p, err := New(be, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, len(p.slots))

	be2 := openHeadless(t)
	p2, err := New(be2, 20)
	require.NoError(t, err)
	assert.Equal(t, 8, len(p2.slots))
}

func TestAssignGroupsByNearestReference(t *testing.T) {
	be := openHeadless(t)
	p, err := New(be, 2)
	require.NoError(t, err)

	candidates := []Candidate{
		{Owner: 1, Params: backend.ReverbParams{DecayTime: 1.0}, DirectGain: 1},
		{Owner: 2, Params: backend.ReverbParams{DecayTime: 1.01}, DirectGain: 1},
		{Owner: 3, Params: backend.ReverbParams{DecayTime: 10.0}, DirectGain: 1},
	}
	assignment, err := p.Assign(candidates, 5.0, 0.016)
	require.NoError(t, err)
	require.Len(t, assignment, 3)

	assert.Equal(t, assignment[1].Slot, assignment[2].Slot, "near-identical environments share a slot")
	assert.NotEqual(t, assignment[1].Slot, assignment[3].Slot, "distant environment gets its own reference slot")
}

func TestAssignCompensatesGainByDirectGainFloor(t *testing.T) {
	be := openHeadless(t)
	p, err := New(be, 2)
	require.NoError(t, err)

	candidates := []Candidate{
		{Owner: 1, Params: backend.ReverbParams{ReflectionGain: 0.5, LateReverbGain: 0.2}, DirectGain: 0.0001},
	}
	assignment, err := p.Assign(candidates, 5.0, 0.016)
	require.NoError(t, err)
	assert.InDelta(t, 0.5/0.001, assignment[1].ReflectionGain, 1e-6, "direct gain below the floor is clamped to 0.001")
}

func TestAssignOnDisabledPoolReturnsEmpty(t *testing.T) {
	p := Disabled()
	assignment, err := p.Assign([]Candidate{{Owner: 1}}, 5.0, 0.016)
	require.NoError(t, err)
	assert.Empty(t, assignment)
}

func TestKeepAliveDropsUnusedSlotAfterTimeout(t *testing.T) {
	be := openHeadless(t)
	p, err := New(be, 2)
	require.NoError(t, err)

	_, err = p.Assign([]Candidate{{Owner: 1, Params: backend.ReverbParams{DecayTime: 1}, DirectGain: 1}}, 1.0, 0.5)
	require.NoError(t, err)
	assert.True(t, p.slots[0].configured)

	// Next frame with no candidates: keep-alive ages by a full timeout and expires.
	_, err = p.Assign(nil, 1.0, 1.0)
	require.NoError(t, err)
	assert.False(t, p.slots[0].configured, "keep-alive timeout elapsed with no reuse")
}
