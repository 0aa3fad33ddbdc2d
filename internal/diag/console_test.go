package diag

import (
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"

	"github.com/intuitionamiga/auralcore/internal/geomx"
	"github.com/intuitionamiga/auralcore/internal/probe"
	"github.com/intuitionamiga/auralcore/internal/raytrace"
	"github.com/intuitionamiga/auralcore/internal/world"
)

func testWorld(t *testing.T) *world.World {
	t.Helper()
	w := world.New(500, 4)
	w.AddListener(&world.Listener{ID: 1, Position: r3.Vector{}, LayerMask: 0x1})
	w.AddComponent(&world.Component{
		ID: 1, LayerMask: 0x1,
		Box:      geomx.Box{Min: r3.Vector{X: -5, Y: -5, Z: -5}, Max: r3.Vector{X: 5, Y: 5, Z: 5}},
		Material: raytrace.Material{AbsorptionMid: 0.2},
	})
	return w
}

func TestCommandsAreGatedBehindDmEnable(t *testing.T) {
	c := New(testWorld(t), probe.Params{RayCount: 16, Range: 50})
	out := c.Execute("dm_show_module_info")
	assert.Contains(t, out, "disabled")

	c.Execute("dm_enable")
	out = c.Execute("dm_show_module_info")
	assert.Contains(t, out, "components=1")
}

func TestHelpListsEveryRegisteredCommand(t *testing.T) {
	c := New(testWorld(t), probe.Params{RayCount: 16, Range: 50})
	c.Execute("dm_enable")
	out := c.Execute("dm_help")
	for _, name := range []string{"dm_show_speaker_env_info", "dm_capture_mic_rays", "script"} {
		assert.True(t, strings.Contains(out, name), "help output missing %s", name)
	}
}

func TestCaptureMicRaysReportsVolumeInsideBoxRoom(t *testing.T) {
	c := New(testWorld(t), probe.Params{RayCount: 64, MaxBounces: 1, Range: 50})
	c.Execute("dm_enable")
	out := c.Execute("dm_capture_mic_rays volume")
	assert.Contains(t, out, "volume=")
}

func TestUnknownCommandReportsError(t *testing.T) {
	c := New(testWorld(t), probe.Params{RayCount: 16, Range: 50})
	c.Execute("dm_enable")
	out := c.Execute("dm_frobnicate")
	assert.Contains(t, out, "unknown command")
}

func TestScriptRunsLuaAgainstProbeAPI(t *testing.T) {
	c := New(testWorld(t), probe.Params{RayCount: 64, MaxBounces: 1, Range: 50})
	c.Execute("dm_enable")
	out := c.Execute("script local v, rt = probe(0, 0, 0); print(v > 0)")
	assert.Equal(t, "true", out)
}
