// Package diag implements the developer-mode diagnostics console (spec
// §6, C14): a line-oriented `dm_*` command dispatcher in the style of the
// teacher's MachineMonitor.ExecuteCommand, plus an embedded Lua scripting
// hook for ad-hoc scene queries. Every command is read-only with respect
// to audio output.
package diag

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"

	lua "github.com/yuin/gopher-lua"

	"github.com/intuitionamiga/auralcore/internal/probe"
	"github.com/intuitionamiga/auralcore/internal/spatial"
	"github.com/intuitionamiga/auralcore/internal/world"
)

// Command is a parsed console line: a verb plus its arguments, mirroring
// the teacher's MonitorCommand.
type Command struct {
	Name string
	Args []string
}

// Parse splits a raw input line into a verb and its arguments.
func Parse(input string) Command {
	input = strings.TrimSpace(input)
	if input == "" {
		return Command{}
	}
	parts := strings.Fields(input)
	return Command{Name: strings.ToLower(parts[0]), Args: parts[1:]}
}

// Console dispatches dm_* commands against a live world. It holds no
// audio-output-affecting state of its own.
type Console struct {
	world        *world.World
	probeParams  probe.Params
	enabled      bool
	logEnvProbe  bool
	frozenAt     *r3.Vector // non-nil after dm_show_speaker_env_info_at; nil means "off"
	commands     map[string]func(Command) string
	lastRayCapture *probe.Probe
}

// New creates a console bound to w, using probeParams for dm_capture_mic_rays.
func New(w *world.World, probeParams probe.Params) *Console {
	c := &Console{world: w, probeParams: probeParams}
	c.commands = map[string]func(Command) string{
		"dm_enable":                         c.cmdEnable,
		"dm_help":                           c.cmdHelp,
		"dm_log_calc_envprobe":              c.cmdLogCalcEnvProbe,
		"dm_show_module_info":               c.cmdShowModuleInfo,
		"dm_show_speaker_env_info":          c.cmdShowSpeakerEnvInfo,
		"dm_show_speaker_env_info_at":       c.cmdShowSpeakerEnvInfoAt,
		"dm_show_speaker_env_info_closest":  c.cmdShowSpeakerEnvInfoClosest,
		"dm_show_active_mic_info":           c.cmdShowActiveMicInfo,
		"dm_capture_mic_rays":               c.cmdCaptureMicRays,
		"dm_show_audio_models":              c.cmdShowAudioModels,
		"dm_capture_speaker_direct_closest": c.cmdCaptureSpeakerDirectClosest,
		"script":                            c.cmdScript,
	}
	return c
}

// Execute dispatches a single raw input line, returning the command's
// textual reply.
func (c *Console) Execute(input string) string {
	cmd := Parse(input)
	if cmd.Name == "" {
		return ""
	}
	if !c.enabled && cmd.Name != "dm_enable" && cmd.Name != "dm_help" {
		return "developer mode disabled; run dm_enable first"
	}
	fn, ok := c.commands[cmd.Name]
	if !ok {
		return fmt.Sprintf("unknown command: %s", cmd.Name)
	}
	return fn(cmd)
}

func (c *Console) cmdEnable(Command) string {
	c.enabled = true
	return "developer mode enabled"
}

func (c *Console) cmdHelp(Command) string {
	names := make([]string, 0, len(c.commands))
	for n := range c.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, "\n")
}

func (c *Console) cmdLogCalcEnvProbe(cmd Command) string {
	if len(cmd.Args) > 0 && cmd.Args[0] == "off" {
		c.logEnvProbe = false
		return "environment/probe calc logging: off"
	}
	c.logEnvProbe = true
	return "environment/probe calc logging: on"
}

// LogEnvProbeEnabled reports whether the audio thread should log each
// environment/probe computation, set via dm_log_calc_envprobe.
func (c *Console) LogEnvProbeEnabled() bool { return c.logEnvProbe }

func (c *Console) cmdShowModuleInfo(Command) string {
	o := c.world.Octree()
	var sb strings.Builder
	fmt.Fprintf(&sb,
		"components=%d emitters=%d listeners=%d meters=%d all_mic_layer_mask=0x%x",
		o.Count(spatial.KindComponent), o.Count(spatial.KindEmitter),
		o.Count(spatial.KindListener), o.Count(spatial.KindMeter),
		c.world.AllMicLayerMask(),
	)
	for _, comp := range c.world.Components() {
		fmt.Fprintf(&sb, "\ncomponent %d: uuid=%s", comp.ID, comp.UUID)
	}
	return sb.String()
}

func (c *Console) cmdShowSpeakerEnvInfo(Command) string {
	var sb strings.Builder
	for _, e := range c.world.ActiveEmitters() {
		fmt.Fprintf(&sb, "emitter %d: pos=%v range=%.2f state=%d finished=%v play_position=%d\n",
			e.ID, e.Position, e.Range, e.PlayState, e.PlayFinished, e.PlayPosition)
	}
	if sb.Len() == 0 {
		return "no active emitters"
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (c *Console) cmdShowSpeakerEnvInfoAt(cmd Command) string {
	if len(cmd.Args) == 1 && cmd.Args[0] == "off" {
		c.frozenAt = nil
		return "env info freeze: off"
	}
	if len(cmd.Args) != 3 {
		return "usage: dm_show_speaker_env_info_at x y z | off"
	}
	x, err1 := strconv.ParseFloat(cmd.Args[0], 64)
	y, err2 := strconv.ParseFloat(cmd.Args[1], 64)
	z, err3 := strconv.ParseFloat(cmd.Args[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return "invalid coordinates"
	}
	pos := r3.Vector{X: x, Y: y, Z: z}
	c.frozenAt = &pos
	return fmt.Sprintf("env info frozen at %v", pos)
}

func (c *Console) cmdShowSpeakerEnvInfoClosest(cmd Command) string {
	n := 1
	if len(cmd.Args) == 1 {
		if v, err := strconv.Atoi(cmd.Args[0]); err == nil {
			n = v
		}
	}
	origin := r3.Vector{}
	if c.frozenAt != nil {
		origin = *c.frozenAt
	} else if ls := c.world.Listeners(); len(ls) > 0 {
		origin = ls[0].Position
	}
	emitters := c.world.ActiveEmitters()
	sort.Slice(emitters, func(i, j int) bool {
		return emitters[i].Position.Sub(origin).Norm2() < emitters[j].Position.Sub(origin).Norm2()
	})
	if n > len(emitters) {
		n = len(emitters)
	}
	var sb strings.Builder
	for _, e := range emitters[:n] {
		fmt.Fprintf(&sb, "emitter %d: dist=%.2f\n", e.ID, e.Position.Sub(origin).Norm())
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (c *Console) cmdShowActiveMicInfo(Command) string {
	var sb strings.Builder
	for _, l := range c.world.Listeners() {
		fmt.Fprintf(&sb, "listener %d: pos=%v layer_mask=0x%x probes_cached=%d\n",
			l.ID, l.Position, l.LayerMask, l.Probes.Len())
	}
	if sb.Len() == 0 {
		return "no listeners"
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (c *Console) cmdCaptureMicRays(cmd Command) string {
	ls := c.world.Listeners()
	if len(ls) == 0 {
		return "no listeners"
	}
	mode := "xray"
	if len(cmd.Args) > 0 {
		mode = cmd.Args[0]
	}
	p := probe.Trace(c.world.BVH(), ls[0].Position, c.probeParams)
	c.lastRayCapture = p
	switch mode {
	case "volume":
		return fmt.Sprintf("volume=%.2f surface=%.2f rt60_mid=%.3fs", p.Stats.Volume, p.Stats.Surface, p.Stats.ReverbTimeMid)
	default:
		return fmt.Sprintf("captured %d rays from %v", len(p.Rays), ls[0].Position)
	}
}

func (c *Console) cmdShowAudioModels(Command) string {
	return "distance_model=inverse_clamped filter_types=lowpass,highpass,bandpass reverb=eax-equivalent"
}

func (c *Console) cmdCaptureSpeakerDirectClosest(cmd Command) string {
	return c.cmdShowSpeakerEnvInfoClosest(cmd)
}

// cmdScript runs an ad-hoc Lua snippet against a small read-only scene
// API (probe(x,y,z), emitters_near(x,y,z,n)) — the
// generalization of the teacher's single-expression EvalAddress into a
// full embedded interpreter, since diagnostics here query floating-point
// scene state rather than integer memory addresses.
func (c *Console) cmdScript(cmd Command) string {
	if len(cmd.Args) == 0 {
		return "usage: script <lua>"
	}
	src := strings.Join(cmd.Args, " ")
	L := lua.NewState()
	defer L.Close()
	c.registerLuaAPI(L)

	var out strings.Builder
	L.SetGlobal("print", L.NewFunction(func(ls *lua.LState) int {
		n := ls.GetTop()
		parts := make([]string, n)
		for i := 1; i <= n; i++ {
			parts[i-1] = ls.Get(i).String()
		}
		out.WriteString(strings.Join(parts, " "))
		out.WriteString("\n")
		return 0
	}))

	if err := L.DoString(src); err != nil {
		return fmt.Sprintf("script error: %v", err)
	}
	return strings.TrimRight(out.String(), "\n")
}

func (c *Console) registerLuaAPI(L *lua.LState) {
	L.SetGlobal("probe", L.NewFunction(func(ls *lua.LState) int {
		x := ls.CheckNumber(1)
		y := ls.CheckNumber(2)
		z := ls.CheckNumber(3)
		p := probe.Trace(c.world.BVH(), r3.Vector{X: float64(x), Y: float64(y), Z: float64(z)}, c.probeParams)
		ls.Push(lua.LNumber(p.Stats.Volume))
		ls.Push(lua.LNumber(p.Stats.ReverbTimeMid))
		return 2
	}))
	L.SetGlobal("emitters_near", L.NewFunction(func(ls *lua.LState) int {
		x := float64(ls.CheckNumber(1))
		y := float64(ls.CheckNumber(2))
		z := float64(ls.CheckNumber(3))
		n := ls.CheckInt(4)
		origin := r3.Vector{X: x, Y: y, Z: z}
		emitters := c.world.ActiveEmitters()
		sort.Slice(emitters, func(i, j int) bool {
			return emitters[i].Position.Sub(origin).Norm2() < emitters[j].Position.Sub(origin).Norm2()
		})
		if n > len(emitters) {
			n = len(emitters)
		}
		tbl := ls.NewTable()
		for i := 0; i < n; i++ {
			tbl.Append(lua.LNumber(emitters[i].ID))
		}
		ls.Push(tbl)
		return 1
	}))
}
