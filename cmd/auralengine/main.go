// Command auralengine hosts the auralcore runtime: it loads config, opens
// an audio backend, builds a demo world, and runs the two-thread audio
// loop from spec §4.11 behind a stdin-driven dm_* diagnostics console.
package main

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/geo/r3"
	"github.com/spf13/pflag"

	"github.com/intuitionamiga/auralcore/internal/asset"
	"github.com/intuitionamiga/auralcore/internal/backend"
	"github.com/intuitionamiga/auralcore/internal/config"
	"github.com/intuitionamiga/auralcore/internal/diag"
	"github.com/intuitionamiga/auralcore/internal/effect"
	"github.com/intuitionamiga/auralcore/internal/emitter"
	"github.com/intuitionamiga/auralcore/internal/environment"
	"github.com/intuitionamiga/auralcore/internal/geomx"
	"github.com/intuitionamiga/auralcore/internal/logging"
	"github.com/intuitionamiga/auralcore/internal/probe"
	"github.com/intuitionamiga/auralcore/internal/raytrace"
	"github.com/intuitionamiga/auralcore/internal/runtime"
	"github.com/intuitionamiga/auralcore/internal/source"
	"github.com/intuitionamiga/auralcore/internal/spatial"
	"github.com/intuitionamiga/auralcore/internal/world"
)

func main() {
	flags := pflag.NewFlagSet("auralengine", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to a config file (yaml/json/toml)")
	backendName := flags.String("backend", "headless", "audio backend: headless|oto|portaudio")
	flags.Parse(os.Args[1:])

	log := logging.Default()

	watcher, err := config.NewWatcher(*configPath, flags, log)
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}
	cfg := watcher.Current()
	log.SetLevel(levelFromString(cfg.LogLevel))

	be, caps, err := openBackend(*backendName, cfg)
	if err != nil {
		log.Error("backend open failed", "err", err)
		os.Exit(1)
	}
	defer be.Close()
	log.Info("backend opened", "backend", *backendName, "efx", caps.HasEFX, "hrtf", caps.HasHRTF)

	w := world.New(1000, 8)
	envs := world.NewEnvironments()

	w.AddListener(&world.Listener{ID: 1, Position: r3.Vector{}, LayerMask: 0x1})
	w.AddComponent(&world.Component{
		ID:        1,
		LayerMask: 0x1,
		Box:       geomx.Box{Min: r3.Vector{X: -6, Y: -3, Z: -6}, Max: r3.Vector{X: 6, Y: 3, Z: 6}},
		Material:  raytrace.Material{AbsorptionLow: 0.1, AbsorptionMid: 0.2, AbsorptionHigh: 0.3},
	})

	srcPool := source.New(be)
	effectPool := effect.Disabled()
	if caps.HasEFX {
		effectPool, err = effect.New(be, cfg.MaxSharedEffectSlots)
		if err != nil {
			log.Error("effect pool create failed", "err", err)
			os.Exit(1)
		}
	}

	tone := asset.NewSynth(&sineGenerator{freq: 440, sampleRate: 44100}, 2, 1, 44100)
	em := emitter.New(1, tone, 44100)
	em.Position = r3.Vector{X: 3, Y: 0, Z: 0}
	em.Range = 50
	em.LayerMask = 0x1
	em.Volume = 1.0
	em.SetResolver(srcPool.BackendHandle)
	w.AddEmitter(1, em)

	// cfg.FrameRateLimit == 0 means unlimited (spec §6); Runtime itself
	// guards the zero case and never coerces it to a fixed rate.
	rt := runtime.New(float64(cfg.FrameRateLimit), cfg.SkipSyncTimeRatio)
	rt.Initialize()

	console := diag.New(w, probe.Params{RayCount: cfg.RayCount, MaxBounces: cfg.MaxBounces, MaxTransmits: cfg.MaxTransmits, Range: 50})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go runAudioThread(rt, w, envs, be, srcPool, effectPool, done)

	go func() {
		mainTick := time.NewTicker(time.Second / 60)
		defer mainTick.Stop()
		last := time.Now()
		for {
			select {
			case <-done:
				return
			case now := <-mainTick.C:
				dt := now.Sub(last).Seconds()
				last = now
				rt.AccumulateMainTime(dt)
				rt.ProcessAudio(func() {
					w.PrepareProcessAudio()
				})
			case c := <-watcher.Updates():
				log.SetLevel(levelFromString(c.LogLevel))
			}
		}
	}()

	fmt.Println("auralengine ready; dm_help for diagnostics, Ctrl-C to quit")
	inputs := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			inputs <- sc.Text()
		}
		close(inputs)
	}()

	for {
		select {
		case <-stop:
			close(done)
			for _, job := range rt.Cleanup() {
				releaseDropJob(be, job)
			}
			return
		case line, ok := <-inputs:
			if !ok {
				close(done)
				for _, job := range rt.Cleanup() {
					releaseDropJob(be, job)
				}
				return
			}
			if out := console.Execute(line); out != "" {
				fmt.Println(out)
			}
		}
	}
}

// runAudioThread is the dedicated audio-thread loop (spec §4.11): it
// calls AudioFrame every tick, and on a full pass runs the fixed
// per-frame pipeline order from spec §5 (occlusion/environment update,
// reverb slot assignment, emitter advance, mix).
func runAudioThread(rt *runtime.Runtime, w *world.World, envs *world.Environments, be backend.Backend, srcPool *source.Pool, effectPool *effect.Pool, done <-chan struct{}) {
	lastFrame := time.Now()

	fullPass := func(elapsed float64) error {
		w.PrepareProcessAudio()

		listeners := w.Listeners()
		active := w.ActiveEmitters()

		var candidates []effect.Candidate
		for _, l := range listeners {
			for _, e := range active {
				tracker := envs.Tracker(l.ID, spatial.ID(e.ID))
				res := tracker.Update(w.BVH(), nil, l.Position, e.Position, e.Range, elapsed)
				e.SetDirectGain(res.DirectGain)
				if !res.Silent {
					candidates = append(candidates, effect.Candidate{
						Owner:      effect.OwnerID(e.ID),
						Params:     res.Reverb,
						DirectGain: res.DirectGain,
					})
				}
			}
		}

		if effectPool != nil {
			if _, err := effectPool.Assign(candidates, environment.KeepAliveTimeout, elapsed); err != nil {
				return err
			}
		}

		for _, e := range active {
			if !e.IsBound() {
				if h, ok := srcPool.Bind(source.OwnerID(e.ID), e.Volume); ok {
					e.Bind(h)
				} else {
					continue
				}
			}
			if err := e.AdvanceFrame(be, elapsed); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		select {
		case <-done:
			return
		default:
		}
		now := time.Now()
		elapsedSinceFrame := now.Sub(lastFrame)
		lastFrame = now
		sleep := rt.AudioFrame(elapsedSinceFrame, fullPass, nil)
		if sleep > 0 {
			time.Sleep(sleep)
		}
	}
}

func releaseDropJob(be backend.Backend, job runtime.DropJob) {
	switch job.Kind {
	case "source":
		be.DestroySource(backend.Handle(job.Handle))
	case "buffer":
		be.DestroyBuffer(backend.Handle(job.Handle))
	case "filter":
		be.DestroyFilter(backend.Handle(job.Handle))
	case "effectslot":
		be.DestroyEffectSlot(backend.Handle(job.Handle))
	}
}

func openBackend(name string, cfg config.Config) (backend.Backend, backend.Capabilities, error) {
	var be backend.Backend
	switch name {
	case "oto":
		be = backend.NewOtoBackend()
	case "portaudio":
		be = backend.NewPortAudioBackend()
	default:
		be = backend.NewHeadlessBackend()
	}
	caps, err := be.Open(cfg.DeviceName, cfg.DisabledExtensions)
	if err != nil {
		return nil, backend.Capabilities{}, err
	}
	return be, caps, nil
}

func levelFromString(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// sineGenerator is a minimal asset.Generator producing a constant tone,
// used to exercise the emitter/source/backend pipeline without needing a
// decoded asset on disk.
type sineGenerator struct {
	freq       float64
	sampleRate int
	phase      float64
}

func (g *sineGenerator) Generate(p []byte, count int) (int, error) {
	for i := 0; i < count; i++ {
		v := math.Sin(g.phase) * 0.25
		sample := int16(v * 32767)
		p[i*2] = byte(sample)
		p[i*2+1] = byte(sample >> 8)
		g.phase += 2 * math.Pi * g.freq / float64(g.sampleRate)
		if g.phase > 2*math.Pi {
			g.phase -= 2 * math.Pi
		}
	}
	return count * 2, nil
}
