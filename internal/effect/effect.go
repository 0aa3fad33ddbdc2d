// Package effect implements the shared reverb effect-slot pool (spec
// §4.6, C6): a hard cap on hardware aux slots, similarity-distance
// clustering to assign every audible emitter's environment to the
// closest slot, and keep-alive so brief environment changes don't thrash
// backend state.
package effect

import (
	"math"
	"sort"

	"github.com/intuitionamiga/auralcore/internal/backend"
)

// OwnerID identifies the emitter an environment sample belongs to.
type OwnerID uint64

// Candidate is one audible emitter's environment for this frame's
// assignment pass.
type Candidate struct {
	Owner  OwnerID
	Params backend.ReverbParams
	// DirectGain is the emitter's attenuated direct-path gain, used to
	// compensate the shared slot's statistical reverb model (spec §4.6:
	// "pre-divided by the reference emitter's attenuated direct gain").
	DirectGain float64
}

// Assignment is the per-emitter outcome of one shared-slot pass.
type Assignment struct {
	Slot                   backend.Handle
	ReflectionGain         float64
	LateReverbGain         float64
}

type slot struct {
	handle           backend.Handle
	owner            OwnerID
	hasOwner         bool
	importance       float64
	configured       bool
	currentParams    backend.ReverbParams
	keepAliveElapsed float64
}

// Pool is the C6 shared effect-slot pool.
type Pool struct {
	be    backend.Backend
	slots []*slot
}

// Disabled returns a slotless pool for when the backend lacks the reverb
// extension or it was disabled in config (spec §4.6 Failure clause: "all
// shared slots are dropped and only direct-path filtering remains").
// Assign on a disabled pool always returns an empty assignment.
func Disabled() *Pool { return &Pool{} }

// New creates maxCount (clamped to [2, 8] per spec §4.6) hardware effect
// slots eagerly, mirroring the original manager's eager pre-allocation
// (it never resizes per-frame).
func New(be backend.Backend, maxCount int) (*Pool, error) {
	if maxCount < 2 {
		maxCount = 2
	}
	if maxCount > 8 {
		maxCount = 8
	}
	p := &Pool{be: be}
	for i := 0; i < maxCount; i++ {
		h, err := be.CreateEffectSlot()
		if err != nil {
			return nil, err
		}
		p.slots = append(p.slots, &slot{handle: h})
	}
	return p, nil
}

// Assign runs one frame's similarity-distance clustering pass over every
// currently-audible emitter with an environment (spec §4.6 steps 1-5) and
// returns each candidate's resulting slot and gain-compensated reflection
// and late-reverb gains. keepAliveTimeout is the per-slot hold duration
// (spec's EffectKeepAliveTimeout); dt is this frame's elapsed seconds.
func (p *Pool) Assign(candidates []Candidate, keepAliveTimeout, dt float64) (map[OwnerID]Assignment, error) {
	result := make(map[OwnerID]Assignment, len(candidates))
	if len(candidates) == 0 {
		p.ageUnused(keepAliveTimeout, dt)
		return result, nil
	}

	dist := make([][]float64, len(candidates))
	sum := make([]float64, len(candidates))
	for i := range candidates {
		dist[i] = make([]float64, len(candidates))
		for j := range candidates {
			if i == j {
				continue
			}
			d := similarityDistance(candidates[i].Params, candidates[j].Params)
			dist[i][j] = d
			sum[i] += d
		}
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return sum[order[a]] < sum[order[b]] })

	refCount := len(p.slots)
	if refCount > len(candidates) {
		refCount = len(candidates)
	}
	refs := order[:refCount]

	used := make(map[*slot]bool, refCount)
	for i, idx := range refs {
		s := p.slots[i]
		used[s] = true
		if err := p.configure(s, candidates[idx]); err != nil {
			return nil, err
		}
		result[candidates[idx].Owner] = compensate(s, candidates[idx])
	}

	for _, idx := range order[refCount:] {
		best := -1
		bestDist := math.Inf(1)
		for k, refIdx := range refs {
			if dist[idx][refIdx] < bestDist {
				bestDist = dist[idx][refIdx]
				best = k
			}
		}
		if best < 0 {
			continue
		}
		s := p.slots[best]
		result[candidates[idx].Owner] = compensate(s, candidates[refs[best]])
	}

	for _, s := range p.slots {
		if used[s] {
			s.keepAliveElapsed = 0
			continue
		}
		s.keepAliveElapsed += dt
		if s.configured && s.keepAliveElapsed >= keepAliveTimeout {
			_ = p.be.SetReverb(s.handle, backend.ReverbParams{})
			s.configured = false
			s.hasOwner = false
		}
	}

	return result, nil
}

func (p *Pool) ageUnused(keepAliveTimeout, dt float64) {
	for _, s := range p.slots {
		if !s.configured {
			continue
		}
		s.keepAliveElapsed += dt
		if s.keepAliveElapsed >= keepAliveTimeout {
			_ = p.be.SetReverb(s.handle, backend.ReverbParams{})
			s.configured = false
		}
	}
}

func (p *Pool) configure(s *slot, c Candidate) error {
	if s.configured && s.currentParams == c.Params {
		return nil
	}
	if err := p.be.SetReverb(s.handle, c.Params); err != nil {
		return err
	}
	s.configured = true
	s.currentParams = c.Params
	s.hasOwner = true
	s.owner = c.Owner
	s.keepAliveElapsed = 0
	return nil
}

// compensate implements spec §4.6's gain-compensation rule, dividing by
// max(direct gain, 0.001) to avoid a division blowup when an emitter is
// nearly silent (this clamp value is this implementation's resolution of
// that Open Question, since spec.md leaves the floor unspecified).
func compensate(s *slot, reference Candidate) Assignment {
	denom := reference.DirectGain
	if denom < 0.001 {
		denom = 0.001
	}
	return Assignment{
		Slot:           s.handle,
		ReflectionGain: reference.Params.ReflectionGain / denom,
		LateReverbGain: reference.Params.LateReverbGain / denom,
	}
}

// similarityDistance is the weighted sum of absolute differences across
// the reverb parameters spec §4.6 names explicitly.
func similarityDistance(a, b backend.ReverbParams) float64 {
	d := 0.0
	d += math.Abs(a.Gain - b.Gain)
	d += math.Abs(a.GainLF - b.GainLF)
	d += math.Abs(a.GainHF - b.GainHF)
	d += math.Abs(a.DecayTime - b.DecayTime)
	d += math.Abs(a.DecayLFRatio - b.DecayLFRatio)
	d += math.Abs(a.DecayHFRatio - b.DecayHFRatio)
	d += math.Abs(a.ReflectionGain - b.ReflectionGain)
	d += math.Abs(a.ReflectionDelay - b.ReflectionDelay)
	d += math.Abs(a.LateReverbGain - b.LateReverbGain)
	d += math.Abs(a.LateReverbDelay - b.LateReverbDelay)
	d += math.Abs(a.EchoTime - b.EchoTime)
	return d
}
