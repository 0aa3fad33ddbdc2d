// Package config implements the dynamic configuration surface from spec §6:
// every key has a default and a valid range, reload is all-or-nothing, and
// auralization_quality expands to a concrete {ray_count, max_bounces,
// max_transmits} triple unless overridden explicitly.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// AuralizationMode selects how much of the environment pipeline runs.
type AuralizationMode string

const (
	ModeDisabled    AuralizationMode = "disabled"
	ModeDirectSound AuralizationMode = "direct_sound"
	ModeFull        AuralizationMode = "full"
)

// AuralizationQuality is the coarse dial that drives ray-trace cost.
type AuralizationQuality string

const (
	QualityVeryLow  AuralizationQuality = "very_low"
	QualityLow      AuralizationQuality = "low"
	QualityMedium   AuralizationQuality = "medium"
	QualityHigh     AuralizationQuality = "high"
	QualityVeryHigh AuralizationQuality = "very_high"
)

// qualityTable maps a quality tier to {ray_count, max_bounces, max_transmits}.
// Boundary behavior B4 pins very_low=32 and very_high=256.
var qualityTable = map[AuralizationQuality][3]int{
	QualityVeryLow:  {32, 1, 1},
	QualityLow:      {48, 2, 1},
	QualityMedium:   {64, 2, 2},
	QualityHigh:     {128, 3, 2},
	QualityVeryHigh: {256, 4, 3},
}

// Config is the fully validated, immutable-once-built configuration value.
// Every field mirrors one row of the table in spec §6.
type Config struct {
	DeviceName        string
	EnableEFX         bool
	StreamBufferBytes  int
	AuralizationMode   AuralizationMode
	AuralizationQuality AuralizationQuality

	// Derived from AuralizationQuality unless explicitly overridden.
	RayCount        int
	MaxBounces      int
	MaxTransmits    int

	MaxSharedEffectSlots int
	EstimateRoomRayCount int

	ReflectionGainFactor  float64
	LateReverbGainFactor  float64

	AsyncAudio              bool
	FrameRateLimit          int
	SkipSyncTimeRatio       float64

	LogLevel string

	DisabledExtensions map[string]bool
}

// Default returns the documented defaults from spec §6.
func Default() Config {
	c := Config{
		DeviceName:          "",
		EnableEFX:           true,
		StreamBufferBytes:   700000,
		AuralizationMode:    ModeFull,
		AuralizationQuality: QualityMedium,
		MaxSharedEffectSlots: 8,
		EstimateRoomRayCount: 128,
		ReflectionGainFactor: 1.0,
		LateReverbGainFactor: 1.0,
		AsyncAudio:           true,
		FrameRateLimit:       0,
		SkipSyncTimeRatio:    0.5,
		LogLevel:             "info",
		DisabledExtensions:   map[string]bool{},
	}
	c.applyQualityDerivation()
	return c
}

func (c *Config) applyQualityDerivation() {
	t, ok := qualityTable[c.AuralizationQuality]
	if !ok {
		t = qualityTable[QualityMedium]
	}
	if c.RayCount == 0 {
		c.RayCount = t[0]
	}
	if c.MaxBounces == 0 {
		c.MaxBounces = t[1]
	}
	if c.MaxTransmits == 0 {
		c.MaxTransmits = t[2]
	}
}

// Validate rejects a config whose fields fall outside their documented
// ranges. A reload that fails Validate must never be applied (config.Watcher
// keeps serving the last-good snapshot).
func (c Config) Validate() error {
	switch {
	case c.StreamBufferBytes < 0:
		return fmt.Errorf("stream_buf_size_threshold must be >= 0: %d", c.StreamBufferBytes)
	case c.MaxSharedEffectSlots < 2 || c.MaxSharedEffectSlots > 8:
		return fmt.Errorf("max_shared_effect_slots must be in [2,8]: %d", c.MaxSharedEffectSlots)
	case c.RayCount < 1:
		return fmt.Errorf("sound_trace_ray_count must be >= 1: %d", c.RayCount)
	case c.MaxBounces < 0:
		return fmt.Errorf("sound_trace_max_bounce_count must be >= 0: %d", c.MaxBounces)
	case c.MaxTransmits < 0:
		return fmt.Errorf("sound_trace_max_transmit_count must be >= 0: %d", c.MaxTransmits)
	case c.EstimateRoomRayCount < 1:
		return fmt.Errorf("estimate_room_ray_count must be >= 1: %d", c.EstimateRoomRayCount)
	case c.FrameRateLimit < 0:
		return fmt.Errorf("frame_rate_limit must be >= 0: %d", c.FrameRateLimit)
	case c.SkipSyncTimeRatio < 0 || c.SkipSyncTimeRatio > 1:
		return fmt.Errorf("async_audio_skip_sync_time_ratio must be in [0,1]: %f", c.SkipSyncTimeRatio)
	}
	switch c.AuralizationMode {
	case ModeDisabled, ModeDirectSound, ModeFull:
	default:
		return fmt.Errorf("invalid auralization_mode: %q", c.AuralizationMode)
	}
	if _, ok := qualityTable[c.AuralizationQuality]; !ok {
		return fmt.Errorf("invalid auralization_quality: %q", c.AuralizationQuality)
	}
	switch c.LogLevel {
	case "error", "warning", "info", "debug":
	default:
		return fmt.Errorf("invalid log_level: %q", c.LogLevel)
	}
	return nil
}

// FromViper builds a Config from a populated viper instance, applying
// defaults for any unset key before validating.
func FromViper(v *viper.Viper) (Config, error) {
	c := Default()

	if v.IsSet("device_name") {
		c.DeviceName = v.GetString("device_name")
	}
	if v.IsSet("enable_efx") {
		c.EnableEFX = v.GetBool("enable_efx")
	}
	if v.IsSet("stream_buf_size_threshold") {
		c.StreamBufferBytes = v.GetInt("stream_buf_size_threshold")
	}
	if v.IsSet("auralization_mode") {
		c.AuralizationMode = AuralizationMode(v.GetString("auralization_mode"))
	}
	if v.IsSet("auralization_quality") {
		c.AuralizationQuality = AuralizationQuality(v.GetString("auralization_quality"))
		// Quality changed: clear any stale derived fields so the new tier
		// takes effect unless the explicit overrides below reinstate them.
		c.RayCount, c.MaxBounces, c.MaxTransmits = 0, 0, 0
		c.applyQualityDerivation()
	}
	if v.IsSet("sound_trace_ray_count") {
		c.RayCount = v.GetInt("sound_trace_ray_count")
	}
	if v.IsSet("sound_trace_max_bounce_count") {
		c.MaxBounces = v.GetInt("sound_trace_max_bounce_count")
	}
	if v.IsSet("sound_trace_max_transmit_count") {
		c.MaxTransmits = v.GetInt("sound_trace_max_transmit_count")
	}
	if v.IsSet("estimate_room_ray_count") {
		c.EstimateRoomRayCount = v.GetInt("estimate_room_ray_count")
	}
	if v.IsSet("max_shared_effect_slots") {
		c.MaxSharedEffectSlots = v.GetInt("max_shared_effect_slots")
	}
	if v.IsSet("eax_reverb_reflection_gain_factor") {
		c.ReflectionGainFactor = v.GetFloat64("eax_reverb_reflection_gain_factor")
	}
	if v.IsSet("eax_reverb_late_reverb_gain_factor") {
		c.LateReverbGainFactor = v.GetFloat64("eax_reverb_late_reverb_gain_factor")
	}
	if v.IsSet("async_audio") {
		c.AsyncAudio = v.GetBool("async_audio")
	}
	if v.IsSet("frame_rate_limit") {
		c.FrameRateLimit = v.GetInt("frame_rate_limit")
	}
	if v.IsSet("async_audio_skip_sync_time_ratio") {
		c.SkipSyncTimeRatio = v.GetFloat64("async_audio_skip_sync_time_ratio")
	}
	if v.IsSet("log_level") {
		c.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("disable_extensions") {
		names := v.GetStringSlice("disable_extensions")
		c.DisabledExtensions = make(map[string]bool, len(names))
		for _, n := range names {
			c.DisabledExtensions[n] = true
		}
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
