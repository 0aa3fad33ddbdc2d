package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/intuitionamiga/auralcore/internal/logging"
)

// Watcher layers file, environment, and flag sources over the Default()
// config and republishes a fully validated Config on every change. A reload
// that fails Validate is logged and dropped; the previously published
// snapshot keeps serving (spec §4.12: never a partial apply).
type Watcher struct {
	v       *viper.Viper
	log     *logging.Logger
	updates chan Config
	last    Config
}

// NewWatcher builds a Watcher reading configPath (may be empty: defaults +
// env + flags only) and watching it for changes.
func NewWatcher(configPath string, flags *pflag.FlagSet, log *logging.Logger) (*Watcher, error) {
	v := viper.New()
	v.SetEnvPrefix("AURALCORE")
	v.AutomaticEnv()
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	w := &Watcher{v: v, log: log.With("config"), updates: make(chan Config, 1)}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", configPath, err)
			}
		}
	}

	cfg, err := FromViper(v)
	if err != nil {
		return nil, fmt.Errorf("initial config invalid: %w", err)
	}
	w.last = cfg
	w.updates <- cfg

	if configPath != "" {
		v.OnConfigChange(func(_ fsnotify.Event) {
			w.reload()
		})
		v.WatchConfig()
	}

	return w, nil
}

func (w *Watcher) reload() {
	cfg, err := FromViper(w.v)
	if err != nil {
		w.log.Error("rejected config reload", "err", err)
		return
	}
	w.last = cfg
	select {
	case w.updates <- cfg:
	default:
		// Drain the stale pending update before pushing the fresh one so a
		// slow consumer always observes the latest, never a queued-up
		// backlog of intermediate states.
		select {
		case <-w.updates:
		default:
		}
		w.updates <- cfg
	}
}

// Updates returns a channel of fully validated configs, most recent last.
func (w *Watcher) Updates() <-chan Config { return w.updates }

// Current returns the last successfully validated snapshot.
func (w *Watcher) Current() Config { return w.last }
