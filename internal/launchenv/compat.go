package launchenv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrLaunchEnvironmentInvalid is returned when the configured runtime cannot
// start the game.
var ErrLaunchEnvironmentInvalid = errors.New("launch environment invalid")

// Compat toggles the platform compatibility adjustments applied after a
// build. They run in field order.
type Compat struct {
	FixLocale          bool `yaml:"fixLocale"`
	FixPreload         bool `yaml:"fixPreload"`
	DisableIMEOverride bool `yaml:"disableImeOverride"`
	FixGlobalization   bool `yaml:"fixGlobalization"`
	ClearTimezone      bool `yaml:"clearTimezone"`
}

// problematicPreloads break the game client when injected through LD_PRELOAD.
var problematicPreloads = []string{
	"libgamemodeauto.so.0",
	"libgamemode.so.0",
	"libMangoHud.so",
	"libstrangle.so",
}

type adjustment struct {
	enabled func(Compat) bool
	apply   func(env *Environment, current func(string) (string, bool))
}

var adjustments = []adjustment{
	{
		enabled: func(c Compat) bool { return c.FixLocale },
		apply: func(env *Environment, current func(string) (string, bool)) {
			for _, key := range []string{"LC_ALL", "LANG"} {
				if v, ok := current(key); !ok || v == "" || v == "C" || v == "POSIX" {
					env.set(key, "C.UTF-8")
				}
			}
		},
	},
	{
		enabled: func(c Compat) bool { return c.FixPreload },
		apply: func(env *Environment, current func(string) (string, bool)) {
			v, ok := current("LD_PRELOAD")
			if !ok || v == "" {
				return
			}
			kept := stripPreloads(v)
			if kept == v {
				return
			}
			if kept == "" {
				env.unset("LD_PRELOAD")
				return
			}
			env.set("LD_PRELOAD", kept)
		},
	},
	{
		enabled: func(c Compat) bool { return c.DisableIMEOverride },
		apply: func(env *Environment, _ func(string) (string, bool)) {
			env.unset("XMODIFIERS")
		},
	},
	{
		enabled: func(c Compat) bool { return c.FixGlobalization },
		apply: func(env *Environment, _ func(string) (string, bool)) {
			env.set("DOTNET_SYSTEM_GLOBALIZATION_INVARIANT", "1")
		},
	},
	{
		enabled: func(c Compat) bool { return c.ClearTimezone },
		apply: func(env *Environment, _ func(string) (string, bool)) {
			env.unset("TZ")
		},
	},
}

func (c Compat) apply(env *Environment, current func(string) (string, bool)) {
	for _, adj := range adjustments {
		if adj.enabled(c) {
			adj.apply(env, current)
		}
	}
}

func stripPreloads(value string) string {
	entries := strings.FieldsFunc(value, func(r rune) bool { return r == ':' || r == ' ' })
	kept := entries[:0]
	for _, entry := range entries {
		base := filepath.Base(entry)
		drop := false
		for _, bad := range problematicPreloads {
			if base == bad {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, entry)
		}
	}
	return strings.Join(kept, ":")
}

// ValidateRuntime checks that a custom runtime directory contains a usable
// wine binary. An empty path means the system runtime and always passes.
func ValidateRuntime(runtimePath string) error {
	if runtimePath == "" {
		return nil
	}
	for _, name := range []string{"wine64", "wine"} {
		if info, err := os.Stat(filepath.Join(runtimePath, "bin", name)); err == nil && !info.IsDir() {
			return nil
		}
	}
	return fmt.Errorf("%w: no wine binary under %s", ErrLaunchEnvironmentInvalid, filepath.Join(runtimePath, "bin"))
}
