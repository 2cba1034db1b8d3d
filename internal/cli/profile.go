package cli

import (
	"context"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/pkg/profile"

	"github.com/ftlgo/ftl/log"
)

var profileModes = map[string]func(*profile.Profile){
	"cpu":       profile.CPUProfile,
	"mem":       profile.MemProfile,
	"allocs":    profile.MemProfileAllocs,
	"heap":      profile.MemProfileHeap,
	"mutex":     profile.MutexProfile,
	"block":     profile.BlockProfile,
	"trace":     profile.TraceProfile,
	"thread":    profile.ThreadcreationProfile,
	"goroutine": profile.GoroutineProfile,
	"clock":     profile.ClockProfile,
}

type profileConfig struct {
	Mode string `default:""              enum:",${profileModeEnum}" help:"Enable profiling."         placeholder:"MODE"`
	Dir  string `default:"${profileDir}"                           help:"Profile output directory." type:"path"`
}

func (profileConfig) vars() kong.Vars {
	return kong.Vars{
		"profileModeEnum": strings.Join(slices.Sorted(maps.Keys(profileModes)), ","),
		"profileDir":      filepath.Join(os.TempDir(), name+"-profile"),
	}
}

func (profileConfig) group() kong.Group {
	var group kong.Group

	group.Key = "profile"
	group.Title = "Profiling"

	return group
}

// start starts profiling if a mode is set. The returned function stops it.
func (f profileConfig) start(ctx context.Context) (stop func()) {
	mode, ok := profileModes[f.Mode]
	if !ok {
		return func() {}
	}

	log.Default().DebugContext(ctx, "profile start",
		slog.String("mode", f.Mode),
		slog.String("dir", f.Dir),
	)

	p := profile.Start(mode, profile.ProfilePath(f.Dir), profile.Quiet, profile.NoShutdownHook)

	return func() {
		p.Stop()
		log.Default().DebugContext(ctx, "profile stop",
			slog.String("mode", f.Mode),
			slog.String("dir", f.Dir),
		)
	}
}
