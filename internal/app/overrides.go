package app

import (
	"log/slog"

	"github.com/loykin/devstack/internal/config"
	"github.com/loykin/devstack/internal/service"
)

// ApplyOverrides merges configured overrides onto the catalog by id.
// Overrides for unknown ids are logged and ignored.
func ApplyOverrides(descs []service.Descriptor, overrides []config.ServiceOverride, log *slog.Logger) []service.Descriptor {
	if log == nil {
		log = slog.Default()
	}
	out := append([]service.Descriptor(nil), descs...)
	idx := make(map[string]int, len(out))
	for i, d := range out {
		idx[d.ID] = i
	}
	for _, o := range overrides {
		i, ok := idx[o.ID]
		if !ok {
			log.Warn("override for unknown service ignored", "service", o.ID)
			continue
		}
		d := &out[i]
		// the port moves first so explicit args and health still win
		if o.Port != nil {
			*d = d.WithPort(*o.Port)
		}
		if o.Executable != "" {
			d.Executable = o.Executable
		}
		if o.Args != nil {
			d.Args = append([]string(nil), o.Args...)
		}
		if o.AutoStart != nil {
			d.AutoStart = *o.AutoStart
		}
		if o.AutoRestart != nil {
			d.AutoRestart = *o.AutoRestart
		}
		if o.MaxRestarts != nil {
			d.MaxRestarts = *o.MaxRestarts
		}
		if o.RestartDelay != nil {
			d.RestartDelay = *o.RestartDelay
		}
		if o.Health != nil {
			d.HealthCheck = *o.Health
		}
	}
	return out
}
