package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const DefaultLoggerName = "ledgersync"

// Resolve uses precedence provider > logger > nop. A blank name resolves
// to DefaultLoggerName.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(loggerName(name), provider, logger)
}

// Component returns the logger for one ledger component, e.g. "worker"
// resolves "ledgersync.worker" from the provider.
func Component(component string, provider glog.LoggerProvider, logger glog.Logger) glog.Logger {
	name := DefaultLoggerName
	if component = strings.TrimSpace(component); component != "" {
		name += "." + component
	}
	_, resolved := glog.Resolve(name, provider, logger)
	return resolved
}

// ToJobProvider adapts a glog provider for go-job queue runtimes.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

func loggerName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return DefaultLoggerName
}
