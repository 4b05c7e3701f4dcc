// Package bootstrap builds the shared process graph cmd/chatlabd and
// cmd/chatlabctl both start from: the registry seeded with the four
// built-in descriptors (§4.1a), the format-id-to-parser dispatch table, the
// session cache, and the worker.Host built over them. Keeping this out of
// either cmd/ package lets chatlabctl exercise the exact same core the
// daemon does, rather than a parallel hand-rolled wiring.
package bootstrap

import (
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/chatlab/chatlab-core/internal/config"
	"github.com/chatlab/chatlab-core/internal/format"
	"github.com/chatlab/chatlab-core/internal/importer"
	"github.com/chatlab/chatlab-core/internal/parser/canonical"
	"github.com/chatlab/chatlab-core/internal/parser/discord"
	"github.com/chatlab/chatlab-core/internal/parser/qq"
	"github.com/chatlab/chatlab-core/internal/parser/wechat"
	"github.com/chatlab/chatlab-core/internal/sessioncache"
	"github.com/chatlab/chatlab-core/internal/worker"
)

// Registry returns a fresh registry carrying the four built-in descriptors,
// in the priority order §4.1a specifies (canonical first, at priority -1).
func Registry() *format.Registry {
	r := format.NewRegistry()
	canonical.RegisterInto(r)
	qq.RegisterInto(r)
	wechat.RegisterInto(r)
	discord.RegisterInto(r)
	return r
}

// Dispatch returns the format-id-to-parser table matching Registry's
// descriptors.
func Dispatch() importer.Dispatch {
	return importer.Dispatch{
		canonical.Descriptor.ID: canonical.Parser{},
		qq.Descriptor.ID:        qq.Parser{},
		wechat.Descriptor.ID:    wechat.New(),
		discord.Descriptor.ID:  discord.Parser{},
	}
}

// Process is the fully wired set of long-lived values a running chatlabd
// (or a chatlabctl invocation touching more than one op) needs.
type Process struct {
	Host        *worker.Host
	SessionCache *sessioncache.Cache
	Log         *log.Entry
}

// New opens the session cache and constructs a worker.Host from cfg. The
// caller is responsible for closing the returned Process's SessionCache.
func New(cfg config.Config, logger *log.Entry) (*Process, error) {
	cache, err := sessioncache.Open(cfg.SessionCacheDir)
	if err != nil {
		return nil, err
	}
	host := worker.New(worker.Deps{
		Registry:     Registry(),
		Dispatch:     Dispatch(),
		StoreDir:     cfg.StoreDir,
		TempDir:      cfg.TempDir,
		MergedDir:    cfg.MergedDir,
		SessionCache: cache,
		Log:          logger,
	})
	return &Process{Host: host, SessionCache: cache, Log: logger}, nil
}

func (p *Process) Close() error {
	return p.SessionCache.Close()
}

// ResolvePaths makes every directory in cfg absolute against baseDir, so a
// config file with relative paths behaves the same regardless of the
// process's working directory.
func ResolvePaths(cfg config.Config, baseDir string) config.Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	cfg.StoreDir = resolve(cfg.StoreDir)
	cfg.TempDir = resolve(cfg.TempDir)
	cfg.MergedDir = resolve(cfg.MergedDir)
	cfg.SessionCacheDir = resolve(cfg.SessionCacheDir)
	cfg.LogDir = resolve(cfg.LogDir)
	return cfg
}
