// Package state defines shared program state.
package state

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/njchilds90/mdsafe"
	"github.com/njchilds90/mdsafe/internal/config"
)

type envKey struct{}

// LocalEnv keeps everything program needs in a single place.
type LocalEnv struct {
	Cfg      *config.Config
	Log      *zap.Logger
	Renderer *mdsafe.Renderer

	closeLog      func() error
	start         time.Time
	restoreStdLog func()
}

func EnvFromContext(ctx context.Context) *LocalEnv {
	if env, ok := ctx.Value(envKey{}).(*LocalEnv); ok {
		return env
	}
	// this should never happen
	panic("localenv not found in context")
}

func ContextWithEnv(ctx context.Context) context.Context {
	return context.WithValue(ctx, envKey{}, newLocalEnv())
}

func newLocalEnv() *LocalEnv {
	return &LocalEnv{
		Log:   zap.NewNop(),
		start: time.Now(),
	}
}

// Prepare loads configuration from path and builds the logger and the
// renderer from it.
func (e *LocalEnv) Prepare(appName, path string, debug bool) (err error) {
	if e.Cfg, err = config.LoadConfiguration(path); err != nil {
		return err
	}
	log, closer, err := e.Cfg.Logging.Prepare(appName, debug)
	if err != nil {
		return err
	}
	e.Log, e.closeLog = log, closer
	e.Renderer = mdsafe.New(e.Cfg.RendererOptions(e.Log)...)
	return nil
}

func (e *LocalEnv) Uptime() time.Duration {
	return time.Since(e.start)
}

func (e *LocalEnv) RedirectStdLog() {
	if e.Log == nil {
		return
	}
	e.restoreStdLog = zap.RedirectStdLog(e.Log)
}

// Close flushes logs and closes the log file if one was opened.
func (e *LocalEnv) Close() error {
	if e.Log != nil {
		_ = e.Log.Sync()
	}
	if e.restoreStdLog != nil {
		e.restoreStdLog()
		e.restoreStdLog = nil
	}
	if e.closeLog != nil {
		closer := e.closeLog
		e.closeLog = nil
		return closer()
	}
	return nil
}
