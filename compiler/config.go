package compiler

import (
	"strconv"

	"github.com/xyproto/env/v2"
	"tlog.app/go/errors"

	"github.com/slowlang/fifth/compiler/back"
	"github.com/slowlang/fifth/compiler/opt"
)

type Config struct {
	Level       opt.Level
	CacheSize   int
	MaxIter     int
	InlineDepth int

	// Backend is a back.New name. Empty stops after ssa.
	Backend string
}

func DefaultConfig() Config {
	return Config{
		Level:       opt.Standard,
		CacheSize:   opt.DefaultCacheSize,
		MaxIter:     opt.DefaultMaxIterations,
		InlineDepth: opt.DefaultInlineDepth,
		Backend:     "threaded",
	}
}

// ConfigFromEnv reads FIFTH_* variables over the defaults.
// The environment is reloaded on every call.
func ConfigFromEnv() (c Config, err error) {
	c = DefaultConfig()

	env.Load()

	if s := env.Str("FIFTH_LEVEL"); s != "" {
		c.Level, err = opt.ParseLevel(s)
		if err != nil {
			return c, errors.Wrap(err, "FIFTH_LEVEL")
		}
	}

	for _, v := range []struct {
		name string
		dst  *int
	}{
		{"FIFTH_CACHE", &c.CacheSize},
		{"FIFTH_MAX_ITER", &c.MaxIter},
		{"FIFTH_INLINE_DEPTH", &c.InlineDepth},
	} {
		*v.dst, err = envInt(v.name, *v.dst)
		if err != nil {
			return c, err
		}
	}

	c.Backend = env.Str("FIFTH_BACKEND", c.Backend)

	return c, c.Check()
}

// envInt is env.Int that rejects malformed values instead of using the default.
func envInt(name string, def int) (int, error) {
	s := env.Str(name)
	if s == "" {
		return def, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return def, errors.Wrap(err, "%v", name)
	}

	return v, nil
}

func (c Config) Check() error {
	if c.CacheSize < 0 || c.CacheSize > opt.MaxCacheSize {
		return errors.New("cache size %d out of range 0..%d", c.CacheSize, opt.MaxCacheSize)
	}

	if c.MaxIter <= 0 {
		return errors.New("max iterations must be positive: %d", c.MaxIter)
	}

	if c.InlineDepth <= 0 {
		return errors.New("inline depth must be positive: %d", c.InlineDepth)
	}

	if c.Backend != "" {
		if _, err := back.New(c.Backend); err != nil {
			return err
		}
	}

	return nil
}
