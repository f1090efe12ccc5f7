package flag

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

type CLI struct {
	LogLevel string `help:"log level (debug, info, warn, error)" default:"info" name:"log-level"`
	Dev      bool   `help:"human readable development logging"`

	Run      RunCMD      `cmd:"" help:"Run a command script against one or more HLE sessions"`
	Commands CommandsCMD `cmd:"" help:"List the commands each service port serves"`
	Layout   LayoutCMD   `cmd:"" help:"Print the sizes of the structures NFC commands return"`
}

type RunCMD struct {
	Config   string `short:"c" help:"configuration file (YAML); built-in defaults when empty"`
	Script   string `short:"s" required:"" help:"command script (YAML)"`
	Sessions int    `short:"n" default:"1" help:"number of independent sessions to run concurrently"`
	Save     string `help:"write a save state here after the script (session N>0 gets a .N suffix)"`
	Load     string `help:"restore this save state before the script"`
}

type CommandsCMD struct {
	Config string `short:"c" help:"configuration file (YAML)"`
	Port   string `arg:"" optional:"" help:"only list this port"`
}

type LayoutCMD struct{}

// Output is where commands print their results. Concurrent sessions share
// it.
type Output struct {
	mu sync.Mutex
	w  io.Writer
}

func (o *Output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.w.Write(p)
}

func newLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	config := zap.NewProductionConfig()
	if dev {
		config = zap.NewDevelopmentConfig()
	}

	config.Level = lvl

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger, nil
}
