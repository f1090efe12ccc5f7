package flag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/alecthomas/kong"
	"github.com/bobuhiro11/gohle/config"
	"github.com/bobuhiro11/gohle/hle"
	"github.com/bobuhiro11/gohle/script"
	"github.com/bobuhiro11/gohle/service/nfc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func Parse() error {
	return Execute(os.Args[1:], os.Stdout)
}

// Execute parses args and runs the selected command, printing to out.
func Execute(args []string, out io.Writer) error {
	c := CLI{}

	programName := "gohle"
	programDesc := "gohle serves 3DS NFC service requests at the IPC level"

	parser, err := kong.New(&c,
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		kong.Writers(out, os.Stderr),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))
	if err != nil {
		return err
	}

	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	logger, err := newLogger(c.LogLevel, c.Dev)
	if err != nil {
		return err
	}

	defer func() { _ = logger.Sync() }()

	return ctx.Run(logger, &Output{w: out})
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}

	return config.Load(path)
}

func (r *RunCMD) Run(logger *zap.Logger, out *Output) error {
	if r.Sessions < 1 {
		return fmt.Errorf("sessions must be at least 1, got %d", r.Sessions)
	}

	cfg, err := loadConfig(r.Config)
	if err != nil {
		return err
	}

	sc, err := script.Load(r.Script)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < r.Sessions; i++ {
		i := i

		g.Go(func() error {
			return r.session(ctx, i, cfg, sc, logger.With(zap.Int("session", i)), out)
		})
	}

	return g.Wait()
}

func (r *RunCMD) session(ctx context.Context, i int, cfg *config.Config, sc *script.Script, logger *zap.Logger, out *Output) (err error) {
	sys := hle.New(*cfg, logger)
	if err := sys.Init(); err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, sys.Shutdown())
	}()

	if r.Load != "" {
		if err := loadState(sys, r.Load); err != nil {
			return err
		}
	}

	results, err := script.Run(ctx, sys, sc, logger)
	if err != nil {
		return fmt.Errorf("session %d: %w", i, err)
	}

	if r.Save != "" {
		path := r.Save
		if i > 0 {
			path = fmt.Sprintf("%s.%d", r.Save, i)
		}

		if err := saveState(sys, path); err != nil {
			return err
		}
	}

	logger.Info("script finished", zap.Int("steps", len(results)))
	fmt.Fprintf(out, "session %d: %d steps ok\n", i, len(results))

	return nil
}

func loadState(sys *hle.System, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return sys.Load(f)
}

func saveState(sys *hle.System, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := sys.Save(f); err != nil {
		return errors.Join(err, f.Close())
	}

	return f.Close()
}

func (c *CommandsCMD) Run(logger *zap.Logger, out *Output) (err error) {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}

	sys := hle.New(*cfg, logger)
	if err := sys.Init(); err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, sys.Shutdown())
	}()

	ports := sys.Manager.Ports()
	if c.Port != "" {
		if _, err := sys.Manager.Port(c.Port); err != nil {
			return err
		}

		ports = []string{c.Port}
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	for _, p := range ports {
		iface, _ := sys.Manager.Port(p)

		fmt.Fprintf(w, "%s\t(max sessions %d)\n", p, iface.MaxSessions())

		for _, f := range iface.Functions() {
			state := "served"
			if f.Handler == nil {
				state = "unimplemented"
			}

			fmt.Fprintf(w, "  %#04x\t%s\t0x%08x\t%s\n", f.Header.CommandID(), f.Name, uint32(f.Header), state)
		}
	}

	return w.Flush()
}

func (l *LayoutCMD) Run(out *Output) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	for _, s := range []struct {
		name string
		size int
	}{
		{"AmiiboSettings", nfc.AmiiboSettingsSize},
		{"AmiiboConfig", nfc.AmiiboConfigSize},
		{"TagInfo", nfc.TagInfoSize},
		{"AppDataWriteStruct", nfc.AppDataWriteStructSize},
		{"Date", nfc.DateSize},
		{"AppData", nfc.AppDataSize},
	} {
		fmt.Fprintf(w, "%s\t%#x\t%d words\n", s.name, s.size, (s.size+3)/4)
	}

	return w.Flush()
}
