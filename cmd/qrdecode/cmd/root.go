// Package cmd implements the qrdecode command line.
package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ericlevine/qrdecode/internal/config"
	"github.com/ericlevine/qrdecode/internal/loader"
	"github.com/ericlevine/qrdecode/internal/logging"
	"github.com/ericlevine/qrdecode/scan"
)

// Both make the process exit non-zero after all references were tried.
var (
	errLoadFailed = errors.New("one or more images could not be loaded")
	errScanFailed = errors.New("one or more scans did not finish")
)

// app carries what PersistentPreRunE sets up for the subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	version string

	cfg *config.Config
	log *zap.Logger
}

// NewRootCommand builds the command tree. Each call gets its own viper
// instance.
func NewRootCommand(version string) *cobra.Command {
	a := &app{v: viper.New(), version: version}

	root := &cobra.Command{
		Use:   "qrdecode",
		Short: "Find and decode every QR code in an image",
		Long: `qrdecode locates all QR codes in an image, including light-on-dark ones,
and prints their text together with finder, alignment, timing and corner points.

Examples:
  qrdecode decode photo.jpg
  qrdecode decode --format json https://example.com/poster.png
  qrdecode pdf flyer.pdf --pages 1-2
  qrdecode serve --addr :8080`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./qrdecode.yaml, ~/.config/qrdecode, /etc/qrdecode)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Bool("try-harder", false, "scan every third row regardless of image size")
	pf.Bool("parallel", false, "run the normal and inverted passes concurrently")
	pf.String("charset", "", "character set for byte segments without an ECI (default: guess)")
	pf.Duration("timeout", 0, "per-image scan timeout (default from config)")
	_ = a.v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("scan.try_harder", pf.Lookup("try-harder"))
	_ = a.v.BindPFlag("scan.parallel_passes", pf.Lookup("parallel"))
	_ = a.v.BindPFlag("scan.character_set", pf.Lookup("charset"))
	_ = a.v.BindPFlag("scan.timeout", pf.Lookup("timeout"))

	root.AddCommand(a.decodeCommand(), a.pdfCommand(), a.serveCommand())
	return root
}

func (a *app) init() error {
	cfg, err := config.NewLoader(a.v).Load(a.cfgFile)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Mode, cfg.LogLevel)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	if used := a.v.ConfigFileUsed(); used != "" {
		log.Debug("configuration loaded", zap.String("file", used))
	}
	return nil
}

// newLoader builds the image loader. The server passes denyLocal so that
// clients can only send data URIs and, when allowed, http(s) URLs.
func (a *app) newLoader(denyLocal bool) *loader.Loader {
	return loader.New(loader.Options{
		Timeout:    a.cfg.Loader.Timeout,
		MaxBytes:   a.cfg.Loader.MaxBytes,
		DenyRemote: !a.cfg.Loader.AllowRemote,
		DenyLocal:  denyLocal,
	})
}

func (a *app) newScanner(l *loader.Loader) *scan.Scanner {
	return scan.New(scan.Options{
		TryHarder:      a.cfg.Scan.TryHarder,
		CharacterSet:   a.cfg.Scan.CharacterSet,
		ParallelPasses: a.cfg.Scan.ParallelPasses,
		Logger:         a.log,
		Loader:         l,
	})
}

// withScanTimeout bounds the scan of one image.
func (a *app) withScanTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Scan.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.cfg.Scan.Timeout)
}
