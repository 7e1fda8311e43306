package cmd

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"emperror.dev/errors"
	"github.com/NYTimes/logrotate"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/multi"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pyrohost/resticapi/src/config"
	"github.com/pyrohost/resticapi/src/internal/restic"
	"github.com/pyrohost/resticapi/src/repository"
	"github.com/pyrohost/resticapi/src/router"
	"github.com/pyrohost/resticapi/src/system"
)

const shutdownTimeout = 10 * time.Second

// Run executes the resticapi command line with the given arguments and
// returns the process exit code.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var (
		configPath string
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:           "resticapi",
		Short:         "Serve a restic repository over HTTP",
		Long:          "Exposes repository statistics, snapshot listing, snapshot deletion and restores of a single restic repository over a JSON HTTP API.",
		Version:       system.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfiguration(configPath)
			if err != nil {
				return err
			}
			if debug {
				c.Debug = true
			}
			config.Set(c)

			if err := configureLogging(stderr, c.Log.Directory, c.Debug); err != nil {
				return errors.Wrap(err, "failed to configure logging")
			}
			return serve(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "location of the configuration file (default ~/"+config.DefaultRelativeLocation+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "pass in order to run in debug mode")

	rootCmd.SetArgs(args[1:])
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		_, _ = color.New(color.FgRed).Fprintln(stderr, err.Error())
		return 1
	}
	return 0
}

func loadConfiguration(path string) (*config.Configuration, error) {
	if path == "" {
		p, err := config.DefaultLocation()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return config.FromFile(path)
}

// configureLogging writes human readable logs to the console and, when a
// directory is configured, JSON logs to a file that is reopened on SIGHUP so
// it plays well with logrotate.
func configureLogging(console io.Writer, dir string, debug bool) error {
	log.SetLevel(log.InfoLevel)
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	if dir == "" {
		log.SetHandler(cli.New(console))
		return nil
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	p := filepath.Join(dir, "resticapi.log")
	w, err := logrotate.NewFile(p)
	if err != nil {
		return errors.Wrap(err, "failed to open log file")
	}
	log.SetHandler(multi.New(cli.New(console), json.New(w)))
	log.WithField("path", p).Info("writing log files to disk")
	return nil
}

func serve(ctx context.Context) error {
	c := config.Get()
	timeout, err := c.Restic.InvocationTimeout()
	if err != nil {
		return err
	}
	ttl, err := c.Cache.Duration()
	if err != nil {
		return err
	}

	binary, err := restic.GetBinaryPath(c.Restic.Binary, c.Restic.BinaryPath)
	if err != nil {
		// Requests fail individually until restic is installed.
		log.WithError(err).Warn("restic binary could not be located, requests will fail")
		binary = c.Restic.Binary
	}

	session := repository.NewSession(repository.Config{
		Location: c.Repository.Path,
		Secret:   c.Repository.Password,
	})
	invoker := repository.NewInvoker(&repository.CommandRunner{Binary: binary}, c.Restic.TmpDirectory, timeout)
	repo := repository.New(session, invoker, repository.WithCache(ttl))

	srv := &http.Server{
		Addr:    c.Addr(),
		Handler: router.Configure(repo, c),
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"address":    srv.Addr,
			"repository": c.Repository.Path,
			"restic":     binary,
		}).Info("starting http server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "failed to start http server")
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shutdown http server")
	}
	return nil
}
