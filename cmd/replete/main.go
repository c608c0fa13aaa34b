// Command replete runs the module evaluator as a standalone process: a
// stdio command/result stream (spec §6) plus the module HTTP server
// and browser-relay websocket the configured evaluators fetch modules
// and report back through.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jamesdiacono/replete/internal/applog"
	"github.com/jamesdiacono/replete/internal/core"
	"github.com/jamesdiacono/replete/internal/evalhost"
	"github.com/jamesdiacono/replete/internal/moduleserver"
	"github.com/jamesdiacono/replete/internal/protocol"
	"github.com/jamesdiacono/replete/internal/resolvefs"
)

type cliFlags struct {
	host    string
	port    int
	execs   []string // "platform=path[:arg,arg...]"
	verbose bool
	noColor bool
}

func main() {
	flags := &cliFlags{}

	rootCmd := &cobra.Command{
		Use:           "replete",
		Short:         "evaluate guest-language modules against pluggable runtimes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
	}
	rootCmd.PersistentFlags().AddFlagSet(persistentFlagSet(flags))

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()
	defer signal.Stop(sigCh)

	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func persistentFlagSet(flags *cliFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet("", pflag.ContinueOnError)
	fs.StringVar(&flags.host, "host", "localhost", "module server + browser-relay bind host")
	fs.IntVar(&flags.port, "port", 4000, "module server + browser-relay bind port")
	fs.StringArrayVar(&flags.execs, "exec", nil,
		"register a subprocess evaluator platform: --exec <platform>=<path>[:arg,...] (repeatable)")
	fs.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	fs.BoolVar(&flags.noColor, "no-color", false, "disable colored startup banner")
	return fs
}

// getColor returns the requested color, or an uncolored object when
// noColor is set. The explicit EnableColor()/DisableColor() calls are
// needed because the library otherwise makes its own guess from
// os.Stdout, which this banner doesn't write to.
func getColor(noColor bool, attributes ...color.Attribute) *color.Color {
	if noColor {
		c := color.New()
		c.DisableColor()
		return c
	}
	c := color.New(attributes...)
	c.EnableColor()
	return c
}

func bannerLine(noColor bool, moduleServerURL string) string {
	label := getColor(noColor, color.FgGreen, color.Bold).Sprint("replete")
	url := getColor(noColor, color.FgCyan).Sprint(moduleServerURL)
	return fmt.Sprintf("%s serving modules at %s", label, url)
}

func run(ctx context.Context, flags *cliFlags) error {
	log := applog.New(flags.verbose)
	log.Debugf("replete starting, bind address %s:%d", flags.host, flags.port)

	addr := fmt.Sprintf("%s:%d", flags.host, flags.port)
	moduleServerURL := "http://" + addr

	fs := resolvefs.New(afero.NewOsFs(), resolvefs.NotFoundBareResolver)
	c, err := core.New(core.Capabilities{
		Locate:    fs.Locate,
		Read:      fs.Read,
		ReadBytes: fs.ReadBytes,
		Mime:      fs.Mime,
	})
	if err != nil {
		return fmt.Errorf("replete: start core: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.WithError(err).Warn("closing evaluator sessions")
		}
	}()

	relay := evalhost.NewBrowserRelay(moduleServerURL)

	registry := evalhost.NewRegistry()
	registry.Register("goja", evalhost.NewGojaFactory(c.GojaModuleLoader))
	registry.Register("browser", relay.Factory())
	for _, spec := range flags.execs {
		platform, execPath, args, err := parseExecFlag(spec)
		if err != nil {
			return fmt.Errorf("replete: %w", err)
		}
		registry.Register(platform, evalhost.NewSubprocessFactory(execPath, args, moduleServerURL))
		log.Debugf("registered subprocess evaluator %q -> %s %v", platform, execPath, args)
	}
	c.SetEvaluators(registry)

	// A networked evaluator (subprocess, browser) fetches modules over
	// this HTTP server using the same versioned locator form; Project
	// turns that into the URL form those evaluators expect, per spec
	// §4.6 step 2's "projected, versioned URL a given evaluator
	// platform expects".
	project := func(versionedLocator string) string {
		return moduleServerURL + strings.TrimPrefix(versionedLocator, "file://")
	}
	server := moduleserver.New(c.Tag(), resolvefs.ModuleMediaType, c, c, c, project, log)

	mux := http.NewServeMux()
	mux.Handle("/__replete_ws__", relay.Handler())
	mux.Handle("/", server.Handler())

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("replete: listen on %s: %w", addr, err)
	}
	httpServer := &http.Server{Handler: mux}
	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("module server stopped unexpectedly")
		}
	}()
	defer httpServer.Close()
	log.Infof("module server listening on %s", moduleServerURL)
	fmt.Fprintln(os.Stderr, bannerLine(flags.noColor, moduleServerURL))

	return serveCommands(ctx, log, c, os.Stdin, os.Stdout)
}

// serveCommands runs spec §6's command/result stdio loop: one goroutine
// per incoming command line, so a slow evaluation never blocks the
// next command's dispatch, matching spec §5's "no global ordering
// across commands" rule.
func serveCommands(ctx context.Context, log *logrus.Logger, c *core.Core, in io.Reader, out io.Writer) error {
	reader := protocol.NewReader(in)
	writer := protocol.NewWriter(out)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		cmd, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("replete: read command: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, result := range c.Handle(ctx, cmd) {
				if err := writer.Write(result); err != nil {
					log.WithError(err).Error("write result")
				}
			}
		}()
	}
}

// parseExecFlag parses "platform=path" or "platform=path:arg1,arg2".
func parseExecFlag(spec string) (platform, execPath string, args []string, err error) {
	platform, rest, ok := strings.Cut(spec, "=")
	if !ok || platform == "" || rest == "" {
		return "", "", nil, fmt.Errorf("invalid --exec value %q, want platform=path", spec)
	}
	execPath, argList, hasArgs := strings.Cut(rest, ":")
	if hasArgs && argList != "" {
		args = strings.Split(argList, ",")
	}
	return platform, execPath, args, nil
}
