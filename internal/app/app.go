package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/yugasun/teus/internal/config"
	"github.com/yugasun/teus/internal/di"
	"github.com/yugasun/teus/internal/utils"
	"github.com/yugasun/teus/pkg/docker"
	"github.com/yugasun/teus/pkg/errors"
	"github.com/yugasun/teus/pkg/snapshot"
)

// App wires configuration, the service container and the command tree
type App struct {
	version    string
	buildDate  string
	out        io.Writer
	container  *di.Container
	clientOpts []docker.ClientOption

	cfg *config.Config
}

// Option configures an App
type Option func(*App)

// WithOutput sends command output to w instead of stdout
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithContainer replaces the process-wide service container
func WithContainer(c *di.Container) Option {
	return func(a *App) { a.container = c }
}

// WithClientOptions passes extra options to the docker client
func WithClientOptions(opts ...docker.ClientOption) Option {
	return func(a *App) { a.clientOpts = append(a.clientOpts, opts...) }
}

// New creates the application
func New(version, buildDate string, opts ...Option) *App {
	a := &App{
		version:   version,
		buildDate: buildDate,
		out:       os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.container == nil {
		a.container = di.GetInstance()
	}
	return a
}

// Run executes the command line with signal handling, as called from main
func Run(version, buildDate string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	go func() {
		select {
		case sig := <-signalCh:
			log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return New(version, buildDate).Run(ctx, os.Args)
}

// Run parses global configuration from args and dispatches the command
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"teus"}
	}

	cfg, rest, err := config.ParseConfig(args[1:])
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	a.cfg = cfg

	utils.InitLogger(cfg.LogLevel, cfg.LogFile, cfg.LogFormat)
	defer func() {
		if err := a.container.Cleanup(); err != nil {
			log.Warn().Err(err).Msg("Cleanup failed")
		}
	}()

	return a.cli().RunContext(ctx, append([]string{args[0]}, rest...))
}

func (a *App) cli() *cli.App {
	filterFlag := &cli.StringSliceFlag{
		Name:    "filter",
		Aliases: []string{"f"},
		Usage:   "filter output as key=value (repeatable)",
	}
	allFlag := &cli.BoolFlag{
		Name:    "all",
		Aliases: []string{"a"},
		Usage:   "include stopped containers or intermediate images",
	}

	return &cli.App{
		Name:        "teus",
		Usage:       "query a Docker Engine over its Unix socket",
		Version:     a.version,
		HideVersion: true,
		Writer:      a.out,
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "show the daemon version",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "client", Usage: "only show the teus version"},
				},
				Action: a.versionAction,
			},
			{
				Name:   "info",
				Usage:  "show system-wide daemon information",
				Action: a.withClient(a.infoAction),
			},
			{
				Name:   "ping",
				Usage:  "check that the daemon answers",
				Action: a.withClient(a.pingAction),
			},
			{
				Name:    "containers",
				Aliases: []string{"ps"},
				Usage:   "list containers",
				Flags:   []cli.Flag{allFlag, filterFlag},
				Action:  a.withClient(a.containersAction),
			},
			{
				Name:      "container",
				Usage:     "inspect one container",
				ArgsUsage: "<id>",
				Action:    a.withClient(a.containerAction),
			},
			{
				Name:   "volumes",
				Usage:  "list volumes",
				Flags:  []cli.Flag{filterFlag},
				Action: a.withClient(a.volumesAction),
			},
			{
				Name:      "volume",
				Usage:     "inspect one volume",
				ArgsUsage: "<name>",
				Action:    a.withClient(a.volumeAction),
			},
			{
				Name:   "images",
				Usage:  "list images",
				Flags:  []cli.Flag{allFlag, filterFlag},
				Action: a.withClient(a.imagesAction),
			},
			{
				Name:   "networks",
				Usage:  "list networks",
				Flags:  []cli.Flag{filterFlag},
				Action: a.withClient(a.networksAction),
			},
			{
				Name:  "snapshot",
				Usage: "collect a report of the whole daemon",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write the report to `FILE`"},
				},
				Action: a.withClient(a.snapshotAction),
			},
			{
				Name:  "serve",
				Usage: "serve daemon queries as JSON over HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "listen on `ADDR`"},
				},
				Action: a.serveAction,
			},
			{
				Name:      "completion",
				Usage:     "print a shell completion script",
				ArgsUsage: "<bash|zsh|fish>",
				Action: func(cCtx *cli.Context) error {
					return config.GenerateCompletion(a.out, cCtx.Args().First())
				},
			},
		},
	}
}

// withClient initializes the service container before running action
func (a *App) withClient(action func(*cli.Context, docker.ClientInterface) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		if err := a.container.Initialize(cCtx.Context, a.cfg, a.version, a.clientOpts...); err != nil {
			return err
		}
		return action(cCtx, a.container.GetDockerClient())
	}
}

func (a *App) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.NewSystemError("app", "failed to encode output", err)
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

func listQuery(cCtx *cli.Context) (string, error) {
	args, err := docker.ParseFilters(cCtx.StringSlice("filter"))
	if err != nil {
		return "", errors.NewValidationError("app", err.Error(), err)
	}
	return docker.ListQuery{All: cCtx.Bool("all"), Filters: args}.Encode()
}

func requireArg(cCtx *cli.Context, name string) (string, error) {
	value := cCtx.Args().First()
	if value == "" {
		return "", errors.NewValidationError("app", fmt.Sprintf("%s %s is required", cCtx.Command.Name, name), nil)
	}
	return value, nil
}

func (a *App) versionAction(cCtx *cli.Context) error {
	if cCtx.Bool("client") {
		_, err := fmt.Fprintf(a.out, "teus version %s (built on %s)\n", a.version, a.buildDate)
		return err
	}
	return a.withClient(func(cCtx *cli.Context, client docker.ClientInterface) error {
		v, err := client.Version(cCtx.Context)
		if err != nil {
			return err
		}
		return a.printJSON(v)
	})(cCtx)
}

func (a *App) infoAction(cCtx *cli.Context, client docker.ClientInterface) error {
	info, err := client.Info(cCtx.Context)
	if err != nil {
		return err
	}
	return a.printJSON(info)
}

func (a *App) pingAction(cCtx *cli.Context, client docker.ClientInterface) error {
	pong, err := client.Ping(cCtx.Context)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, pong)
	return err
}

func (a *App) containersAction(cCtx *cli.Context, client docker.ClientInterface) error {
	query, err := listQuery(cCtx)
	if err != nil {
		return err
	}
	list, err := client.ContainerList(cCtx.Context, query)
	if err != nil {
		return err
	}
	return a.printJSON(list)
}

func (a *App) containerAction(cCtx *cli.Context, client docker.ClientInterface) error {
	id, err := requireArg(cCtx, "<id>")
	if err != nil {
		return err
	}
	info, err := client.ContainerInspect(cCtx.Context, id)
	if err != nil {
		return err
	}
	return a.printJSON(info)
}

func (a *App) volumesAction(cCtx *cli.Context, client docker.ClientInterface) error {
	query, err := listQuery(cCtx)
	if err != nil {
		return err
	}
	resp, err := client.VolumeList(cCtx.Context, query)
	if err != nil {
		return err
	}
	return a.printJSON(resp)
}

func (a *App) volumeAction(cCtx *cli.Context, client docker.ClientInterface) error {
	name, err := requireArg(cCtx, "<name>")
	if err != nil {
		return err
	}
	vol, err := client.VolumeInspect(cCtx.Context, name)
	if err != nil {
		return err
	}
	return a.printJSON(vol)
}

func (a *App) imagesAction(cCtx *cli.Context, client docker.ClientInterface) error {
	query, err := listQuery(cCtx)
	if err != nil {
		return err
	}
	list, err := client.ImageList(cCtx.Context, query)
	if err != nil {
		return err
	}
	return a.printJSON(list)
}

func (a *App) networksAction(cCtx *cli.Context, client docker.ClientInterface) error {
	query, err := listQuery(cCtx)
	if err != nil {
		return err
	}
	list, err := client.NetworkList(cCtx.Context, query)
	if err != nil {
		return err
	}
	return a.printJSON(list)
}

func (a *App) snapshotAction(cCtx *cli.Context, _ docker.ClientInterface) error {
	snap, err := a.container.GetCollector().Collect(cCtx.Context)
	if err != nil {
		return err
	}

	output := a.cfg.OutputPath
	if cCtx.IsSet("output") {
		output = cCtx.String("output")
	}
	return snapshot.WriteReport(snap, output, a.out)
}

func (a *App) serveAction(cCtx *cli.Context) error {
	if cCtx.IsSet("listen") {
		a.cfg.ListenAddr = cCtx.String("listen")
	}
	return a.withClient(func(cCtx *cli.Context, _ docker.ClientInterface) error {
		return a.container.GetAPIServer().Run(cCtx.Context)
	})(cCtx)
}
