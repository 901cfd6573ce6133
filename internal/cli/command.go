package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/thrushlang/thrushdeps/internal/config"
	"github.com/thrushlang/thrushdeps/internal/extract"
	gh "github.com/thrushlang/thrushdeps/internal/host/github"
	"github.com/thrushlang/thrushdeps/internal/index"
	"github.com/thrushlang/thrushdeps/internal/model"
	"github.com/thrushlang/thrushdeps/internal/pipeline"
	"github.com/thrushlang/thrushdeps/internal/platform"
	"github.com/thrushlang/thrushdeps/internal/report"
)

var errUsage = errors.New("usage")

type options struct {
	configPath   string
	indexURL     string
	assetURL     string
	tag          string
	stagingDir   string
	strategy     string
	extractor    string
	probeAddress string
	logLevel     string

	keepArchive    bool
	discardArchive bool
	force          bool
	noProbe        bool
	noVerify       bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, e env) int {
	var (
		opts options
		code int
	)
	cmd := &cobra.Command{
		Use:   "thrushdeps [flags] <platform>",
		Short: "Install the prebuilt LLVM-C API the Thrush compiler builds against",
		Long: `thrushdeps downloads the prebuilt LLVM-C API for the given platform and
installs it where the Thrush compiler build expects it.

Available operating systems: ` + platform.SupportedList(),
		Version: Version,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errUsage
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			code = execute(cmd.Context(), cmd, args[0], opts, stdout, stderr, e)
			return nil
		},

		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("thrushdeps {{.Version}}\n")

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "YAML file overriding the built-in configuration")
	f.StringVar(&opts.indexURL, "index-url", "", "release index URL")
	f.StringVar(&opts.assetURL, "asset-url", "", "download this archive instead of consulting the release index")
	f.StringVar(&opts.tag, "tag", "", "release tag to install from")
	f.StringVar(&opts.stagingDir, "staging-dir", "", "directory the archive is downloaded into")
	f.StringVar(&opts.strategy, "strategy", "", "tie-break between matching assets: digitsum or semver")
	f.StringVar(&opts.extractor, "extractor", "", "archive extractor: native or tar")
	f.StringVar(&opts.probeAddress, "probe-address", "", "host:port dialed to check connectivity")
	f.StringVar(&opts.logLevel, "log-level", "warning", "log level (debug, info, warning, error)")
	f.BoolVar(&opts.keepArchive, "keep-archive", false, "keep the downloaded archive without asking")
	f.BoolVar(&opts.discardArchive, "discard-archive", false, "delete the downloaded archive without asking")
	f.BoolVar(&opts.force, "force", false, "reinstall even if the same asset is already installed")
	f.BoolVar(&opts.noProbe, "no-probe", false, "skip the connectivity check")
	f.BoolVar(&opts.noVerify, "no-verify", false, "skip checksum verification")
	cmd.MarkFlagsMutuallyExclusive("keep-archive", "discard-archive")

	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetIn(e.stdin)

	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		printUsage(stderr)
		return 1
	}
	return code
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: thrushdeps <platform>")
	fmt.Fprintf(w, "Available operating systems: %s\n", platform.SupportedList())
}

func execute(ctx context.Context, cmd *cobra.Command, name string, opts options, stdout, stderr io.Writer, e env) int {
	rep := &report.Reporter{Color: isColorWriter(stdout) && e.getenv("NO_COLOR") == ""}

	key, err := platform.Identify(name)
	if err != nil {
		rep.Error(stderr, err)
		printUsage(stderr)
		return 1
	}

	log, err := newLogger(stderr, opts.logLevel)
	if err != nil {
		return rep.Error(stderr, err)
	}

	cfg, err := buildConfig(cmd, opts, e.getenv)
	if err != nil {
		return rep.Error(stderr, err)
	}

	cwd, err := e.getwd()
	if err != nil {
		return rep.Error(stderr, err)
	}
	paths, err := platform.ResolvePaths(key, cfg, e.getenv, cwd)
	if err != nil {
		return rep.Error(stderr, err)
	}
	log.WithFields(logrus.Fields{"final": paths.FinalDir, "staging": paths.StagingDir}).Debug("resolved install paths")

	extractor, err := extract.New(cfg.Extractor)
	if err != nil {
		return rep.Error(stderr, err)
	}
	if n, ok := extractor.(extract.Native); ok {
		n.Log = log
		extractor = n
	}

	var prober *index.Prober
	if !cfg.Probe.Disabled {
		prober = &index.Prober{Address: cfg.Probe.Address, Timeout: cfg.Probe.Timeout()}
	}

	runner := &pipeline.Runner{
		Config:    cfg,
		Platform:  key,
		Paths:     paths,
		HTTP:      &gh.Client{UserAgent: gh.UserAgent(Version), Token: cfg.Token},
		Prober:    prober,
		Extractor: extractor,
		Reporter:  rep,
		Log:       log,
		Out:       stdout,
		Force:     opts.force,
		Retention: retention(opts),
	}
	if e.terminal {
		runner.Confirm = prompter(stdout, e.stdin)
	}

	if err := runner.Run(ctx); err != nil {
		rep.Error(stderr, err)
		if rep.Failed() {
			rep.Finish(stderr)
		}
		return 1
	}
	return rep.Finish(stdout)
}

// buildConfig layers defaults, the optional YAML file, the environment and
// explicitly set flags, in that order, and validates the result.
func buildConfig(cmd *cobra.Command, opts options, getenv func(string) string) (config.Config, error) {
	cfg, err := config.Defaults()
	if err != nil {
		return config.Config{}, err
	}
	if opts.configPath != "" {
		if cfg, err = config.LoadFile(cfg, opts.configPath); err != nil {
			return config.Config{}, err
		}
	}
	cfg = config.ApplyEnv(cfg, getenv)

	changed := cmd.Flags().Changed
	if changed("index-url") {
		cfg.Index.URL = opts.indexURL
	}
	if changed("asset-url") {
		cfg.Index.AssetURL = opts.assetURL
	}
	if changed("tag") {
		cfg.Index.Tag = opts.tag
	}
	if changed("staging-dir") {
		cfg.Install.StagingDir = opts.stagingDir
	}
	if changed("strategy") {
		cfg.Selection.Strategy = strings.ToLower(opts.strategy)
	}
	if changed("extractor") {
		cfg.Extractor = strings.ToLower(opts.extractor)
	}
	if changed("probe-address") {
		cfg.Probe.Address = opts.probeAddress
	}
	if opts.noProbe {
		cfg.Probe.Disabled = true
	}
	if opts.noVerify {
		cfg.VerifyChecksums = false
	}

	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: --log-level: %w", model.ErrInvalidConfig, err)
	}
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return log, nil
}

func retention(opts options) pipeline.Retention {
	switch {
	case opts.keepArchive:
		return pipeline.RetainKeep
	case opts.discardArchive:
		return pipeline.RetainDiscard
	default:
		return pipeline.RetainAsk
	}
}

// prompter asks on w and reads one line from r.
func prompter(w io.Writer, r io.Reader) func(string) (string, error) {
	br := bufio.NewReader(r)
	return func(question string) (string, error) {
		fmt.Fprint(w, question+" ")
		line, err := br.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}
