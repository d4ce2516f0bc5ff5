package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/testmemo/cmd/testmemo/internal/fingerprint"
	"github.com/albertocavalcante/testmemo/cmd/testmemo/internal/impact"
	"github.com/albertocavalcante/testmemo/cmd/testmemo/internal/passrecord"
	"github.com/albertocavalcante/testmemo/cmd/testmemo/internal/report"
	"github.com/albertocavalcante/testmemo/cmd/testmemo/internal/toolchain"
	"github.com/albertocavalcante/testmemo/cmd/testmemo/internal/workspace"
	"github.com/albertocavalcante/testmemo/internal/log"
	"github.com/albertocavalcante/testmemo/pkg/config"
	"github.com/albertocavalcante/testmemo/pkg/target"
)

// buildFlags are shared by the impact and mark-passed commands.
type buildFlags struct {
	targets       string
	except        string
	platform      string
	configuration string
	arch          string
	buildArgs     []string
	outputPath    string
	json          bool
	noColor       bool
}

func addBuildFlags(cmd *cobra.Command, f *buildFlags) {
	flags := cmd.Flags()
	flags.StringVarP(&f.targets, "targets", "t", "",
		"Only include targets whose label matches this regular expression")
	flags.StringVarP(&f.except, "except", "e", "",
		"Exclude targets whose label matches this regular expression")
	flags.StringVar(&f.platform, "platform", "",
		"Target platform (default from config: host)")
	flags.StringVarP(&f.configuration, "configuration", "c", "",
		"Compilation mode (default from config: fastbuild)")
	flags.StringVar(&f.arch, "arch", "",
		"Target architecture (default from config: host architecture)")
	flags.StringArrayVar(&f.buildArgs, "build-arg", nil,
		"Extra build argument (repeatable, order matters)")
	flags.StringVar(&f.outputPath, "output-path", "",
		"Output path that distinguishes builds")
	flags.BoolVar(&f.json, "json", false,
		"Stream JSON events instead of text")
	flags.BoolVar(&f.noColor, "no-color", false,
		"Disable colored output")
}

// applyTo overrides cfg with the flags the user set.
func (f *buildFlags) applyTo(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("targets") {
		cfg.Targets.Include = f.targets
	}
	if flags.Changed("except") {
		cfg.Targets.Exclude = f.except
	}
	if flags.Changed("platform") {
		cfg.Build.Platform = f.platform
	}
	if flags.Changed("configuration") {
		cfg.Build.Configuration = f.configuration
	}
	if flags.Changed("arch") {
		cfg.Build.Arch = f.arch
	}
	if flags.Changed("build-arg") {
		cfg.Build.Args = append([]string(nil), f.buildArgs...)
	}
	if flags.Changed("output-path") {
		cfg.Build.OutputPath = f.outputPath
	}
}

// compileFilter compiles the target selection patterns. Empty patterns
// select everything and exclude nothing.
func compileFilter(include, exclude string) (impact.Filter, error) {
	var f impact.Filter
	if include != "" {
		re, err := regexp.Compile(include)
		if err != nil {
			return f, fmt.Errorf("invalid --targets pattern: %w", err)
		}
		f.Include = re
	}
	if exclude != "" {
		re, err := regexp.Compile(exclude)
		if err != nil {
			return f, fmt.Errorf("invalid --except pattern: %w", err)
		}
		f.Exclude = re
	}
	return f, nil
}

// session is everything one command invocation needs.
type session struct {
	root    string
	cfg     *config.Config
	build   target.BuildConfig
	filter  impact.Filter
	store   passrecord.Store
	printer *report.Printer
	coord   *impact.Coordinator
}

// findWorkspace returns the --workspace root or the detected one.
func findWorkspace() (string, error) {
	if globalFlags.workspace != "" {
		root, err := filepath.Abs(globalFlags.workspace)
		if err != nil {
			return "", err
		}
		info, err := os.Stat(root)
		if err != nil {
			return "", fmt.Errorf("invalid workspace %s: %w", globalFlags.workspace, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("workspace must be a directory: %s", globalFlags.workspace)
		}
		return root, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return workspace.FindRoot(wd)
}

// loadConfig finds the workspace and loads its layered configuration.
func loadConfig() (string, *config.Config, error) {
	root, err := findWorkspace()
	if err != nil {
		return "", nil, err
	}
	return root, config.LoadFrom(root), nil
}

// openSession assembles the coordinator and its collaborators. Filters are
// validated before any storage is opened.
func openSession(cmd *cobra.Command, f *buildFlags) (*session, error) {
	root, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	f.applyTo(cmd, cfg)

	filter, err := compileFilter(cfg.Targets.Include, cfg.Targets.Exclude)
	if err != nil {
		return nil, err
	}

	store, err := passrecord.Open(cfg, root)
	if err != nil {
		return nil, err
	}

	printer := report.New(report.Config{
		Out:     cmd.OutOrStdout(),
		Err:     cmd.ErrOrStderr(),
		Timings: log.Verbosity() >= log.VerbosityInfo,
		NoColor: f.noColor,
		JSON:    f.json,
	})

	resolver := workspace.NewResolver(root,
		workspace.WithTestKinds(cfg.Targets.TestKinds),
		workspace.WithIgnoreDirs(cfg.Targets.IgnoreDirs),
	)
	coord := impact.New(impact.Deps{
		Guard:         workspace.NewGuard(root),
		Diagnostics:   toolchain.FromConfig(cfg, root),
		Resolver:      resolver,
		Fingerprinter: fingerprint.New(root),
		Store:         store,
		Reporter:      printer,
	})

	log.Component("cli").Debug("session ready",
		"root", root,
		"backend", cfg.Storage.Backend,
		"state_dir", cfg.StateDir(root),
	)

	return &session{
		root:    root,
		cfg:     cfg,
		build:   cfg.BuildConfiguration(),
		filter:  filter,
		store:   store,
		printer: printer,
		coord:   coord,
	}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}
