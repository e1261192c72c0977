// Package pipeline declares the built-in kombu build tasks: the analyzer
// (yaminabe), the container runtime (dashi), the eBPF host (nimono) and the
// specimen programs the analyzer is tested against.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/Zakki0925224/kombu/build-tools/pkg/buildsys"
	"github.com/Zakki0925224/kombu/build-tools/pkg/config"
)

// Tasks holds the registered tasks so callers (and tests) can compose them further.
type Tasks struct {
	Clear          *buildsys.Task
	BuildSpecimens *buildsys.Task
	BuildDashi     *buildsys.Task
	BuildYaminabe  *buildsys.Task
	BuildNimono    *buildsys.Task
	Build          *buildsys.Task
	Run            *buildsys.Task
}

// relOutput returns the output directory as seen from dir, with forward slashes
// so the command strings look the same on every platform. An absolute output
// directory is used as is.
func relOutput(cfg *config.Config, dir string) (string, error) {
	out := filepath.Clean(cfg.Output.Dir)
	if filepath.IsAbs(out) {
		return filepath.ToSlash(out), nil
	}

	rel, err := filepath.Rel(filepath.Clean(dir), out)
	if err != nil {
		return "", eris.Wrapf(err, "failed to locate %s from %s", cfg.Output.Dir, dir)
	}

	return filepath.ToSlash(rel), nil
}

// outputPath is the output directory as used from the project root (./build).
func outputPath(cfg *config.Config) string {
	out := filepath.Clean(cfg.Output.Dir)
	if filepath.IsAbs(out) {
		return filepath.ToSlash(out)
	}
	return "./" + filepath.ToSlash(out)
}

// Register adds the kombu tasks to reg. Paths in cfg are relative to the runner's root.
func Register(reg *buildsys.Registry, runner *buildsys.Runner, cfg *config.Config) (*Tasks, error) {
	t := &Tasks{}
	var err error

	t.Clear, err = reg.Register("clear", "delete the build output", func(ctx context.Context) error {
		return runner.Run(ctx, "rm -rf "+outputPath(cfg))
	})
	if err != nil {
		return nil, err
	}

	t.BuildSpecimens, err = reg.Register("build_specimens", "build every program in "+cfg.Specimens.Root, func(ctx context.Context) error {
		specimens, err := buildsys.DiscoverSpecimens(filepath.Join(runner.Root, cfg.Specimens.Root))
		if err != nil {
			return err
		}

		for _, path := range specimens {
			rel, err := filepath.Rel(runner.Root, path)
			if err != nil {
				rel = path
			}

			err = runner.Run(ctx, cfg.Specimens.Build, buildsys.InDir(rel))
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	t.BuildDashi, err = reg.Register("build_dashi", "build the container runtime", func(ctx context.Context) error {
		out, err := relOutput(cfg, cfg.Dashi.Dir)
		if err != nil {
			return err
		}

		return runner.Run(ctx, fmt.Sprintf("go build -o %s/%s", out, cfg.Dashi.Name), buildsys.InDir(cfg.Dashi.Dir))
	})
	if err != nil {
		return nil, err
	}

	t.BuildYaminabe, err = reg.Register("build_yaminabe", "build the analyzer", func(ctx context.Context) error {
		out, err := relOutput(cfg, cfg.Yaminabe.Dir)
		if err != nil {
			return err
		}

		dir := buildsys.InDir(cfg.Yaminabe.Dir)
		for _, cmd := range []string{
			"cargo build",
			"mkdir -p " + out,
			fmt.Sprintf("cp ./target/debug/%s %s/%s", cfg.Yaminabe.Name, out, cfg.Yaminabe.Name),
		} {
			err = runner.Run(ctx, cmd, dir)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	t.BuildNimono, err = reg.Register("build_nimono", "compile the eBPF object and its Go host", func(ctx context.Context) error {
		out, err := relOutput(cfg, cfg.Nimono.Dir)
		if err != nil {
			return err
		}

		n := cfg.Nimono
		dir := buildsys.InDir(n.Dir)
		for _, cmd := range []string{
			fmt.Sprintf("%s -O2 -g -target bpf -c %s -o %s", n.CC, n.Source, n.Object),
			"mkdir -p " + out,
			fmt.Sprintf("cp %s %s/%s", n.Object, out, n.Object),
			fmt.Sprintf("go build -o %s/%s", out, n.Name),
		} {
			err = runner.Run(ctx, cmd, dir)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	t.Build, err = reg.Register("build", "clear and build everything", func(ctx context.Context) error {
		for _, task := range []*buildsys.Task{t.Clear, t.BuildSpecimens, t.BuildDashi, t.BuildYaminabe, t.BuildNimono} {
			if err := task.Run(ctx); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	t.Run, err = reg.Register("run", "build everything and analyze the hello specimen", func(ctx context.Context) error {
		err := t.Build.Run(ctx)
		if err != nil {
			return err
		}

		return runner.Run(ctx, fmt.Sprintf("%s/%s %s %s", outputPath(cfg), cfg.Yaminabe.Name, cfg.Run.Target, cfg.Run.Option))
	})
	if err != nil {
		return nil, err
	}

	return t, nil
}
