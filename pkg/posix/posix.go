// Package posix provides cross-platform implementations of the few POSIX file
// tools the build scripts rely on (rm, mkdir, mv and cp). The shell runner
// routes these commands here instead of executing the host binaries.
package posix

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var commands = map[string]func(base string) *cobra.Command{
	"rm":    newRmCmd,
	"mkdir": newMkdirCmd,
	"mv":    newMvCmd,
	"cp":    newCpCmd,
}

// Handles reports whether name is implemented by this package.
func Handles(name string) bool {
	_, ok := commands[name]
	return ok
}

// Run executes args (args[0] being the tool name) with relative paths resolved against base.
// Failures are printed to stderr and returned.
func Run(ctx context.Context, base string, stdout, stderr io.Writer, args []string) error {
	if len(args) == 0 {
		return eris.New("no command given")
	}

	factory, ok := commands[args[0]]
	if !ok {
		return eris.Errorf("unsupported command %s", args[0])
	}

	cmd := factory(base)
	cmd.SetArgs(args[1:])
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %s\n", args[0], err)
	}
	return err
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) || base == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

// expand resolves the arguments against base. On Windows, the shell doesn't expand
// glob patterns for us so we do it here.
func expand(base string, args []string, allowEmpty bool) ([]string, error) {
	items := make([]string, 0, len(args))
	for _, arg := range args {
		path := resolve(base, arg)
		if runtime.GOOS != "windows" {
			items = append(items, path)
			continue
		}

		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve pattern %s", arg)
		}

		if matches == nil {
			if allowEmpty {
				continue
			}
			return nil, eris.Errorf("pattern %s produced no matches", arg)
		}

		items = append(items, matches...)
	}

	return items, nil
}

func newMvCmd(base string) *cobra.Command {
	return &cobra.Command{
		Use:   "mv",
		Short: "Cross-platform implementation of the POSIX mv command",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return eris.New("not enough parameters")
			}

			dest := resolve(base, args[len(args)-1])
			destParent := filepath.Dir(dest)
			info, err := os.Stat(destParent)
			if err != nil {
				return eris.Wrapf(err, "could not find destination directory %s", destParent)
			}

			if !info.IsDir() {
				return eris.Errorf("%s is not a directory", destParent)
			}

			items, err := expand(base, args[:len(args)-1], false)
			if err != nil {
				return err
			}

			destIsDir := false
			info, err = os.Stat(dest)
			if err == nil {
				destIsDir = info.IsDir()
			} else if !eris.Is(err, os.ErrNotExist) {
				return eris.Wrapf(err, "failed to retrieve info about destination %s", dest)
			}

			if len(items) > 1 && !destIsDir {
				return eris.Errorf("can't move multiple items to %s because it is not a directory", dest)
			}

			for _, item := range items {
				itemDest := dest
				if destIsDir {
					itemDest = filepath.Join(dest, filepath.Base(item))
				}

				err = os.Rename(item, itemDest)
				if err != nil {
					return eris.Wrapf(err, "failed to move %s to %s", item, itemDest)
				}
			}

			return nil
		},
	}
}

func newRmCmd(base string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "A cross-platform implementation of the POSIX rm command",
		RunE: func(cmd *cobra.Command, args []string) error {
			recursive, err := cmd.Flags().GetBool("recursive")
			if err != nil {
				return err
			}

			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}

			items, err := expand(base, args, force)
			if err != nil {
				return err
			}

			for _, item := range items {
				info, err := os.Lstat(item)
				if err != nil {
					if force && eris.Is(err, os.ErrNotExist) {
						continue
					}
					return eris.Wrapf(err, "could not stat %s", item)
				}

				if info.IsDir() && !recursive {
					return eris.Errorf("%s is a directory but -r wasn't passed", item)
				}
			}

			for _, item := range items {
				err := os.RemoveAll(item)
				if err != nil {
					return eris.Wrapf(err, "could not delete %s", item)
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolP("recursive", "r", false, "recursively delete directories")
	cmd.Flags().BoolP("force", "f", false, "suppresses errors caused by missing files/folders")
	return cmd
}

func newMkdirCmd(base string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir",
		Short: "A cross-platform implementation of the POSIX mkdir command",
		RunE: func(cmd *cobra.Command, args []string) error {
			makeParents, err := cmd.Flags().GetBool("parents")
			if err != nil {
				return err
			}

			for _, item := range args {
				path := resolve(base, item)
				if makeParents {
					err = os.MkdirAll(path, 0o770)
				} else {
					err = os.Mkdir(path, 0o770)
				}

				if err != nil {
					return eris.Wrapf(err, "failed to create %s", item)
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolP("parents", "p", false, "create parent directories as needed")
	return cmd
}

func newCpCmd(base string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cp",
		Short: "A cross-platform implementation of the POSIX cp command",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return eris.New("not enough parameters")
			}

			recursive, err := cmd.Flags().GetBool("recursive")
			if err != nil {
				return err
			}

			items, err := expand(base, args[:len(args)-1], false)
			if err != nil {
				return err
			}

			dest := resolve(base, args[len(args)-1])
			destIsDir := false
			info, err := os.Stat(dest)
			if err == nil {
				destIsDir = info.IsDir()
			} else if !eris.Is(err, os.ErrNotExist) {
				return eris.Wrapf(err, "failed to retrieve info about destination %s", dest)
			}

			if len(items) > 1 && !destIsDir {
				return eris.Errorf("can't copy multiple items to %s because it is not a directory", dest)
			}

			for _, item := range items {
				itemDest := dest
				if destIsDir {
					itemDest = filepath.Join(dest, filepath.Base(item))
				}

				err = copyItem(item, itemDest, recursive)
				if err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolP("recursive", "r", false, "copy directories recursively")
	return cmd
}

func copyItem(src, dest string, recursive bool) error {
	info, err := os.Stat(src)
	if err != nil {
		return eris.Wrapf(err, "could not stat %s", src)
	}

	if !info.IsDir() {
		return copyFile(src, dest, info.Mode())
	}

	if !recursive {
		return eris.Errorf("%s is a directory but -r wasn't passed", src)
	}

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}

		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}

	_, err = io.Copy(out, in)
	if err != nil {
		out.Close()
		return eris.Wrapf(err, "failed to copy %s to %s", src, dest)
	}

	return out.Close()
}
