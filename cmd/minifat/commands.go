package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rstms/minifat/fat"
	"github.com/rstms/minifat/image"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "create an empty disk image",
	Long: `
Create the image file and write an empty file system to it. The image
size is cluster-size * clusters bytes.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := geometry(cmd)
		if err != nil {
			return err
		}
		img, err := image.CreateImage(imageFile(), config, options())
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), img.Stats())
		return img.Close()
	},
}

var dirCmd = &cobra.Command{
	Use:   "dir [PATH]",
	Short: "list a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withImage(func(img *image.Image, cwd image.Cursor) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			records, err := img.List(cwd, path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var total int64
			for _, r := range records {
				if r.Dir {
					fmt.Fprintf(out, "%-12s %10s\n", r.Name, "<DIR>")
				} else {
					fmt.Fprintf(out, "%-12s %10s\n", r.Name, humanize.Comma(r.Size))
					total += r.Size
				}
			}
			stats := img.Stats()
			fmt.Fprintf(out, "%d entries, %s used, %s free\n", len(records),
				humanize.IBytes(uint64(total)), humanize.IBytes(uint64(stats.FreeBytes())))
			return nil
		})
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "list every file and directory on the disk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withImage(func(img *image.Image, cwd image.Cursor) error {
			records, err := img.ScanFiles()
			if err != nil {
				return err
			}
			for _, r := range records {
				kind := "f"
				if r.Dir {
					kind = "d"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %8d %s\n", kind, r.Size, r.Path)
			}
			return nil
		})
	},
}

var cdCmd = &cobra.Command{
	Use:   "cd PATH",
	Short: "resolve a directory and print it as a cursor",
	Long: `
Resolve PATH against --cwd and print the resulting directory. Pass the
output back with --cwd or MINIFAT_CWD to work inside it.
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withImage(func(img *image.Image, cwd image.Cursor) error {
			next, err := img.Chdir(cwd, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), next)
			return nil
		})
	},
}

var pwdCmd = &cobra.Command{
	Use:   "pwd",
	Short: "print the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withImage(func(img *image.Image, cwd image.Cursor) error {
			current, err := img.Chdir(cwd, "")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), current)
			return nil
		})
	},
}

var mdCmd = &cobra.Command{
	Use:     "md PATH...",
	Aliases: []string{"mkdir"},
	Short:   "create directories",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withImage(func(img *image.Image, cwd image.Cursor) error {
			return image.Each(args, func(path string) error {
				return img.Mkdir(cwd, path)
			})
		})
	},
}

var rdCmd = &cobra.Command{
	Use:     "rd PATH...",
	Aliases: []string{"rmdir"},
	Short:   "remove empty directories",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, err := cmd.Flags().GetBool("recursive")
		if err != nil {
			return err
		}
		return withImage(func(img *image.Image, cwd image.Cursor) error {
			return image.Each(args, func(path string) error {
				if recursive {
					return img.RemoveAll(cwd, path)
				}
				return img.Rmdir(cwd, path)
			})
		})
	},
}

var echoCmd = &cobra.Command{
	Use:   "echo NAME...",
	Short: "create empty files",
	Long: `
Create empty files. A name without an extension gets .txt appended.
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withImage(func(img *image.Image, cwd image.Cursor) error {
			return image.Each(args, func(path string) error {
				return img.CreateFile(cwd, withDefaultExt(path))
			})
		})
	},
}

// withDefaultExt appends .txt to the final component of path when it has
// no extension.
func withDefaultExt(path string) string {
	i := strings.LastIndexAny(path, `\/:`)
	name := path[i+1:]
	if name == "" || fat.HasExt(name) {
		return path
	}
	return path + ".txt"
}

var writeCmd = &cobra.Command{
	Use:   "write PATH",
	Short: "write standard input to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		return withImage(func(img *image.Image, cwd image.Cursor) error {
			return img.WriteFile(cwd, args[0], data)
		})
	},
}

var typeCmd = &cobra.Command{
	Use:     "type PATH...",
	Aliases: []string{"cat"},
	Short:   "print file content",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withImage(func(img *image.Image, cwd image.Cursor) error {
			return image.Each(args, func(path string) error {
				data, err := img.ReadFile(cwd, path)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		})
	},
}

var delCmd = &cobra.Command{
	Use:     "del PATH...",
	Aliases: []string{"rm"},
	Short:   "delete files",
	Long: `
Delete files. Given a directory, delete the files directly inside it;
subdirectories are left alone.
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withImage(func(img *image.Image, cwd image.Cursor) error {
			return image.Each(args, func(path string) error {
				return img.Delete(cwd, path)
			})
		})
	},
}

var renameCmd = &cobra.Command{
	Use:     "rename PATH NEWNAME",
	Aliases: []string{"ren"},
	Short:   "rename a file",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withImage(func(img *image.Image, cwd image.Cursor) error {
			return img.Rename(cwd, args[0], args[1])
		})
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy SRC [DST]",
	Short: "copy a file or the files of a directory",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withImage(func(img *image.Image, cwd image.Cursor) error {
			n, err := img.Copy(cwd, args[0], optionalArg(args, 1), viper.GetBool("force"))
			fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) copied\n", n)
			return err
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import HOST_PATH [DST]",
	Short: "copy a host file or directory onto the disk",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withImage(func(img *image.Image, cwd image.Cursor) error {
			n, err := img.Import(cwd, args[0], optionalArg(args, 1), viper.GetBool("force"))
			fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) imported\n", n)
			return err
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export SRC HOST_PATH",
	Short: "copy a file or directory from the disk to the host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withImage(func(img *image.Image, cwd image.Cursor) error {
			n, err := img.Export(cwd, args[0], args[1], viper.GetBool("force"))
			fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) exported\n", n)
			return err
		})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "show disk geometry and usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withImage(func(img *image.Image, cwd image.Cursor) error {
			printStats(cmd.OutOrStdout(), img.Stats())
			return nil
		})
	},
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite DST_IMAGE",
	Short: "copy the disk into a new image with different geometry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := geometry(cmd)
		if err != nil {
			return err
		}
		return image.RewriteImage(args[0], imageFile(), config, options())
	},
}

var mungeCmd = &cobra.Command{
	Use:   "munge DST_IMAGE HOST_FILE...",
	Short: "copy the disk into a larger image and add host files to its root",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return image.MungeImage(args[0], imageFile(), args[1:], options())
	},
}

// geometry reads the format flags, falling back to the config file and
// MINIFAT_ environment.
func geometry(cmd *cobra.Command) (*fat.Config, error) {
	config := &fat.Config{
		ClusterSize: viper.GetInt("cluster-size"),
		Clusters:    viper.GetInt("clusters"),
		Drive:       viper.GetString("drive"),
	}
	flags := cmd.Flags()
	var err error
	if flags.Changed("cluster-size") {
		if config.ClusterSize, err = flags.GetInt("cluster-size"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("clusters") {
		if config.Clusters, err = flags.GetInt("clusters"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("drive") {
		if config.Drive, err = flags.GetString("drive"); err != nil {
			return nil, err
		}
	}
	return config, nil
}

func optionalArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

func printStats(out io.Writer, s image.Stats) {
	fmt.Fprintf(out, "drive:    %s\n", s.Drive)
	fmt.Fprintf(out, "clusters: %d of %s\n", s.TotalClusters, humanize.IBytes(uint64(s.ClusterSize)))
	fmt.Fprintf(out, "used:     %d\n", s.UsedClusters)
	fmt.Fprintf(out, "free:     %d (%s of %s)\n", s.FreeClusters,
		humanize.IBytes(uint64(s.FreeBytes())), humanize.IBytes(uint64(s.TotalBytes())))
}

func init() {
	for _, cmd := range []*cobra.Command{formatCmd, rewriteCmd} {
		cmd.Flags().Int("cluster-size", 0, "cluster size in bytes (default 1024)")
		cmd.Flags().Int("clusters", 0, "cluster count (default 1024)")
		cmd.Flags().String("drive", "", "drive letter (default C)")
	}
	rdCmd.Flags().BoolP("recursive", "r", false, "remove directories and everything below them")
	rootCmd.AddCommand(
		formatCmd, dirCmd, treeCmd, cdCmd, pwdCmd, mdCmd, rdCmd, echoCmd,
		writeCmd, typeCmd, delCmd, renameCmd, copyCmd, importCmd, exportCmd,
		infoCmd, rewriteCmd, mungeCmd,
	)
}
