package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rstms/go-common"
	"github.com/rstms/minifat/image"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const Version = "0.1.0"

var cfgFile string

// hostFs holds image files and import/export targets.
var hostFs afero.Fs = afero.NewOsFs()

var rootCmd = &cobra.Command{
	Use:     "minifat",
	Version: Version,
	Short:   "manage Mini-FAT virtual disk images",
	Long: `
Create and modify Mini-FAT disk images: a FAT-style allocation table, 8.3
names, and directories stored as cluster chains inside a single host file.

Paths use \ (or /) as the delimiter. C:\DOCS is drive-absolute, \DOCS is
root-absolute, anything else is relative to --cwd.
`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.minifat.yaml)")
	OptionString(rootCmd, "image", "i", "minifat.img", "disk image file")
	OptionString(rootCmd, "cwd", "C", "", "current directory on the disk")
	OptionSwitch(rootCmd, "verbose", "v", "log each operation")
	OptionSwitch(rootCmd, "force", "f", "overwrite existing files")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if common.IsFile("minifat.yaml") {
		viper.SetConfigFile("minifat.yaml")
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".minifat")
	}
	viper.SetEnvPrefix("minifat")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil && viper.GetBool("verbose") {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func OptionSwitch(cmd *cobra.Command, name, flag, description string) {
	if flag == "" {
		cmd.PersistentFlags().Bool(name, false, description)
	} else {
		cmd.PersistentFlags().BoolP(name, flag, false, description)
	}
	viper.BindPFlag(name, cmd.PersistentFlags().Lookup(name))
}

func OptionString(cmd *cobra.Command, name, flag, defaultValue, description string) {
	if flag == "" {
		cmd.PersistentFlags().String(name, defaultValue, description)
	} else {
		cmd.PersistentFlags().StringP(name, flag, defaultValue, description)
	}
	viper.BindPFlag(name, cmd.PersistentFlags().Lookup(name))
}

func options() *image.Options {
	return &image.Options{Fs: hostFs, Verbose: viper.GetBool("verbose")}
}

func imageFile() string {
	return filepath.Clean(viper.GetString("image"))
}

// withImage opens the configured image, runs fn against the configured
// cursor, and closes the image.
func withImage(fn func(*image.Image, image.Cursor) error) (err error) {
	img, err := image.OpenImage(imageFile(), options())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := img.Close(); err == nil {
			err = cerr
		}
	}()
	cwd := image.Cursor(viper.GetString("cwd"))
	if cwd == "" {
		cwd = img.Root()
	}
	return fn(img, cwd)
}
