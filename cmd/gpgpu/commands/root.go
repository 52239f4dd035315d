// Package commands implements the gpgpu command line.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/gpgpu"
	"github.com/gogpu/gpgpu/backend"

	// Register the devices.
	_ "github.com/gogpu/gpgpu/backend/soft"
	_ "github.com/gogpu/gpgpu/backend/wgpu"
)

var cfgFile string

// rootCmd represents the base command
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gpgpu",
		Short: "General-purpose computation on GPU textures",
		Long: `gpgpu runs element-wise kernels written in WGSL over buffers stored
as textures.

Use "info" to see which devices are available, "shader" to print the
program synthesized for a kernel and "run" to execute a sample kernel.`,
		Version:       gpgpu.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if viper.GetBool("verbose") {
				gpgpu.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gpgpu/config.yaml)")
	cmd.PersistentFlags().StringP("backend", "b", "", "device backend (default: first available of "+backend.BackendWGPU+", "+backend.BackendSoft+")")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log device and kernel activity to stderr")

	_ = viper.BindPFlag("backend", cmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))

	cmd.AddCommand(newInfoCmd(), newShaderCmd(), newRunCmd())
	return cmd
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.gpgpu")
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("GPGPU")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && viper.GetBool("verbose") {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// openDevice opens the configured backend, or the default one.
func openDevice() (gpgpu.Device, error) {
	if name := viper.GetString("backend"); name != "" {
		return backend.Open(name)
	}
	return backend.OpenDefault()
}
