package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/accelkit/acceldiag/internal/log"
	"github.com/accelkit/acceldiag/internal/service"
)

var (
	userConfigPath string // /default/config/path/acceldiag on given OS
	configPath     string // actual config file used (if loaded)
	config         service.Config

	flagConfigFilePath string
	flagVerbose        bool
	flagJSON           bool
	flagHost           string
	flagIterations     uint32
	flagDevices        string
	flagRunVersion     uint32
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "acceldiag")
}

func main() {
	// .env first, so config and flags can reference it
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is acceldiag.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging and report details")

	runCmd.Flags().StringVar(&flagHost, "host", "", "daemon address, e.g. http://localhost:5555")
	runCmd.Flags().Uint32Var(&flagIterations, "iterations", 0, "how many times to repeat the run")
	runCmd.Flags().StringVar(&flagDevices, "devices", "", "comma-separated device index list")
	runCmd.Flags().Uint32Var(&flagRunVersion, "message-version", 0, "run message version to speak (default: highest supported)")
	runCmd.Flags().BoolVar(&flagJSON, "json", false, "emit the JSON document instead of the table")

	watchCmd.Flags().StringVar(&flagHost, "host", "", "daemon address, e.g. http://localhost:5555")
	watchCmd.Flags().BoolVar(&flagJSON, "json", false, "emit the JSON document instead of the table")

	// never print messages
	rootCmd.SilenceErrors = true

	rootCmd.PersistentPreRunE = initConfig

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("acceldiag failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "acceldiag",
	Short:        "Run hardware/software diagnostics against accelerator devices",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run submits a diagnostic to the daemon and reports the result",
	RunE:  doRun,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "watch runs the diagnostic repeatedly on the configured schedule",
	RunE:  doWatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides the version of acceldiag",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("acceldiag: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("acceldiag: %s\n", info.Main.Version)
		fmt.Printf("go:        %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:  %s\n", s.Value)
			}
		}
	},
}

func initConfig(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("ACCELDIAGCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{".", userConfigPath} {
			path := filepath.Join(d, "acceldiag.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	if configPath == "" {
		// no config anywhere: store the default one
		config = service.Default()
		configPath = filepath.Join(userConfigPath, "acceldiag.yaml")
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", filepath.Dir(configPath), err)
		}
		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", configPath, err)
		}
		defer func() {
			_ = f.Close()
		}()
		if err := config.WriteYAML(f); err != nil {
			return fmt.Errorf("storing configuration: %w", err)
		}
	} else {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", configPath, err)
		}
		var err error
		config, err = service.ParseConfig("diag")
		if err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// flags have precedence over the config file
	if flagVerbose {
		config.Verbose = true
	}
	if flagHost != "" {
		config.Host = flagHost
		config.Hosts = nil
	}
	if flagIterations > 0 {
		config.Iterations = flagIterations
	}
	if flagDevices != "" {
		config.Devices = flagDevices
	}
	if flagRunVersion > 0 {
		config.Version = flagRunVersion
	}

	slog.SetDefault(log.New(config.Verbose, os.Stderr))
	slog.Debug("acceldiag start", "configPath", configPath)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
