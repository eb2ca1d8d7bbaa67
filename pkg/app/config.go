package app

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/autopeer-io/robofleet/pkg/log"
)

const (
	configFlagName  = "config"
	envFileFlagName = "env-file"
)

var (
	cfgFile  string
	envFiles []string
)

// addConfigFlags registers --config and --env-file on fs.
func addConfigFlags(basename string, fs *pflag.FlagSet) {
	fs.StringVarP(&cfgFile, configFlagName, "c", cfgFile,
		"Read configuration from the specified `FILE`, supports JSON, TOML, YAML, HCL, or Java properties formats.")
	fs.StringSliceVar(&envFiles, envFileFlagName, envFiles,
		"Dotenv files loaded into the environment before configuration is read.")

	viper.SetEnvPrefix(envPrefix(basename))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// loadConfig loads dotenv files and the config file into viper.
func loadConfig(basename string) error {
	if err := loadEnvFiles(envFiles); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, "."+basename))
		}
		viper.AddConfigPath(filepath.Join("/etc", basename))
		viper.SetConfigName(basename)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			return nil
		}
		return err
	}

	log.Info("Using config file", "file", viper.ConfigFileUsed())
	return nil
}

// loadEnvFiles loads the given dotenv files; the default .env is optional.
func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	return godotenv.Load(files...)
}

// watchConfig re-applies hot-reloadable settings when the config file changes.
func watchConfig(onChange func()) {
	if viper.ConfigFileUsed() == "" {
		return
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if level := viper.GetString("log.level"); level != "" && log.SetLevel(level) {
			log.Info("Log level reloaded", "level", level)
		}
		if onChange != nil {
			onChange()
		}
	})
	viper.WatchConfig()
}

func envPrefix(basename string) string {
	prefix := strings.ToUpper(strings.ReplaceAll(basename, "-", "_"))
	if i := strings.Index(prefix, "_"); i > 0 {
		prefix = prefix[:i]
	}
	return prefix
}
