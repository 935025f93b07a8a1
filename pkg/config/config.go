package config

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

const (
	configDirEnv     string = "DEET_CONFIG_DIR"
	configDir        string = "deet"
	configDirHidden  string = ".deet"
	configFile       string = "config.yml"
	defaultDepth     int    = 64
	defaultCacheSize int    = 16
)

// DefaultPassSignals are the signals handed back to the target without
// reporting a stop when the configuration does not override them.
var DefaultPassSignals = []string{"SIGURG", "SIGCHLD", "SIGWINCH", "SIGPROF"}

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases"`

	// MaxBacktraceDepth bounds the number of frames the backtrace command
	// walks before giving up on a corrupted frame-pointer chain.
	MaxBacktraceDepth *int `yaml:"max-backtrace-depth,omitempty"`

	// PassSignals lists the signals that are delivered to the target
	// transparently, without stopping it. A nil value selects
	// DefaultPassSignals, an empty list stops on every signal.
	PassSignals []string `yaml:"pass-signals,omitempty"`

	// If ShowDisassembly is true stop reports include the instruction at the
	// stop address.
	ShowDisassembly bool `yaml:"show-disassembly"`

	// If ShowSource is false stop reports do not include the text of the
	// source line.
	ShowSource *bool `yaml:"show-source,omitempty"`

	// SourceCacheSize is the number of source files kept in memory to print
	// stop locations.
	SourceCacheSize int `yaml:"source-cache-size,omitempty"`

	// Source list line-number color (3/4 bit color codes as defined
	// here: https://en.wikipedia.org/wiki/ANSI_escape_code#Colors)
	SourceListLineColor int `yaml:"source-list-line-color"`
}

// BacktraceDepth returns the configured maximum backtrace depth.
func (c *Config) BacktraceDepth() int {
	if c == nil || c.MaxBacktraceDepth == nil || *c.MaxBacktraceDepth <= 0 {
		return defaultDepth
	}
	return *c.MaxBacktraceDepth
}

// PassSignalNames returns the names of the signals that should not stop the
// target.
func (c *Config) PassSignalNames() []string {
	if c == nil || c.PassSignals == nil {
		return DefaultPassSignals
	}
	return c.PassSignals
}

// SourceEnabled returns true if stop reports should print the source line.
func (c *Config) SourceEnabled() bool {
	if c == nil || c.ShowSource == nil {
		return true
	}
	return *c.ShowSource
}

// SourceCache returns the number of source files to keep cached.
func (c *Config) SourceCache() int {
	if c == nil || c.SourceCacheSize <= 0 {
		return defaultCacheSize
	}
	return c.SourceCacheSize
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.\n", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.\n", err)
		return &Config{}
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			fmt.Printf("Error creating default config file: %v\n", err)
			return &Config{}
		}
	}
	defer func() {
		err := f.Close()
		if err != nil {
			fmt.Printf("Closing config file failed: %v.\n", err)
		}
	}()

	c, err := readConfig(f)
	if err != nil {
		fmt.Printf("Unable to decode config file: %v.\n", err)
		return &Config{}
	}
	return c
}

func readConfig(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return f, nil
}

func writeDefaultConfig(f io.Writer) error {
	_, err := io.WriteString(f,
		`# Configuration file for the deet debugger.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Uncomment the following line and set your preferred ANSI foreground color
# for source line numbers in stop reports (if unset, default is 34,
# dark blue) See https://en.wikipedia.org/wiki/ANSI_escape_code#3/4_bit
# source-list-line-color: 34

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]

# Maximum number of frames printed by backtrace.
# max-backtrace-depth: 64

# Signals delivered to the target without stopping it.
# pass-signals: ["SIGURG", "SIGCHLD", "SIGWINCH", "SIGPROF"]

# Uncomment the following line to print the instruction at the stop address.
# show-disassembly: true

# Uncomment the following line to stop printing the source line at the stop address.
# show-source: false

# Number of source files kept in memory.
# source-cache-size: 16
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	if dir := os.Getenv(configDirEnv); dir != "" {
		return filepath.Join(dir, file), nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, configDir, file), nil
	}

	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return filepath.Join(userHomeDir, configDirHidden, file), nil
}
