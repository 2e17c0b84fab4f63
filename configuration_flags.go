package staticserve

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/copier"
	"github.com/joho/godotenv"
)

// Configuration are the structure that holds all the different
// configuration options used both with flags, environment variables
// and the config file.
// If a new field is added to this struct there should also be added
// a flag for it in newConfiguration, and a default value in
// newConfigurationDefaults.
type Configuration struct {
	// The TCP port to listen on, on all interfaces.
	Port int `yaml:"port" validate:"min=1,max=65535"`
	// The folder to serve files from.
	ServeFolder string `yaml:"serveFolder" validate:"required"`
	// The file served when the root path is requested.
	IndexFile string `yaml:"indexFile" validate:"required"`
	// Full path to an optional yaml config file.
	ConfigFile string `yaml:"-"`
	// Path for the health endpoint, e.g. /health. Empty disables it.
	HealthPath string `yaml:"healthPath" validate:"omitempty,startswith=/"`
	// Host and port for prometheus listener, e.g. localhost:2112
	PromHostAndPort string `yaml:"promHostAndPort"`
	// The folder where the hit database should live. Empty disables it.
	DatabaseFolder string `yaml:"databaseFolder"`
	// Compression, g for gzip. Empty means no compression.
	Compression string `yaml:"compression" validate:"omitempty,oneof=g"`
	// WatchFolder will log all changes done to files in the served folder.
	WatchFolder bool `yaml:"watchFolder"`
	// StartupPing will do a request to the server itself after startup.
	StartupPing bool `yaml:"startupPing"`
	// The number of the profiling port
	ProfilingPort string `yaml:"profilingPort"`
	// Profiling type to use when the profiling port is set, block/cpu/trace/mem.
	Profiling string `yaml:"profiling" validate:"omitempty,oneof=block cpu trace mem"`
	// SetBlockProfileRate for block profiling
	SetBlockProfileRate int `yaml:"setBlockProfileRate" validate:"min=0"`
	// LogLevel error/warning/info/debug/none.
	LogLevel string `yaml:"logLevel" validate:"oneof=error warning info debug none"`
	// LogConsoleTimestamps true/false for enabling or disabling timestamps when printing errors and information to stderr
	LogConsoleTimestamps bool `yaml:"logConsoleTimestamps"`
}

// NewConfiguration will return a *Configuration built from the defaults,
// the config file, the environment and the command line flags in that
// order, where the last one wins.
func NewConfiguration() *Configuration {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Error loading .env file: %v\n", err)
	}

	c, err := newConfiguration(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("%v\n", err)
	}

	return c
}

func newConfiguration(fset *flag.FlagSet, args []string) (*Configuration, error) {
	c := newConfigurationDefaults()

	c.ConfigFile = CheckEnv("CONFIG_FILE", c.ConfigFile)
	if v, ok := configFileFromArgs(args); ok {
		c.ConfigFile = v
	}

	if c.ConfigFile != "" {
		fc, err := readConfigurationFile(c.ConfigFile)
		if err != nil {
			return nil, err
		}

		err = copier.CopyWithOption(&c, fc, copier.Option{IgnoreEmpty: true})
		if err != nil {
			return nil, fmt.Errorf("error: newConfiguration: failed to merge config file %v: %v", c.ConfigFile, err)
		}
	}

	fset.IntVar(&c.Port, "port", CheckEnv("PORT", c.Port), "the tcp port to listen on. Defaults to 8080")
	fset.StringVar(&c.ServeFolder, "serveFolder", CheckEnv("SERVE_FOLDER", c.ServeFolder), "the folder to serve files from. Defaults to the current working directory")
	fset.StringVar(&c.IndexFile, "indexFile", CheckEnv("INDEX_FILE", c.IndexFile), "the file to serve when / is requested")
	fset.StringVar(&c.ConfigFile, "configFile", c.ConfigFile, "full path to a yaml config file. Values from env and flags take precedence")
	fset.StringVar(&c.HealthPath, "healthPath", CheckEnv("HEALTH_PATH", c.HealthPath), "path for the health endpoint, e.g. /health. No value means the endpoint is not started, which is default")
	fset.StringVar(&c.PromHostAndPort, "promHostAndPort", CheckEnv("PROM_HOST_AND_PORT", c.PromHostAndPort), "host and port for prometheus listener, e.g. localhost:2112")
	fset.StringVar(&c.DatabaseFolder, "databaseFolder", CheckEnv("DATABASE_FOLDER", c.DatabaseFolder), "folder who contains the hit counter database file. No value means hits are not stored")
	fset.StringVar(&c.Compression, "compression", CheckEnv("COMPRESSION", c.Compression), "compression method to use. defaults to no compression, g = gzip")
	fset.BoolVar(&c.WatchFolder, "watchFolder", CheckEnv("WATCH_FOLDER", c.WatchFolder), "true/false, log all changes to files in the served folder")
	fset.BoolVar(&c.StartupPing, "startupPing", CheckEnv("STARTUP_PING", c.StartupPing), "true/false, do a request to the server itself after startup and log the result")
	fset.StringVar(&c.ProfilingPort, "profilingPort", CheckEnv("PROFILING_PORT", c.ProfilingPort), "The number of the profiling port")
	fset.StringVar(&c.Profiling, "profiling", CheckEnv("PROFILING", c.Profiling), "Profiling type to use when profilingPort is set, block/cpu/trace/mem")
	fset.IntVar(&c.SetBlockProfileRate, "setBlockProfileRate", CheckEnv("BLOCK_PROFILE_RATE", c.SetBlockProfileRate), "Enable block profiling by setting the value to f.ex. 1. 0 = disabled")
	fset.StringVar(&c.LogLevel, "logLevel", CheckEnv("LOG_LEVEL", c.LogLevel), "error/warning/info/debug/none")
	fset.BoolVar(&c.LogConsoleTimestamps, "logConsoleTimestamps", CheckEnv("LOG_CONSOLE_TIMESTAMPS", c.LogConsoleTimestamps), "true/false for enabling or disabling timestamps when printing errors and information to stderr")

	err := fset.Parse(args)
	if err != nil {
		return nil, fmt.Errorf("error: newConfiguration: failed to parse flags: %v", err)
	}

	c.LogLevel = strings.ToLower(c.LogLevel)

	err = c.validate()
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// Get a Configuration struct with the default values set.
func newConfigurationDefaults() Configuration {
	c := Configuration{
		Port:                 8080,
		ServeFolder:          ".",
		IndexFile:            "index.html",
		ConfigFile:           "",
		HealthPath:           "",
		PromHostAndPort:      "",
		DatabaseFolder:       "",
		Compression:          "",
		WatchFolder:          false,
		StartupPing:          false,
		ProfilingPort:        "",
		Profiling:            "",
		SetBlockProfileRate:  0,
		LogLevel:             "info",
		LogConsoleTimestamps: false,
	}
	return c
}

// validate checks the values of the configuration against the rules
// given in the validate struct tags.
func (c *Configuration) validate() error {
	v := validator.New()

	err := v.Struct(c)
	if err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := []string{}
			for _, fe := range ve {
				fields = append(fields, fmt.Sprintf("%v=%v (%v)", fe.Field(), fe.Value(), fe.Tag()))
			}
			return fmt.Errorf("error: invalid configuration values: %v", strings.Join(fields, ", "))
		}
		return fmt.Errorf("error: failed to validate configuration: %v", err)
	}

	if c.ProfilingPort != "" && c.Profiling == "" {
		return fmt.Errorf("error: profiling port defined, but no valid profiling type defined. Check --help")
	}

	return nil
}

// configFileFromArgs will look for the configFile flag in the arguments
// before they are parsed, so the file values can be used as the flag
// defaults.
func configFileFromArgs(args []string) (string, bool) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			return "", false
		}

		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}

		switch {
		case strings.HasPrefix(name, "configFile="):
			return strings.TrimPrefix(name, "configFile="), true
		case name == "configFile" && i+1 < len(args):
			return args[i+1], true
		}
	}

	return "", false
}

// CheckEnv will return the value of the environment variable key
// converted to the type of v. If the variable is not set, v is returned.
func CheckEnv[T any](key string, v T) T {
	val, ok := os.LookupEnv(key)
	if !ok {
		return v
	}

	var out any

	switch any(v).(type) {
	case int:
		n, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("error: failed to convert env %v to int: %v\n", key, val)
		}
		out = n
	case string:
		out = val
	case bool:
		switch val {
		case "true", "1":
			out = true
		case "false", "0", "":
			out = false
		default:
			log.Fatalf("error: failed to convert env %v to bool: %v\n", key, val)
		}
	default:
		return v
	}

	return out.(T)
}
