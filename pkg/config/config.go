package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// DefaultFile is the config file looked up in the project root.
const DefaultFile = "kombu.toml"

// Config describes all configuration options
type Config struct {
	TaskFile   string `default:"tasks.star" toml:"task_file" usage:"Starlark task script loaded after the built-in tasks (relative to the project root)"`
	StrictExit bool   `default:"false" toml:"strict_exit" usage:"Exit with the failing command's status instead of 0"`
	Log        struct {
		Level string `default:"info" toml:"level"`
		JSON  bool   `default:"false" toml:"json" usage:"Output JSONND instead of pretty console messages"`
	} `toml:"log"`
	Output struct {
		Dir string `default:"build" toml:"dir" usage:"Build output directory; deleted by the clear task"`
	} `toml:"output"`
	Specimens struct {
		Root  string `default:"target_programs" toml:"root" usage:"Directory whose sub-directories are built as specimens"`
		Build string `default:"cargo build" toml:"build" usage:"Command run in every specimen directory"`
	} `toml:"specimens"`
	Dashi struct {
		Dir  string `default:"dashi" toml:"dir"`
		Name string `default:"dashi" toml:"name"`
	} `toml:"dashi"`
	Yaminabe struct {
		Dir  string `default:"yaminabe" toml:"dir"`
		Name string `default:"yaminabe" toml:"name"`
	} `toml:"yaminabe"`
	Nimono struct {
		Dir    string `default:"nimono" toml:"dir"`
		Name   string `default:"nimono" toml:"name"`
		CC     string `default:"clang" toml:"cc"`
		Source string `default:"hello.c" toml:"source"`
		Object string `default:"hello.o" toml:"object"`
	} `toml:"nimono"`
	Run struct {
		Target string `default:"./target/debug/hello" toml:"target" usage:"Program handed to the analyzer by the run task"`
		Option string `default:"20" toml:"option"`
	} `toml:"run"`
}

var logLevels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// Load reads the defaults, the config file (if present) and KOMBU_* environment
// variables. An empty file means DefaultFile inside root.
func Load(root, file string) (*Config, error) {
	explicit := file != ""
	if !explicit {
		file = filepath.Join(root, DefaultFile)
	}

	files := []string{}
	_, err := os.Stat(file)
	if err == nil {
		files = append(files, file)
	} else if explicit || !eris.Is(err, os.ErrNotExist) {
		return nil, eris.Wrapf(err, "failed to check config file %s", file)
	}

	cfg := Config{}
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KOMBU",
		SkipFlags: true,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})

	err = loader.Load()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load config")
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	if _, ok := logLevels[strings.ToLower(cfg.Log.Level)]; !ok {
		return eris.Errorf("invalid log level %s", cfg.Log.Level)
	}

	if strings.TrimSpace(cfg.Output.Dir) == "" {
		return eris.New("output.dir must not be empty")
	}

	if filepath.Clean(cfg.Output.Dir) == "." {
		return eris.New("output.dir must not be the project root")
	}

	return nil
}

// LogLevel returns the configured zerolog level.
func (cfg *Config) LogLevel() zerolog.Level {
	level, ok := logLevels[strings.ToLower(cfg.Log.Level)]
	if !ok {
		return zerolog.InfoLevel
	}
	return level
}
