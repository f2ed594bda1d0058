package helpers

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SetupLogger builds a logrus FieldLogger with the given level, timestamp
// settings and fields.
func SetupLogger(logLevelStr string, fullTimestamp, disableTimestamp bool, fields log.Fields) (log.FieldLogger, error) {
	logLevel, err := log.ParseLevel(logLevelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %s", logLevelStr)
	}
	base := log.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&log.TextFormatter{
		FullTimestamp:    fullTimestamp,
		DisableTimestamp: disableTimestamp,
	})
	base.SetLevel(logLevel)

	logger := base.WithFields(fields)
	logger.Debugf("setting log level to %s", logLevel.String())
	return logger, nil
}

// SetFlagsFromEnv parses all registered flags in the given flagset,
// and if they are not already set it attempts to set their values from
// environment variables. Environment variables take the name of the flag but
// are UPPERCASE, and any dashes are replaced by underscores. Environment
// variables additionally are prefixed by the given string followed by
// and underscore. For example, if prefix=PREFIX: some-flag => PREFIX_SOME_FLAG
func SetFlagsFromEnv(fs *pflag.FlagSet, prefix string) (err error) {
	alreadySet := make(map[string]bool)
	fs.Visit(func(f *pflag.Flag) {
		alreadySet[f.Name] = true
	})
	fs.VisitAll(func(f *pflag.Flag) {
		if !alreadySet[f.Name] {
			key := prefix + "_" + strings.ToUpper(strings.Replace(f.Name, "-", "_", -1))
			val := os.Getenv(key)
			if val != "" {
				if serr := fs.Set(f.Name, val); serr != nil {
					err = fmt.Errorf("invalid value %q for %s: %v", val, key, serr)
				}
			}
		}
	})
	return err
}

// SetFlagsFromConfigFile reads a YAML or JSON file keyed by flag name and
// sets every flag not already set on the command line or from the
// environment.
func SetFlagsFromConfigFile(fs *pflag.FlagSet, path string) (err error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("unable to read config file %s: %v", path, err)
	}

	alreadySet := make(map[string]bool)
	fs.Visit(func(f *pflag.Flag) {
		alreadySet[f.Name] = true
	})
	fs.VisitAll(func(f *pflag.Flag) {
		if alreadySet[f.Name] || !v.IsSet(f.Name) {
			return
		}
		var val string
		switch t := v.Get(f.Name).(type) {
		case []interface{}:
			parts := make([]string, len(t))
			for i, p := range t {
				parts[i] = fmt.Sprint(p)
			}
			val = strings.Join(parts, ",")
		default:
			val = fmt.Sprint(t)
		}
		if serr := fs.Set(f.Name, val); serr != nil {
			err = fmt.Errorf("invalid value %q for %s in %s: %v", val, f.Name, path, serr)
		}
	})
	return err
}
