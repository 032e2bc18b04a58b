package cfg

import (
	"flag"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/keithlinneman/httppipe/internal/xerrors"
)

// LoadFile fills flags that are still unset from a YAML file whose top-level
// keys are flag names. Call it after FillFromEnv so the file only supplies
// what neither the command line nor the environment did. An empty path is a
// no-op. Unknown keys are reported through logf and otherwise ignored.
func LoadFile(fs *flag.FlagSet, path string, logf func(string, ...any)) error {
	if path == "" {
		return nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return xerrors.Wrapf(err, "load config file %s", path)
	}

	set := setFlags(fs)
	for _, key := range k.Keys() {
		f := fs.Lookup(key)
		if f == nil || key == "config" {
			if logf != nil {
				logf("config file %s: ignoring unknown key %q", path, key)
			}
			continue
		}
		if set[key] {
			continue
		}
		if err := fs.Set(key, k.String(key)); err != nil {
			return xerrors.Wrapf(err, "config file %s: key %q", path, key)
		}
	}
	return nil
}
