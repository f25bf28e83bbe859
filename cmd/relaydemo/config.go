package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/pkopriv2/relay/common"
)

// loadConfig reads a small YAML option bag off fs and adapts it to
// common.Config. Grounded on stash/stash.go's use of afero.Fs as the
// filesystem boundary for this same kind of on-disk settings file,
// generalized from stash's bolt-file-path lookup to a general key/value
// config loader for the demo binary.
func loadConfig(fs afero.Fs, path string) (common.Config, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "checking config file %v", path)
	}
	if !exists {
		return common.NewEmptyConfig(), nil
	}

	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %v", path)
	}

	var parsed map[string]interface{}
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrapf(err, "parsing config file %v", path)
	}

	return common.NewConfig(normalize(parsed)), nil
}

// normalize narrows yaml.v3's decoded int values (which arrive as int,
// already matching common.Config's expectations) and leaves strings and
// bools untouched; nested maps are not supported by this demo's flat
// option bag.
func normalize(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
