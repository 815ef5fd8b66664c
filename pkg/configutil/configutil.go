// Package configutil loads json5 configuration files with local overrides.
package configutil

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ErrUnsetVariable is returned when a file references an environment variable that is not set.
var ErrUnsetVariable = errors.New("unset environment variable")

// expandEnv replaces every ${NAME} with the value of the environment variable NAME.
func expandEnv(contents []byte) ([]byte, error) {
	var missing []string
	out := envReference.ReplaceAllFunc(contents, func(ref []byte) []byte {
		name := string(envReference.FindSubmatch(ref)[1])
		value, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return ref
		}
		return []byte(value)
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsetVariable, strings.Join(missing, ", "))
	}
	return out, nil
}

// readFile parses one file, found is false when it does not exist or is empty.
func readFile[T any](path string) (out T, found bool, err error) {
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	if len(contents) == 0 {
		return out, false, nil
	}
	contents, err = expandEnv(contents)
	if err != nil {
		return out, false, fmt.Errorf("%s: %w", path, err)
	}
	err = json5.Unmarshal(contents, &out)
	if err != nil {
		return out, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, true, nil
}

// LocalPath returns the override file belonging to name, "config.json5" becomes
// "config.local.json5".
func LocalPath(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}

// ReadConfig reads `name` and merges `LocalPath(name)` over it, values of the local file win.
// String values may reference environment variables as ${NAME}. When neither file exists the
// error is os.ErrNotExist.
func ReadConfig[T any](name string) (T, error) {
	out, foundDefault, err := readFile[T](name)
	if err != nil {
		return out, err
	}

	local := LocalPath(name)
	override, foundLocal, err := readFile[T](local)
	if err != nil {
		return out, err
	}
	if foundLocal {
		err = mergo.Merge(&out, override, mergo.WithOverride)
		if err != nil {
			return out, fmt.Errorf("merge %s: %w", local, err)
		}
		slog.Info("merging config with local overrides", "local", local)
	}

	if !foundDefault && !foundLocal {
		return out, os.ErrNotExist
	}
	return out, nil
}

// ReadRecursively is ReadConfig but it walks up from the working directory until it finds
// a directory containing the config.
func ReadRecursively[T any](name string) (T, error) {
	var zero T

	current, err := os.Getwd()
	if err != nil {
		return zero, err
	}
	for {
		config, err := ReadConfig[T](filepath.Join(current, name))
		if !errors.Is(err, os.ErrNotExist) {
			return config, err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return zero, os.ErrNotExist
		}
		current = parent
	}
}
