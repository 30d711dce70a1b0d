// Package config loads project-wide daemon defaults from an optional
// .ckconfig file, generalizing the teacher's struct-tag-driven
// singularity.conf reader (default/authorized/directive tags) to the
// kernel runtime's own settings.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/conceptkernel/ck-core/pkg/ckerr"
)

// File describes the .ckconfig file options. Every field's `directive`
// tag is its key in the file; `default` supplies the value used when
// the directive is absent, and `authorized`, when present, is the
// comma-separated set of values the field may take.
type File struct {
	RouterDebounceMs   uint   `default:"250" directive:"router debounce ms"`
	DefaultEdgeVersion string `default:"" directive:"default edge version"`
	EdgeVersioning     bool   `default:"no" authorized:"yes,no" directive:"edge versioning"`
	PackageCacheTTLMin uint   `default:"0" directive:"package cache ttl minutes"`
	ComplianceSink     string `default:"none" authorized:"none,stdout,file" directive:"compliance sink"`
	CompliancePath     string `default:"" directive:"compliance path"`
	PortRangeStart     uint   `default:"9000" directive:"port range start"`
	PortRangeEnd       uint   `default:"9999" directive:"port range end"`
}

var currentConfig *File

// SetCurrentConfig sets the provided configuration as the current one.
func SetCurrentConfig(c *File) {
	currentConfig = c
}

// GetCurrentConfig returns the current configuration, or built-in
// defaults if none has been loaded yet.
func GetCurrentConfig() *File {
	if currentConfig == nil {
		currentConfig = Defaults()
	}
	return currentConfig
}

// Defaults returns a File populated entirely from `default` tags.
func Defaults() *File {
	f := &File{}
	v := reflect.ValueOf(f).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		applyDefault(v.Field(i), t.Field(i))
	}
	return f
}

func applyDefault(field reflect.Value, sf reflect.StructField) {
	def, ok := sf.Tag.Lookup("default")
	if !ok {
		return
	}
	setField(field, sf, def)
}

// Parse reads a .ckconfig file of "directive = value" lines (blank
// lines and lines starting with "#" are ignored) into a File,
// defaulting any directive the file doesn't set and validating
// `authorized` value lists where declared. A missing path is not an
// error: Parse returns Defaults().
func Parse(path string) (*File, error) {
	f := Defaults()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ckerr.IoError, path, err)
	}

	directives, err := parseDirectives(data)
	if err != nil {
		return nil, err
	}

	v := reflect.ValueOf(f).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		directive := sf.Tag.Get("directive")
		if directive == "" {
			continue
		}
		raw, present := directives[directive]
		if !present {
			continue
		}
		if authorized, ok := sf.Tag.Lookup("authorized"); ok {
			if !isAuthorized(raw, authorized) {
				return nil, fmt.Errorf("%w: %q: value %q not in allowed set [%s]", ckerr.ParseError, directive, raw, authorized)
			}
		}
		if err := setField(v.Field(i), sf, raw); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ckerr.ParseError, directive, err)
		}
	}
	return f, nil
}

func parseDirectives(data []byte) (map[string]string, error) {
	out := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("%w: malformed config line %q", ckerr.ParseError, line)
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ckerr.IoError, err)
	}
	return out, nil
}

func isAuthorized(value, authorized string) bool {
	for _, v := range strings.Split(authorized, ",") {
		if strings.TrimSpace(v) == value {
			return true
		}
	}
	return false
}

func setField(field reflect.Value, sf reflect.StructField, raw string) error {
	switch sf.Type.Kind() {
	case reflect.Bool:
		field.SetBool(raw == "yes" || raw == "true")
	case reflect.String:
		field.SetString(raw)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(n)
	default:
		return fmt.Errorf("unsupported config field kind %s for %s", sf.Type.Kind(), sf.Name)
	}
	return nil
}

// FindProjectConfig returns the path of .ckconfig directly under
// projectRoot; parent directories are not searched.
func FindProjectConfig(projectRoot string) string {
	return filepath.Join(projectRoot, ".ckconfig")
}
