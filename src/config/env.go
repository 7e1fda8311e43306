package config

import (
	"encoding/json"
	"os"
	"reflect"
	"strconv"
	"strings"

	"emperror.dev/errors"
	"github.com/iancoleman/strcase"
)

// EnvPrefix is prepended to every environment variable the configuration
// reads, e.g. RESTICAPI_REPOSITORY_PASSWORD.
const EnvPrefix = "RESTICAPI"

// MergeEnv overrides fields of the provided Configuration with any matching
// environment variables. Keys are formed by joining the prefix with the path
// of toml tags (or field names) in SCREAMING_SNAKE_CASE.
func MergeEnv(c *Configuration) error {
	if c == nil {
		return errors.New("config: nil configuration passed to MergeEnv")
	}
	return populateFromEnv(reflect.ValueOf(c).Elem(), []string{}, EnvPrefix)
}

// populateFromEnv recursively iterates a struct value and sets any exported
// field for which an environment variable exists.
func populateFromEnv(v reflect.Value, parts []string, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}
		ft := t.Field(i)

		// prefer toml tag, then json tag, then field name
		name := ft.Tag.Get("toml")
		if name == "" {
			name = ft.Tag.Get("json")
		}
		name = strings.Split(name, ",")[0]
		if name == "-" || name == "" {
			name = ft.Name
		}

		newParts := append(append([]string{}, parts...), name)
		envKeyTag := prefix + "_" + strcase.ToScreamingSnake(strings.Join(newParts, "_"))
		// Secondary key uses the Go field name, so BinaryPath -> BINARY_PATH.
		fieldParts := append(append([]string{}, parts...), strcase.ToSnake(ft.Name))
		envKeyField := prefix + "_" + strcase.ToScreamingSnake(strings.Join(fieldParts, "_"))

		var envValue string
		if v := os.Getenv(envKeyTag); v != "" {
			envValue = v
		} else if v := os.Getenv(envKeyField); v != "" {
			envValue = v
		}

		switch fv.Kind() {
		case reflect.Struct:
			if envValue != "" {
				if err := json.Unmarshal([]byte(envValue), fv.Addr().Interface()); err != nil {
					return errors.Wrapf(err, "config: failed to parse %s", envKeyTag)
				}
				continue
			}
			if err := populateFromEnv(fv, newParts, prefix); err != nil {
				return err
			}
		case reflect.String:
			if envValue != "" {
				fv.SetString(envValue)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envValue != "" {
				iv, err := strconv.ParseInt(envValue, 10, 64)
				if err != nil {
					return errors.Wrapf(err, "config: failed to parse %s", envKeyTag)
				}
				fv.SetInt(iv)
			}
		case reflect.Float32, reflect.Float64:
			if envValue != "" {
				f, err := strconv.ParseFloat(envValue, 64)
				if err != nil {
					return errors.Wrapf(err, "config: failed to parse %s", envKeyTag)
				}
				fv.SetFloat(f)
			}
		case reflect.Bool:
			if envValue != "" {
				bv, err := strconv.ParseBool(envValue)
				if err != nil {
					return errors.Wrapf(err, "config: failed to parse %s", envKeyTag)
				}
				fv.SetBool(bv)
			}
		default:
			// unsupported kinds are ignored
		}
	}
	return nil
}
