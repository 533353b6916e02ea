package environment

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	lib "github.com/hauxe/sioemitter/library"
	"github.com/pkg/errors"
)

// CreateENVOptions create env options
type CreateENVOptions func(*ENVConfig) error

const (
	envKey = "ENV"
	envTag = "env"
)

// Environment types
const (
	Development = "development"
	Testing     = "testing"
	Staging     = "staging"
	Production  = "production"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Environment returns the current running environment
func Environment() string {
	environment := os.Getenv(envKey)
	if environment == Production || environment == Staging || environment == Testing {
		return environment
	}
	return Development
}

// ENVConfig defines environment configs
type ENVConfig struct {
	Prefix string
}

// ENV reads typed values from environment variables
type ENV struct {
	Config *ENVConfig
}

// CreateENV create environment object
func CreateENV(options ...CreateENVOptions) (*ENV, error) {
	config := ENVConfig{}
	for _, op := range options {
		if err := op(&config); err != nil {
			return nil, errors.Wrap(err, lib.StringTags("create env", "option error"))
		}
	}
	return &ENV{Config: &config}, nil
}

// SetPrefixOption set environment prefix option, PREFIX_NAME is looked up instead of NAME
func SetPrefixOption(prefix string) CreateENVOptions {
	return func(config *ENVConfig) error {
		config.Prefix = strings.TrimSuffix(prefix, "_")
		return nil
	}
}

// Key returns the variable name after applying the prefix
func (e *ENV) Key(name string) string {
	if e.Config == nil || e.Config.Prefix == "" || name == "" {
		return name
	}
	return e.Config.Prefix + "_" + name
}

func (e *ENV) lookup(key string) (string, bool) {
	return os.LookupEnv(e.Key(key))
}

// EVString gets environment variable by key, returns its value as string
// or returns fallback if not available
func (e *ENV) EVString(key string, fallback string) string {
	value, found := e.lookup(key)
	if !found {
		return fallback
	}
	return value
}

// EVInt gets environment variable by key, returns its value as int
// or returns fallback if not available
func (e *ENV) EVInt(key string, fallback int) (int, error) {
	value, found := e.lookup(key)
	if !found {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

// EVInt64 gets environment variable by key, returns its value as int64
// or returns fallback if not available
func (e *ENV) EVInt64(key string, fallback int64) (int64, error) {
	value, found := e.lookup(key)
	if !found {
		return fallback, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

// EVUInt64 gets environment variable by key, returns its value as uint64
// or returns fallback if not available
func (e *ENV) EVUInt64(key string, fallback uint64) (uint64, error) {
	value, found := e.lookup(key)
	if !found {
		return fallback, nil
	}
	return strconv.ParseUint(value, 10, 64)
}

// EVBool gets environment variable by key, returns its value as bool
// or returns fallback if not available
func (e *ENV) EVBool(key string, fallback bool) (bool, error) {
	value, found := e.lookup(key)
	if !found {
		return fallback, nil
	}
	return strconv.ParseBool(value)
}

// EVDuration gets environment variable by key, returns its value as duration
// or returns fallback if not available
func (e *ENV) EVDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, found := e.lookup(key)
	if !found {
		return fallback, nil
	}
	return time.ParseDuration(value)
}

// Parse fills the env tagged fields of obj, a pointer to struct, then runs validators
func (e *ENV) Parse(obj interface{}, validators ...func(interface{}) error) (err error) {
	defer lib.Recover(func(er error) {
		if er != nil {
			err = er
		}
	})
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Ptr {
		return errors.New("object type is not pointer")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return errors.Errorf("object type is not struct <%s>", rv.Kind().String())
	}
	if err = e.scanStruct(rv); err != nil {
		return err
	}
	for _, validator := range validators {
		if validator == nil {
			continue
		}
		if err = validator(obj); err != nil {
			return errors.Wrap(err, lib.StringTags("parse env", "validate"))
		}
	}
	return nil
}

func (e *ENV) scanStruct(rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		switch {
		case field.Kind() == reflect.Ptr && !field.IsNil() && field.Elem().Kind() == reflect.Struct:
			if err := e.scanStruct(field.Elem()); err != nil {
				return err
			}
		case field.Kind() == reflect.Struct:
			if err := e.scanStruct(field); err != nil {
				return err
			}
		}
		tag, ok := rt.Field(i).Tag.Lookup(envTag)
		if !ok {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name == "" || name == "-" {
			continue
		}
		if err := e.setField(rt.Field(i).Name, field, e.Key(name)); err != nil {
			return errors.Wrap(err, lib.StringTags("scan struct env", name))
		}
	}
	return nil
}

func (e *ENV) setField(fieldName string, field reflect.Value, name string) error {
	s, found := os.LookupEnv(name)
	if !found {
		return nil
	}
	if !field.CanSet() {
		return errors.Errorf("field %s with type %s cant be set", fieldName, field.Kind())
	}
	if field.Type() == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return errors.Errorf("field %s convert environment %s to duration failed", fieldName, s)
		}
		field.SetInt(int64(d))
		return nil
	}
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i64, err := strconv.ParseInt(s, 10, field.Type().Bits())
		if err != nil {
			return errors.Errorf("field %s convert environment %s to %s failed",
				fieldName, s, field.Kind().String())
		}
		field.SetInt(i64)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u64, err := strconv.ParseUint(s, 10, field.Type().Bits())
		if err != nil {
			return errors.Errorf("field %s convert environment %s to %s failed",
				fieldName, s, field.Kind().String())
		}
		field.SetUint(u64)
	case reflect.Float32, reflect.Float64:
		f64, err := strconv.ParseFloat(s, field.Type().Bits())
		if err != nil {
			return errors.Errorf("field %s convert environment %s to %s failed",
				fieldName, s, field.Kind().String())
		}
		field.SetFloat(f64)
	case reflect.String:
		field.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return errors.Errorf("field %s convert environment %s to %s failed",
				fieldName, s, field.Kind().String())
		}
		field.SetBool(b)
	default:
		return errors.Errorf("convert field %s, type %s not supported",
			fieldName, field.Kind().String())
	}
	return nil
}
