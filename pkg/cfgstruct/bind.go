// Package cfgstruct binds the fields of a configuration struct to a
// pflag.FlagSet, one flag per field, using the field's `default` struct
// tag as the flag's default value. Nested structs and fixed-size arrays
// of structs are walked recursively, with flag names built by joining the
// lower-cased field path with dots.
package cfgstruct

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Bind walks cfg (a pointer to a struct) and registers one flag per leaf
// field on flagset, using the `default` tag as the flag's default and the
// dotted, lower-cased field path as the flag name. A field tagged
// `hidden:"true"` is still registered (so env/config-file binding works)
// but is marked hidden on the flag set.
func Bind(flagset *pflag.FlagSet, cfg interface{}) {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		panic("cfgstruct.Bind: cfg must be a pointer to a struct")
	}
	bindStruct(flagset, "", v.Elem())
}

func bindStruct(flagset *pflag.FlagSet, prefix string, v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue // unexported
		}
		fv := v.Field(i)
		name := fieldFlagName(prefix, field.Name)

		switch fv.Kind() {
		case reflect.Struct:
			bindStruct(flagset, name, fv)
			continue
		case reflect.Array:
			for j := 0; j < fv.Len(); j++ {
				elem := fv.Index(j)
				if elem.Kind() == reflect.Struct {
					bindStruct(flagset, fmt.Sprintf("%s.%d", name, j), elem)
				}
			}
			continue
		}

		def := field.Tag.Get("default")
		usage := field.Tag.Get("usage")
		bindLeaf(flagset, name, usage, def, fv)

		if field.Tag.Get("hidden") == "true" {
			if f := flagset.Lookup(name); f != nil {
				f.Hidden = true
			}
		}
	}
}

func fieldFlagName(prefix, name string) string {
	lower := strings.ToLower(name)
	if prefix == "" {
		return lower
	}
	return prefix + "." + lower
}

func bindLeaf(flagset *pflag.FlagSet, name, usage, def string, fv reflect.Value) {
	switch fv.Kind() {
	case reflect.String:
		p := fv.Addr().Interface().(*string)
		flagset.StringVar(p, name, def, usage)
	case reflect.Bool:
		b, _ := strconv.ParseBool(defOr(def, "false"))
		p := fv.Addr().Interface().(*bool)
		flagset.BoolVar(p, name, b, usage)
	case reflect.Int64:
		if fv.Type() == reflect.TypeOf(time.Duration(0)) {
			d, _ := time.ParseDuration(defOr(def, "0s"))
			p := fv.Addr().Interface().(*time.Duration)
			flagset.DurationVar(p, name, d, usage)
			return
		}
		n, _ := strconv.ParseInt(defOr(def, "0"), 10, 64)
		p := fv.Addr().Interface().(*int64)
		flagset.Int64Var(p, name, n, usage)
	case reflect.Int:
		n, _ := strconv.Atoi(defOr(def, "0"))
		p := fv.Addr().Interface().(*int)
		flagset.IntVar(p, name, n, usage)
	case reflect.Uint64:
		n, _ := strconv.ParseUint(defOr(def, "0"), 10, 64)
		p := fv.Addr().Interface().(*uint64)
		flagset.Uint64Var(p, name, n, usage)
	case reflect.Uint:
		n, _ := strconv.ParseUint(defOr(def, "0"), 10, 64)
		p := fv.Addr().Interface().(*uint)
		flagset.UintVar(p, name, uint(n), usage)
	case reflect.Float64:
		f, _ := strconv.ParseFloat(defOr(def, "0"), 64)
		p := fv.Addr().Interface().(*float64)
		flagset.Float64Var(p, name, f, usage)
	default:
		panic(fmt.Sprintf("cfgstruct.Bind: unsupported field kind %s for %q", fv.Kind(), name))
	}
}

func defOr(def, fallback string) string {
	if def == "" {
		return fallback
	}
	return def
}
