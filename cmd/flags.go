package cmd

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bindFlags binds flags to configuration keys, keyed by config key.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		f := fs.Lookup(name)
		if f == nil {
			panic(fmt.Sprintf("flag %q is not defined", name))
		}
		if err := viper.BindPFlag(key, f); err != nil {
			panic(err)
		}
	}
}

// OutputFormat selects how commands print results.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// String implements pflag.Value.
func (o *OutputFormat) String() string { return string(*o) }

// Set implements pflag.Value.
func (o *OutputFormat) Set(v string) error {
	switch OutputFormat(v) {
	case OutputText, OutputJSON:
		*o = OutputFormat(v)
		return nil
	}
	return fmt.Errorf("must be %q or %q", OutputText, OutputJSON)
}

// Type implements pflag.Value.
func (o *OutputFormat) Type() string { return "format" }

func addOutputFlag(fs *pflag.FlagSet, o *OutputFormat) {
	*o = OutputText
	fs.VarP(o, "output", "o", "output format (text|json)")
}
