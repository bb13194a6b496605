package process

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/happyfish100/fastdfs-sub006/pkg/cfgstruct"
)

const envPrefix = "TRACKERD"

// Bind registers cfg's fields as flags on cmd and arranges for Exec to
// additionally fill them from a config file and TRACKERD_* environment
// variables, flags taking precedence over the environment, which takes
// precedence over the file, which takes precedence over the struct's own
// `default` tags.
func Bind(cmd *cobra.Command, cfg interface{}) {
	cfgstruct.Bind(cmd.Flags(), cfg)
}

// Exec runs cmd, first binding viper to the command's flags, its config
// file (--config-dir/config.yaml if present) and the TRACKERD_ environment,
// so that any flag not given on the command line picks up the
// higher-priority source before RunE observes it.
func Exec(cmd *cobra.Command) {
	// Parse the command line up front (merging persistent flags such as
	// --config-dir) so config-dir is readable and Changed is accurate below.
	_ = cmd.ParseFlags(os.Args[1:])

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgDir, _ := cmd.Flags().GetString("config-dir"); cfgDir != "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(cfgDir)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				fmt.Fprintf(os.Stderr, "fdfs-trackerd: reading config: %v\n", err)
			}
		}
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		fmt.Fprintf(os.Stderr, "fdfs-trackerd: binding flags: %v\n", err)
		os.Exit(1)
	}

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		if v.IsSet(f.Name) {
			_ = cmd.Flags().Set(f.Name, v.GetString(f.Name))
		}
	})

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fdfs-trackerd: %v\n", err)
		os.Exit(1)
	}
}

// SaveConfig writes the current, non-hidden flag values of cmd to path in
// YAML form, one key per flag, so an operator can capture a running
// configuration for reuse.
func SaveConfig(cmd *cobra.Command, path string) error {
	var b strings.Builder
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		fmt.Fprintf(&b, "%s: %s\n", f.Name, f.Value.String())
	})
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
