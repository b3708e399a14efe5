// Package configutil resolves settings that may come from a CLI flag or
// from viper (config file or environment). An explicitly changed flag wins;
// otherwise the viper key is consulted when one is given.
package configutil

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func FlagOrViperString(cmd *cobra.Command, flag, viperKey string) string {
	if cmd != nil && cmd.Flags().Changed(flag) {
		v, _ := cmd.Flags().GetString(flag)
		return v
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetString(viperKey)
	}
	if cmd != nil {
		v, _ := cmd.Flags().GetString(flag)
		return v
	}
	return ""
}

func FlagOrViperDuration(cmd *cobra.Command, flag, viperKey string) time.Duration {
	if cmd != nil && cmd.Flags().Changed(flag) {
		v, _ := cmd.Flags().GetDuration(flag)
		return v
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetDuration(viperKey)
	}
	if cmd != nil {
		v, _ := cmd.Flags().GetDuration(flag)
		return v
	}
	return 0
}
