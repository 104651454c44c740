package cmdutil

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

func RegisterConfigFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./pgshift.yaml)",
	)
}

// InitConfig wires viper to the optional config file and the PGSHIFT_*
// environment. Flags still win over both.
func InitConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("pgshift")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("pgshift")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	// Missing config file is fine; flags and env cover everything.
	_ = viper.ReadInConfig()
}
