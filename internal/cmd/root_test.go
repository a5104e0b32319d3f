package cmd

import "testing"

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	if !names["run"] {
		t.Error("rootCmd missing \"run\" subcommand")
	}
	if !names["report"] {
		t.Error("rootCmd missing \"report\" subcommand")
	}
}

func TestRootCmd_HasConfigAndVerboseFlags(t *testing.T) {
	if rootCmd.PersistentFlags().Lookup("config") == nil {
		t.Error("rootCmd missing --config flag")
	}
	if rootCmd.PersistentFlags().Lookup("verbose") == nil {
		t.Error("rootCmd missing --verbose flag")
	}
}
