package configutil

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func TestFlagOrViperStringPrecedence(t *testing.T) {
	t.Cleanup(viper.Reset)
	cmd := &cobra.Command{}
	cmd.Flags().String("owner", "fallback", "")

	if got := FlagOrViperString(cmd, "owner", "tracker.owner"); got != "fallback" {
		t.Fatalf("flag default: got %q", got)
	}
	viper.Set("tracker.owner", "from-config")
	if got := FlagOrViperString(cmd, "owner", "tracker.owner"); got != "from-config" {
		t.Fatalf("viper value: got %q", got)
	}
	if err := cmd.Flags().Set("owner", "from-flag"); err != nil {
		t.Fatal(err)
	}
	if got := FlagOrViperString(cmd, "owner", "tracker.owner"); got != "from-flag" {
		t.Fatalf("changed flag should win: got %q", got)
	}
}

func TestFlagOrViperDurationPrecedence(t *testing.T) {
	t.Cleanup(viper.Reset)
	cmd := &cobra.Command{}
	cmd.Flags().Duration("timeout", 0, "")

	if got := FlagOrViperDuration(cmd, "timeout", "assistant.timeout"); got != 0 {
		t.Fatalf("flag default: got %v", got)
	}
	viper.Set("assistant.timeout", "90s")
	if got := FlagOrViperDuration(cmd, "timeout", "assistant.timeout"); got != 90*time.Second {
		t.Fatalf("viper value: got %v", got)
	}
	if err := cmd.Flags().Set("timeout", "30s"); err != nil {
		t.Fatal(err)
	}
	if got := FlagOrViperDuration(cmd, "timeout", "assistant.timeout"); got != 30*time.Second {
		t.Fatalf("changed flag should win: got %v", got)
	}
}
