package cli

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/HumansWindow/lastproject-sub008/internal/core/config"
)

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Trigger a manual rapid drain cycle on a running instance",
	Run:   runDrain,
}

func init() {
	rootCmd.AddCommand(drainCmd)
}

func runDrain(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	url := fmt.Sprintf("http://localhost:%d/admin/drain", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Minute}

	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		slog.Error("Failed to reach running instance", "url", url, "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusConflict {
		slog.Warn("Drain already in progress")
		os.Exit(1)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("Drain failed", "status", resp.Status, "body", string(body))
		os.Exit(1)
	}

	fmt.Println(string(body))
}
