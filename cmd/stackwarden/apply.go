package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/blackwell-systems/stackwarden/pkg/config"
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a tenant stack manifest",
	Long: `Apply a tenant stack manifest to a running Stackwarden daemon.

Examples:
  # Declare or update a tenant stack
  stackwarden apply -f acme-storefront.yaml

  # Point at a remote daemon
  stackwarden apply -f acme-storefront.yaml --server http://warden.internal:8400`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "Manifest file to apply (required)")
	applyCmd.Flags().String("server", "http://localhost:8400", "Daemon address")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	server, _ := cmd.Flags().GetString("server")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}

	// Validate locally before shipping it to the daemon
	manifest, err := config.ParseTenantManifest(data)
	if err != nil {
		return err
	}

	resp, err := http.Post(server+"/v1/tenants", "application/yaml", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("declare rejected: %s", bytes.TrimSpace(body))
	}

	var result struct {
		StateVersion int    `json:"state_version"`
		DesiredHash  string `json:"desired_hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}

	fmt.Printf("✓ Declared %s/%s (version %d)\n",
		manifest.Metadata.Tenant, manifest.Metadata.Stack, result.StateVersion)
	return nil
}
