package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Inspect and manage tenant stacks",
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenant stacks and their reconciliation status",
	RunE:  runTenantList,
}

var tenantDriftCmd = &cobra.Command{
	Use:   "drift <tenant> <stack>",
	Short: "Show open drift for a tenant stack",
	Args:  cobra.ExactArgs(2),
	RunE:  runTenantDrift,
}

var tenantAckCmd = &cobra.Command{
	Use:   "ack <tenant> <stack>",
	Short: "Acknowledge an error-state tenant and resume automation",
	Long: `Acknowledge a tenant stack stuck in error state. The stack
returns to drift_detected with a fresh heal attempt budget, and the
next reconciliation pass is free to retry automated healing.`,
	Args: cobra.ExactArgs(2),
	RunE: runTenantAck,
}

var tenantArchiveCmd = &cobra.Command{
	Use:   "archive <tenant> <stack>",
	Short: "Offboard a tenant stack",
	Args:  cobra.ExactArgs(2),
	RunE:  runTenantArchive,
}

var tenantReconcileCmd = &cobra.Command{
	Use:   "reconcile <tenant> <stack>",
	Short: "Run an on-demand reconciliation pass",
	Args:  cobra.ExactArgs(2),
	RunE:  runTenantReconcile,
}

func init() {
	for _, c := range []*cobra.Command{tenantListCmd, tenantDriftCmd, tenantAckCmd, tenantArchiveCmd, tenantReconcileCmd} {
		c.Flags().String("server", "http://localhost:8400", "Daemon address")
		tenantCmd.AddCommand(c)
	}
	rootCmd.AddCommand(tenantCmd)
}

func runTenantList(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")

	var result struct {
		Tenants []struct {
			TenantID     string `json:"tenant_id"`
			StackID      string `json:"stack_id"`
			Status       string `json:"status"`
			StateVersion int    `json:"state_version"`
			DriftCount   int    `json:"drift_count"`
		} `json:"tenants"`
	}
	if err := getJSON(server+"/v1/tenants", &result); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TENANT\tSTACK\tSTATUS\tVERSION\tDRIFT")
	for _, t := range result.Tenants {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			t.TenantID, t.StackID, t.Status, t.StateVersion, t.DriftCount)
	}
	return w.Flush()
}

func runTenantDrift(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")

	var result struct {
		Status     string `json:"status"`
		HasDrift   bool   `json:"has_drift"`
		DriftItems []struct {
			Type             string `json:"type"`
			Component        string `json:"component"`
			Expected         string `json:"expected"`
			Observed         string `json:"observed"`
			Severity         string `json:"severity"`
			AutoHealEligible bool   `json:"auto_heal_eligible"`
			HoldReason       string `json:"hold_reason"`
		} `json:"drift_items"`
	}
	url := fmt.Sprintf("%s/v1/tenants/%s/stacks/%s/drift", server, args[0], args[1])
	if err := getJSON(url, &result); err != nil {
		return err
	}

	fmt.Printf("Status: %s\n", result.Status)
	if !result.HasDrift {
		fmt.Println("No open drift.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tCOMPONENT\tEXPECTED\tOBSERVED\tSEVERITY\tAUTO-HEAL")
	for _, item := range result.DriftItems {
		heal := "yes"
		if !item.AutoHealEligible {
			heal = "no (" + item.HoldReason + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			item.Type, item.Component, item.Expected, item.Observed, item.Severity, heal)
	}
	return w.Flush()
}

func runTenantAck(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	url := fmt.Sprintf("%s/v1/tenants/%s/stacks/%s/ack", server, args[0], args[1])
	if err := postEmpty(url); err != nil {
		return err
	}
	fmt.Printf("✓ Acknowledged %s/%s\n", args[0], args[1])
	return nil
}

func runTenantArchive(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	url := fmt.Sprintf("%s/v1/tenants/%s/stacks/%s", server, args[0], args[1])

	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("archive failed with status %d", resp.StatusCode)
	}
	fmt.Printf("✓ Archived %s/%s\n", args[0], args[1])
	return nil
}

func runTenantReconcile(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	url := fmt.Sprintf("%s/v1/tenants/%s/stacks/%s/reconcile", server, args[0], args[1])
	if err := postEmpty(url); err != nil {
		return err
	}
	fmt.Printf("✓ Reconciled %s/%s\n", args[0], args[1])
	return nil
}

func getJSON(url string, out any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func postEmpty(url string) error {
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return nil
}
