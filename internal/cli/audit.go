package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/monban/internal/model"
)

var (
	auditRequester string
	auditPlayer    string
	auditPassed    string
	auditLimit     int
	auditOffset    int
	auditJSON      bool
	auditExportOut string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditExportCmd)

	auditListCmd.Flags().StringVar(&auditRequester, "requester", "", "Filter by requester")
	auditListCmd.Flags().StringVar(&auditPlayer, "player", "", "Filter by player")
	auditListCmd.Flags().StringVar(&auditPassed, "passed", "", "Filter by verdict (true|false)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 50, "Page size")
	auditListCmd.Flags().IntVar(&auditOffset, "offset", 0, "Page offset")
	auditListCmd.Flags().BoolVar(&auditJSON, "json", false, "Print records as JSON lines, transcripts included")

	auditExportCmd.Flags().StringVarP(&auditExportOut, "out", "o", "", "Write to a file instead of stdout")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for listing, verifying, and exporting the hash-chained interview audit log.",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List finished interviews",
	RunE:  runAuditList,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit log's hash chain",
	Long: "Asks the server to recompute every record's content hash and link.\n" +
		"Exits 0 if the chain is intact, 1 if any record was tampered with.",
	RunE: runAuditVerify,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the full audit log as NDJSON",
	Long:  "Mints a short-lived export token, then streams every record in chain order.",
	RunE:  runAuditExport,
}

// auditPage mirrors the top-level list envelope of GET /v1/audit.
type auditPage struct {
	Records []model.AuditRecord `json:"data"`
	Total   *int                `json:"total"`
	HasMore bool                `json:"has_more"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

func runAuditList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	params := url.Values{}
	if auditRequester != "" {
		params.Set("requester", auditRequester)
	}
	if auditPlayer != "" {
		params.Set("player", auditPlayer)
	}
	if auditPassed != "" {
		if _, err := strconv.ParseBool(auditPassed); err != nil {
			return fmt.Errorf("--passed must be true or false")
		}
		params.Set("passed", auditPassed)
	}
	params.Set("limit", strconv.Itoa(auditLimit))
	if auditOffset > 0 {
		params.Set("offset", strconv.Itoa(auditOffset))
	}

	var page auditPage
	if err := client.getList(cmd.Context(), "/v1/audit?"+params.Encode(), &page); err != nil {
		return err
	}

	if auditJSON {
		enc := json.NewEncoder(os.Stdout)
		for _, rec := range page.Records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	}

	if len(page.Records) == 0 {
		fmt.Println("No audit records.")
		return nil
	}

	fmt.Printf("%-17s %-18s %-18s %-7s %-6s %s\n", "ENDED", "REQUESTER", "PLAYER", "RESULT", "SCORE", "REASON")
	for _, rec := range page.Records {
		result := "fail"
		if rec.Passed {
			result = "pass"
		}
		fmt.Printf("%-17s %-18s %-18s %-7s %-6d %s\n",
			rec.EndedAt.Format("2006-01-02 15:04"),
			truncate(rec.Requester, 18),
			rec.Player,
			result,
			rec.Score,
			rec.Reason,
		)
	}

	if page.Total != nil {
		fmt.Printf("%d of %d records (offset %d)\n", len(page.Records), *page.Total, page.Offset)
	} else if page.HasMore {
		fmt.Printf("%d records, more available (offset %d)\n", len(page.Records), page.Offset)
	}
	return nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	var verify model.ChainVerifyResponse
	if err := client.get(cmd.Context(), "/v1/audit/verify", &verify); err != nil {
		return err
	}

	if verify.OK {
		fmt.Printf("OK: %d records verified\n", verify.Records)
		return nil
	}

	fmt.Fprintf(os.Stderr, "FAILED at record %d: hash chain broken\n", *verify.BadIndex)
	os.Exit(1)
	return nil
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	var tok model.ExportTokenResponse
	if err := client.post(cmd.Context(), "/v1/audit/export-token", map[string]any{}, &tok); err != nil {
		return err
	}

	body, err := client.stream(cmd.Context(), "/v1/audit/export?token="+url.QueryEscape(tok.Token))
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	out := io.Writer(os.Stdout)
	if auditExportOut != "" {
		f, err := os.Create(auditExportOut)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	n, err := io.Copy(out, body)
	if err != nil {
		return fmt.Errorf("download export: %w", err)
	}
	if auditExportOut != "" {
		fmt.Printf("Wrote %d bytes to %s.\n", n, auditExportOut)
	}
	return nil
}
