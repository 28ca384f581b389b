// Package main implements the memctl CLI for manual operations against the memoryd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the memoryd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "memctl",
	Short: "CLI for memoryd HTTP server operations",
	Long: `memctl is a command-line interface for interacting with the memoryd HTTP server.
It provides commands for ingesting conversation turns, retrieving articles,
managing snapshots, and checking server health.`,
	Version: version,
}

var (
	ingestRole  string
	retrieveTop int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9190", "memoryd server URL")
	ingestCmd.Flags().StringVar(&ingestRole, "role", "user", "speaker role (user or agent)")
	retrieveCmd.Flags().IntVarP(&retrieveTop, "top", "k", 0, "number of articles to return (0 uses the server default)")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(healthCmd)
}

// ingestCmd sends one conversation turn
var ingestCmd = &cobra.Command{
	Use:   "ingest [text]",
	Short: "Ingest a conversation turn",
	Long: `Ingest one conversation turn into the memoryd server. The text is read
from the argument, or from stdin when the argument is omitted or "-".

Examples:
  # Ingest a user turn
  memctl ingest "Bob's birthday is on July 15"

  # Ingest an agent turn
  memctl ingest --role agent "Noted, I'll remember that."

  # Ingest from stdin
  echo "some turn" | memctl ingest -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

// retrieveCmd queries articles
var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Retrieve articles relevant to a query",
	Long: `Retrieve the articles most relevant to a query.

Examples:
  # Retrieve with the server's default result count
  memctl retrieve "when is Bob's birthday?"

  # Retrieve the top 5 articles
  memctl retrieve -k 5 "project deadlines"`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

// statsCmd prints collection sizes
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory collection sizes",
	RunE:  runStats,
}

// snapshotCmd persists server state
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save a snapshot of the server's memory state",
	RunE:  runSnapshot,
}

// restoreCmd loads the persisted snapshot
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the server's memory state from the saved snapshot",
	RunE:  runRestore,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check memoryd server health",
	Long: `Check the health status of the memoryd HTTP server.

Examples:
  # Check health
  memctl health

  # Check health on a different server
  memctl health --server http://localhost:8080`,
	RunE: runHealth,
}

// IngestRequest matches internal/server/types.go IngestRequest
type IngestRequest struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Stats matches internal/memory Stats
type Stats struct {
	PendingLogs  int `json:"pending_logs"`
	ArchivedLogs int `json:"archived_logs"`
	Rollups      int `json:"rollups"`
	Articles     int `json:"articles"`
	UngatedQueue int `json:"ungated_queue"`
}

// IngestResponse matches internal/server/types.go IngestResponse
type IngestResponse struct {
	Stats Stats `json:"stats"`
}

// ArticleView matches internal/server/types.go ArticleView
type ArticleView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RetrieveResponse matches internal/server/types.go RetrieveResponse
type RetrieveResponse struct {
	Articles []ArticleView `json:"articles"`
}

// SnapshotResponse matches internal/server/types.go SnapshotResponse
type SnapshotResponse struct {
	Path     string `json:"path"`
	Articles int    `json:"articles"`
	Rollups  int    `json:"rollups"`
}

// HealthResponse matches internal/server/types.go HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

// runIngest handles the ingest command
func runIngest(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
		text = string(content)
	} else {
		text = args[0]
	}

	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("no text to ingest")
	}

	reqJSON, err := json.Marshal(IngestRequest{Role: ingestRole, Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	// Ingest can block on oracle calls, so use a generous timeout.
	body, err := postJSON(serverURL+"/api/v1/ingest", reqJSON, 120*time.Second)
	if err != nil {
		return err
	}

	var resp IngestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Ingested. Pending: %d  Rollups: %d  Articles: %d\n",
		resp.Stats.PendingLogs, resp.Stats.Rollups, resp.Stats.Articles)
	return nil
}

// runRetrieve handles the retrieve command
func runRetrieve(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	q.Set("q", args[0])
	if retrieveTop > 0 {
		q.Set("k", fmt.Sprintf("%d", retrieveTop))
	}

	body, err := getJSON(serverURL+"/api/v1/retrieve?"+q.Encode(), 30*time.Second)
	if err != nil {
		return err
	}

	var resp RetrieveResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(resp.Articles) == 0 {
		fmt.Println("No articles found.")
		return nil
	}
	for i, a := range resp.Articles {
		fmt.Printf("%d. %s (updated %s)\n", i+1, a.Title, a.UpdatedAt.Format(time.RFC3339))
		fmt.Printf("   %s\n", a.Body)
	}
	return nil
}

// runStats handles the stats command
func runStats(cmd *cobra.Command, args []string) error {
	body, err := getJSON(serverURL+"/api/v1/stats", 5*time.Second)
	if err != nil {
		return err
	}

	var stats Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Pending logs:  %d\n", stats.PendingLogs)
	fmt.Printf("Archived logs: %d\n", stats.ArchivedLogs)
	fmt.Printf("Rollups:       %d\n", stats.Rollups)
	fmt.Printf("Articles:      %d\n", stats.Articles)
	return nil
}

// runSnapshot handles the snapshot command
func runSnapshot(cmd *cobra.Command, args []string) error {
	body, err := postJSON(serverURL+"/api/v1/snapshot", nil, 30*time.Second)
	if err != nil {
		return err
	}

	var resp SnapshotResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Snapshot saved to %s (%d articles, %d rollups)\n", resp.Path, resp.Articles, resp.Rollups)
	return nil
}

// runRestore handles the restore command
func runRestore(cmd *cobra.Command, args []string) error {
	body, err := postJSON(serverURL+"/api/v1/restore", nil, 30*time.Second)
	if err != nil {
		return err
	}

	var stats Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Restored. Rollups: %d  Articles: %d\n", stats.Rollups, stats.Articles)
	return nil
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	body, err := getJSON(serverURL+"/health", 5*time.Second)
	if err != nil {
		return err
	}

	var healthResp HealthResponse
	if err := json.Unmarshal(body, &healthResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", healthResp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)
	return nil
}

// postJSON sends a POST request and returns the response body.
func postJSON(endpoint string, payload []byte, timeout time.Duration) ([]byte, error) {
	req, err := http.NewRequest("POST", endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	return readResponse(resp)
}

// getJSON sends a GET request and returns the response body.
func getJSON(endpoint string, timeout time.Duration) ([]byte, error) {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	return readResponse(resp)
}

func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
