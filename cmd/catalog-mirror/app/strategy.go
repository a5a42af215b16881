package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/stacklok/catalog-mirror/internal/httpclient"
	pkgsync "github.com/stacklok/catalog-mirror/internal/sync"
	"github.com/stacklok/catalog-mirror/internal/versions"
)

const (
	defaultServerURL     = "http://localhost:8080"
	remoteRequestTimeout = 30 * time.Second
)

// apiClient talks to the operator API of a running server.
type apiClient struct {
	baseURL string
	http    *httpclient.DefaultClient
}

func newAPIClient(cmd *cobra.Command) (*apiClient, error) {
	server, err := cmd.Flags().GetString("server")
	if err != nil {
		return nil, fmt.Errorf("failed to get server flag: %w", err)
	}
	u, err := url.Parse(server)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", server)
	}
	return &apiClient{
		baseURL: strings.TrimSuffix(server, "/"),
		http: httpclient.NewDefaultClient(remoteRequestTimeout,
			httpclient.WithUserAgent("catalog-mirror-cli/"+versions.Version)),
	}, nil
}

// checkVersion logs a warning when the server runs an incompatible version.
func (c *apiClient) checkVersion(ctx context.Context) {
	body, err := c.http.Get(ctx, c.baseURL+"/version")
	if err != nil {
		slog.Debug("Could not read server version", "error", err)
		return
	}
	var info versions.Info
	if err := json.Unmarshal(body, &info); err != nil {
		slog.Debug("Could not parse server version", "error", err)
		return
	}
	if warning := versions.CompatibilityWarning(versions.Version, info.Version); warning != "" {
		slog.Warn(warning)
	}
}

func (c *apiClient) listStrategies(ctx context.Context) ([]pkgsync.Info, error) {
	body, err := c.http.Get(ctx, c.baseURL+"/api/v1/strategies")
	if err != nil {
		return nil, apiError(err)
	}
	var infos []pkgsync.Info
	if err := json.Unmarshal(body, &infos); err != nil {
		return nil, fmt.Errorf("failed to decode strategies: %w", err)
	}
	return infos, nil
}

func (c *apiClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}
	resp, err := c.http.PostJSON(ctx, c.baseURL+path, body)
	if err != nil {
		return nil, apiError(err)
	}
	return resp, nil
}

// apiError unwraps the message of an API error response.
func apiError(err error) error {
	var httpErr *httpclient.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}
	if msg := gjson.Get(httpErr.Message, "error"); msg.Exists() {
		return fmt.Errorf("server returned %d: %s", httpErr.StatusCode, msg.String())
	}
	return err
}

func newStrategyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Manage strategies on a running server",
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if client, err := newAPIClient(cmd); err == nil {
				client.checkVersion(cmd.Context())
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	cmd.PersistentFlags().String("server", defaultServerURL, "Base URL of the catalog mirror server")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List strategies with their running state and progress",
		Args:  cobra.NoArgs,
		RunE:  runStrategyList,
	}
	listCmd.Flags().String("format", "table", "Output format (table or json)")

	runCmd := &cobra.Command{
		Use:   "run <strategy>",
		Short: "Start a strategy in the background on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(cmd)
			if err != nil {
				return err
			}
			opts, err := syncOptions(cmd)
			if err != nil {
				return err
			}
			if _, err := client.post(cmd.Context(), "/api/v1/strategies/"+url.PathEscape(args[0])+"/run", opts); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Strategy %s started\n", args[0])
			return err
		},
	}
	runCmd.Flags().Int("cooldown-days", 0, "Override the character cooldown in days")
	runCmd.Flags().Int("batch-size", 0, "Override the subject page size")
	runCmd.Flags().Bool("skip-characters", false, "Sync subject metadata only")

	stopCmd := &cobra.Command{
		Use:   "stop <strategy>",
		Short: "Ask a running strategy to stop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(cmd)
			if err != nil {
				return err
			}
			if _, err := client.post(cmd.Context(), "/api/v1/strategies/"+url.PathEscape(args[0])+"/stop", nil); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Stop requested for %s\n", args[0])
			return err
		},
	}

	stopAllCmd := &cobra.Command{
		Use:   "stop-all",
		Short: "Ask every strategy to stop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newAPIClient(cmd)
			if err != nil {
				return err
			}
			if _, err := client.post(cmd.Context(), "/api/v1/strategies/stop", nil); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Stop requested for all strategies")
			return err
		},
	}

	cmd.AddCommand(listCmd, runCmd, stopCmd, stopAllCmd)
	return cmd
}

func runStrategyList(cmd *cobra.Command, _ []string) error {
	client, err := newAPIClient(cmd)
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}

	infos, err := client.listStrategies(cmd.Context())
	if err != nil {
		return err
	}

	switch format {
	case "json":
		return printJSON(cmd, infos)
	case "table":
		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.Header([]string{"Name", "Running", "Progress", "Description"})
		for _, info := range infos {
			progress := fmt.Sprintf("%d/%d (%d%%)", info.Progress.Current, info.Progress.Total, info.Progress.Percentage)
			if err := table.Append([]string{
				info.Name, strconv.FormatBool(info.IsRunning), progress, info.Description,
			}); err != nil {
				return fmt.Errorf("failed to render table: %w", err)
			}
		}
		return table.Render()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
