// README: Operator commands that call a running shopd over its HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type apiClient struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends the request and decodes a 2xx JSON body into out.
func (c *apiClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func addClientFlags(cmd *cobra.Command, addr, token *string) {
	cmd.Flags().StringVar(addr, "addr", envOrDefault("SHOPD_API_URL", "http://localhost:8080"), "shopd base URL")
	cmd.Flags().StringVar(token, "token", os.Getenv("SHOPD_API_TOKEN"), "bearer token with the ops role")
}

type statusView struct {
	Connections    int `json:"connections"`
	Available      int `json:"available"`
	Clusters       int `json:"clusters"`
	OffersInFlight int `json:"offers_in_flight"`
	TrackedOrders  int `json:"tracked_orders"`
	Assigned       int `json:"assigned"`
}

func newStatusCmd() *cobra.Command {
	var addr, token string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connections, clusters and offers in flight",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st statusView
			if err := newAPIClient(addr, token).do(cmd.Context(), http.MethodGet, "/api/dispatch/status", &st); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "connections:      %d\n", st.Connections)
			fmt.Fprintf(w, "available:        %d\n", st.Available)
			fmt.Fprintf(w, "clusters:         %d\n", st.Clusters)
			fmt.Fprintf(w, "offers in flight: %d\n", st.OffersInFlight)
			fmt.Fprintf(w, "tracked orders:   %d\n", st.TrackedOrders)
			fmt.Fprintf(w, "assigned:         %d\n", st.Assigned)
			return nil
		},
	}
	addClientFlags(cmd, &addr, &token)
	return cmd
}

type scanView struct {
	Orders     int  `json:"orders"`
	Workers    int  `json:"workers"`
	Dispatched int  `json:"dispatched"`
	Skipped    bool `json:"skipped"`
}

func newScanOnceCmd() *cobra.Command {
	var addr, token, orderID string
	cmd := &cobra.Command{
		Use:   "scan-once",
		Short: "Run one dispatch cycle, or dispatch a single order with --order",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(addr, token)
			w := cmd.OutOrStdout()
			if orderID != "" {
				var res map[string]any
				if err := client.do(cmd.Context(), http.MethodPost, "/api/dispatch/orders/"+orderID, &res); err != nil {
					return err
				}
				fmt.Fprintf(w, "order %s: %v", orderID, res["status"])
				if wid, ok := res["worker_id"]; ok {
					fmt.Fprintf(w, " to %v", wid)
				}
				fmt.Fprintln(w)
				return nil
			}
			var res scanView
			if err := client.do(cmd.Context(), http.MethodPost, "/api/dispatch/run", &res); err != nil {
				return err
			}
			fmt.Fprintf(w, "orders=%d workers=%d dispatched=%d\n", res.Orders, res.Workers, res.Dispatched)
			return nil
		},
	}
	addClientFlags(cmd, &addr, &token)
	cmd.Flags().StringVar(&orderID, "order", "", "dispatch only this order id")
	return cmd
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
