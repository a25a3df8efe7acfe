// Command conductorctl is a cobra-based CLI client for the Ingress API:
// create/start/stop/retry/resume/status/events subcommands, each a thin
// HTTP call against a running conductord.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conductor-run/conductor/pkg/ingress"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand constructs the conductorctl root command. --addr and
// --token are persistent since every subcommand needs both to reach the
// Ingress API.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "conductorctl",
		Short:         "conductorctl talks to the Agent Run Orchestrator's Ingress API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("addr", envOr("CONDUCTOR_ADDR", "http://localhost:8080"), "conductord base URL")
	cmd.PersistentFlags().String("token", envOr("CONDUCTOR_TOKEN", ""), "bearer token")

	cmd.AddCommand(
		newCreateCommand(),
		newStartCommand(),
		newStopCommand(),
		newRetryCommand(),
		newResumeCommand(),
		newStatusCommand(),
		newEventsCommand(),
	)

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// client is the minimal HTTP wrapper every subcommand shares.
type client struct {
	addr  string
	token string
	http  *http.Client
}

func clientFromFlags(cmd *cobra.Command) (*client, error) {
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return nil, err
	}
	token, err := cmd.Flags().GetString("token")
	if err != nil {
		return nil, err
	}
	return &client{addr: strings.TrimRight(addr, "/"), token: token, http: &http.Client{Timeout: 30 * time.Second}}, nil
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.addr+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newCreateCommand() *cobra.Command {
	var prompt, externalID, projectID string
	var maxCredits int64

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new run in pending status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}

			req := ingress.CreateRunRequest{Prompt: prompt, ExternalID: externalID, ProjectID: projectID}
			if maxCredits > 0 {
				req.Config = &ingress.RunConfigOverrides{MaxCredits: maxCredits}
			}

			var resp ingress.CreateRunResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/v1/runs", req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s status=%s\n", resp.RunID, resp.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "", "the run's prompt (required)")
	cmd.Flags().StringVar(&externalID, "external-id", "", "caller idempotency token")
	cmd.Flags().StringVar(&projectID, "project-id", "", "override the tenant resolved from the bearer token")
	cmd.Flags().Int64Var(&maxCredits, "max-credits", 0, "override the default credit budget")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}

func newStartCommand() *cobra.Command {
	return runIDCommand("start", "Start a created run", http.MethodPost, func(id string) string {
		return "/v1/runs/" + id + "/start"
	})
}

func newStopCommand() *cobra.Command {
	return runIDCommand("stop", "Cancel a run", http.MethodPost, func(id string) string {
		return "/v1/runs/" + id + "/stop"
	})
}

func newRetryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <run-id>",
		Short: "Create a new run from a failed one's prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var resp ingress.CreateRunResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/v1/runs/"+args[0]+"/retry", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s status=%s\n", resp.RunID, resp.Status)
			return nil
		},
	}
	return cmd
}

func newResumeCommand() *cobra.Command {
	var userInput string
	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume a waiting_user or paused run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			req := ingress.ResumeRunRequest{UserInput: userInput}
			if err := c.do(cmd.Context(), http.MethodPost, "/v1/runs/"+args[0]+"/resume", req, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "resumed")
			return nil
		},
	}
	cmd.Flags().StringVar(&userInput, "input", "", "text to feed back into the run's next decision loop")
	return cmd
}

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a run's current status and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var resp ingress.RunStatusResponse
			if err := c.do(cmd.Context(), http.MethodGet, "/v1/runs/"+args[0], nil, &resp); err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(resp)
		},
	}
	return cmd
}

func newEventsCommand() *cobra.Command {
	var since int64
	cmd := &cobra.Command{
		Use:   "events <run-id>",
		Short: "Stream a run's event log until the connection closes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}

			path := "/v1/runs/" + args[0] + "/events"
			if since > 0 {
				path += fmt.Sprintf("?since=%d", since)
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, c.addr+path, nil)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+c.token)

			resp, err := c.http.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				data, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("events %s: status %d: %s", args[0], resp.StatusCode, string(data))
			}

			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				line := scanner.Text()
				if line == "" {
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return scanner.Err()
		},
	}
	cmd.Flags().Int64Var(&since, "since", 0, "replay catchup history from this sequence number")
	return cmd
}

// runIDCommand builds the common shape shared by start/stop: a single
// positional run id argument, a bare POST, and an acked status printed back.
func runIDCommand(use, short, method string, path func(id string) string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <run-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			var resp struct {
				RunID  string `json:"run_id"`
				Status string `json:"status"`
			}
			if err := c.do(cmd.Context(), method, path(args[0]), nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s status=%s\n", resp.RunID, resp.Status)
			return nil
		},
	}
}
