package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/tv42/httpunix"

	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/oddebug"
)

const statusLocation = "odnode"

func newStatusCmd() *cobra.Command {
	var socket string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current round and pending batch count of a running node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printStatus(cmd.OutOrStdout(), newUnixClient(socket))
		},
	}

	cmd.Flags().StringVar(&socket, "socket", "odnode.sock", "path to the node's debug socket")

	return cmd
}

func newUnixClient(socket string) *http.Client {
	u := &httpunix.Transport{
		DialTimeout:           100 * time.Millisecond,
		RequestTimeout:        2 * time.Second,
		ResponseHeaderTimeout: 2 * time.Second,
	}
	u.RegisterLocation(statusLocation, socket)

	return &http.Client{Transport: u}
}

func printStatus(w io.Writer, client *http.Client) error {
	base := httpunix.Scheme + "://" + statusLocation

	var r odconsensus.Round
	if err := getJSON(client, base+"/round", &r); err != nil {
		return err
	}

	var pending oddebug.PendingSummary
	if err := getJSON(client, base+"/batches/pending", &pending); err != nil {
		return err
	}

	var rounds []odconsensus.Round
	if err := getJSON(client, base+"/proposals", &rounds); err != nil {
		return err
	}

	fmt.Fprintf(w, "round:            %s\n", r)
	fmt.Fprintf(w, "pending batches:  %d\n", pending.Count)
	fmt.Fprintf(w, "stored proposals: %d\n", len(rounds))
	return nil
}

func getJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("query %s: %s: %s", url, resp.Status, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}
