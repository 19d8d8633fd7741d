package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// adminClient is the thin front-end spec.md §6 leaves unspecified: a plain
// HTTP client against the admin mux registerOperatorRoutes builds, the same
// role cmd/warren/main.go's node/service CLI subcommands play by dialing a
// running manager's gRPC API instead.
func adminClient(cmd *cobra.Command) (addr string) {
	addr, _ = cmd.Flags().GetString("admin-addr")
	return addr
}

func postJSON(addr, path string, body any) ([]byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	resp, err := http.Post("http://"+addr+path, "application/json", &buf)
	if err != nil {
		return nil, fmt.Errorf("contact %s: %w", addr, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: %s", resp.Status, string(out))
	}
	return out, nil
}

func getJSON(addr, path string) ([]byte, error) {
	resp, err := http.Get("http://" + addr + path)
	if err != nil {
		return nil, fmt.Errorf("contact %s: %w", addr, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: %s", resp.Status, string(out))
	}
	return out, nil
}

var decommissionCmd = &cobra.Command{
	Use:   "decommission",
	Short: "Leave the ring voluntarily (decommission())",
	RunE: func(cmd *cobra.Command, args []string) error {
		ignoreDead, _ := cmd.Flags().GetBool("ignore-dead")
		out, err := postJSON(adminClient(cmd), "/operator/decommission", decommissionRequest{IgnoreDead: ignoreDead})
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var removeNodeCmd = &cobra.Command{
	Use:   "removenode <host-id>",
	Short: "Forcibly evict a dead peer (removenode(host_id, ignore_nodes))",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ignoreNodes, _ := cmd.Flags().GetStringSlice("ignore-nodes")
		out, err := postJSON(adminClient(cmd), "/operator/removenode", removeNodeRequest{HostID: args[0], IgnoreNodes: ignoreNodes})
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Stop accepting topology-change traffic and flush (drain())",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := postJSON(adminClient(cmd), "/operator/drain", nil)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild <source-dc>",
	Short: "Pull fresh replicas for already-owned ranges (rebuild(source_dc))",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := postJSON(adminClient(cmd), "/operator/rebuild", rebuildRequest{SourceDC: args[0]})
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print this node's operation mode (get_operation_mode())",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := getJSON(adminClient(cmd), "/operator/status")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var ringCmd = &cobra.Command{
	Use:   "ring",
	Short: "Print the natural replica set for every ring range (describe_ring(keyspace))",
	RunE: func(cmd *cobra.Command, args []string) error {
		ks, _ := cmd.Flags().GetString("keyspace")
		out, err := getJSON(adminClient(cmd), "/operator/ring?keyspace="+ks)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var ownershipCmd = &cobra.Command{
	Use:   "ownership",
	Short: "Print each endpoint's fraction of ring ownership (effective_ownership(keyspace))",
	RunE: func(cmd *cobra.Command, args []string) error {
		ks, _ := cmd.Flags().GetString("keyspace")
		out, err := getJSON(adminClient(cmd), "/operator/ownership?keyspace="+ks)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var gossipCmd = &cobra.Command{
	Use:   "gossip [start|stop]",
	Short: "start_gossiping()/stop_gossiping()",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		switch args[0] {
		case "start":
			path = "/operator/gossip/start"
		case "stop":
			path = "/operator/gossip/stop"
		default:
			return fmt.Errorf("gossip: expected \"start\" or \"stop\", got %q", args[0])
		}
		out, err := postJSON(adminClient(cmd), path, nil)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var forceRemoveCompletionCmd = &cobra.Command{
	Use:   "force-remove-completion <endpoint>",
	Short: "Stop waiting on stragglers for a removal already under way (force_remove_completion())",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := postJSON(adminClient(cmd), "/operator/force-remove-completion?endpoint="+args[0], nil)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var removalStatusCmd = &cobra.Command{
	Use:   "removal-status",
	Short: "Print the in-flight removenode call's progress (get_removal_status())",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := getJSON(adminClient(cmd), "/operator/removal-status")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	removeNodeCmd.Flags().StringSlice("ignore-nodes", nil, "peers already known unreachable, excluded from the fanout")
	decommissionCmd.Flags().Bool("ignore-dead", false, "proceed even if some peers are unreachable")
	ringCmd.Flags().String("keyspace", "", "keyspace name (unused: replica placement here is ring geometry only)")
	ownershipCmd.Flags().String("keyspace", "", "keyspace name (unused: replica placement here is ring geometry only)")
}
