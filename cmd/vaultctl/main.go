package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vaultctl",
	Short: "DocVault CLI",
	Long:  "A CLI for managing documents in DocVault.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
		// Env var overrides are applied in newClient()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json, raw")
	rootCmd.PersistentFlags().StringVar(&outputField, "field", "", "Print only this field (use with -format=raw)")

	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(lsCmd())
	rootCmd.AddCommand(mkdirCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(renameCmd())
	rootCmd.AddCommand(mvCmd())
	rootCmd.AddCommand(rmCmd())
	rootCmd.AddCommand(restoreCmd())
	rootCmd.AddCommand(uploadCmd())
	rootCmd.AddCommand(downloadURLCmd())
	rootCmd.AddCommand(shareCmd())
	rootCmd.AddCommand(linkCmd())
	rootCmd.AddCommand(auditCmd())
}

// --- register ---

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a principal and save its API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			client := newClient()
			result, err := client.post("/v1/auth/register", map[string]any{
				"displayName": name,
				"email":       email,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				if tok, ok := d["token"].(string); ok {
					cfg.Token = tok
					if err := saveConfig(); err == nil {
						fmt.Fprintln(os.Stderr, "Token saved to config.")
					}
				}
				printResult(d)
				return nil
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().String("email", "", "Email address")
	cmd.MarkFlagRequired("name") //nolint:errcheck
	return cmd
}

// --- items ---

func lsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [parent-id]",
		Short: "List items in a folder (root by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := "/v1/items"
			if len(args) > 0 {
				url += "?parentId=" + args[0]
			}
			client := newClient()
			result, err := client.get(url)
			if err != nil {
				printError(err.Error())
				return nil
			}
			if items, ok := result["data"].([]any); ok && outputFormat == "table" {
				printItems(items)
				return nil
			}
			printResult(result)
			return nil
		},
	}
	return cmd
}

func mkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"name": args[0], "kind": "folder"}
			if parent, _ := cmd.Flags().GetString("parent"); parent != "" {
				body["parentId"] = parent
			}
			client := newClient()
			result, err := client.post("/v1/items", body)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printData(result)
			return nil
		},
	}
	cmd.Flags().String("parent", "", "Parent folder ID")
	return cmd
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/items/" + args[0])
			if err != nil {
				printError(err.Error())
				return nil
			}
			printData(result)
			return nil
		},
	}
}

func renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <new-name>",
		Short: "Rename an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.patch("/v1/items/"+args[0], map[string]any{"name": args[1]})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printData(result)
			return nil
		},
	}
}

func mvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mv <id>",
		Short: "Move an item to another folder (root when --parent is omitted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if parent, _ := cmd.Flags().GetString("parent"); parent != "" {
				body["parentId"] = parent
			}
			client := newClient()
			result, err := client.post("/v1/items/"+args[0]+"/move", body)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printData(result)
			return nil
		},
	}
	cmd.Flags().String("parent", "", "Destination folder ID")
	return cmd
}

func rmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an item (soft delete by default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := "/v1/items/" + args[0]
			if permanent, _ := cmd.Flags().GetBool("permanent"); permanent {
				url += "?permanent=true"
			}
			client := newClient()
			if err := client.delete(url, nil); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Success! Item deleted.")
			return nil
		},
	}
	cmd.Flags().Bool("permanent", false, "Permanently delete (owner only, soft-deleted items only)")
	return cmd
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a soft-deleted item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.post("/v1/items/"+args[0]+"/restore", nil)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printData(result)
			return nil
		},
	}
}

// --- upload / download ---

func uploadCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "upload", Short: "Upload pipeline commands"}

	requestCmd := &cobra.Command{
		Use:   "request <file-name>",
		Short: "Register an upload and print the staged upload URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, _ := cmd.Flags().GetInt64("size")
			mime, _ := cmd.Flags().GetString("mime")
			encrypted, _ := cmd.Flags().GetBool("encrypted")
			body := map[string]any{
				"fileName":  args[0],
				"fileSize":  size,
				"mimeType":  mime,
				"encrypted": encrypted,
			}
			if parent, _ := cmd.Flags().GetString("parent"); parent != "" {
				body["parentId"] = parent
			}
			client := newClient()
			result, err := client.post("/v1/uploads", body)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printData(result)
			return nil
		},
	}
	requestCmd.Flags().Int64("size", 0, "File size in bytes")
	requestCmd.Flags().String("mime", "application/octet-stream", "MIME type")
	requestCmd.Flags().String("parent", "", "Parent folder ID")
	requestCmd.Flags().Bool("encrypted", false, "Mark content as client-side encrypted")
	requestCmd.MarkFlagRequired("size") //nolint:errcheck

	promoteCmd := &cobra.Command{
		Use:   "promote <id>",
		Short: "Promote a scanned-clean upload to permanent storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.post("/v1/uploads/"+args[0]+"/promote", nil)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printData(result)
			return nil
		},
	}

	cmd.AddCommand(requestCmd, promoteCmd)
	return cmd
}

func downloadURLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download-url <id>",
		Short: "Get a time-limited download URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/items/" + args[0] + "/download-url")
			if err != nil {
				printError(err.Error())
				return nil
			}
			printData(result)
			return nil
		},
	}
	return cmd
}

// --- sharing ---

func shareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share <id>",
		Short: "Share an item with other principals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			principals, _ := cmd.Flags().GetStringSlice("with")
			level, _ := cmd.Flags().GetString("level")
			revoke, _ := cmd.Flags().GetBool("revoke")
			client := newClient()
			if revoke {
				if err := client.delete("/v1/items/"+args[0]+"/share", map[string]any{
					"principals": principals,
				}); err != nil {
					printError(err.Error())
					return nil
				}
				printSuccess("Success! Access revoked.")
				return nil
			}
			result, err := client.post("/v1/items/"+args[0]+"/share", map[string]any{
				"principals": principals,
				"level":      level,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printData(result)
			return nil
		},
	}
	cmd.Flags().StringSlice("with", nil, "Principal IDs to grant or revoke")
	cmd.Flags().String("level", "read", "Access level: read or write")
	cmd.Flags().Bool("revoke", false, "Revoke instead of grant")
	cmd.MarkFlagRequired("with") //nolint:errcheck
	return cmd
}

func linkCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "link", Short: "Share link commands"}

	createCmd := &cobra.Command{
		Use:   "create <item-id>",
		Short: "Create a share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if password, _ := cmd.Flags().GetString("password"); password != "" {
				body["password"] = password
			}
			if expires, _ := cmd.Flags().GetString("expires"); expires != "" {
				body["expiresAt"] = expires
			}
			if max, _ := cmd.Flags().GetInt64("max-accesses"); max > 0 {
				body["maxAccessCount"] = max
			}
			client := newClient()
			result, err := client.post("/v1/items/"+args[0]+"/links", body)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printData(result)
			return nil
		},
	}
	createCmd.Flags().String("password", "", "Password gate for the link")
	createCmd.Flags().String("expires", "", "Expiry time (RFC 3339)")
	createCmd.Flags().Int64("max-accesses", 0, "Maximum number of accesses (0 = unlimited)")

	lsCmd := &cobra.Command{
		Use:   "ls <item-id>",
		Short: "List share links for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/items/" + args[0] + "/links")
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	accessCmd := &cobra.Command{
		Use:   "access <link-id>",
		Short: "Redeem a share link for a download URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			client := newClient()
			result, err := client.post("/v1/links/"+args[0]+"/access", map[string]any{
				"password": password,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printData(result)
			return nil
		},
	}
	accessCmd.Flags().String("password", "", "Link password")

	analyticsCmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show sharing analytics",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			client := newClient()
			result, err := client.get(fmt.Sprintf("/v1/share/analytics?days=%d", days))
			if err != nil {
				printError(err.Error())
				return nil
			}
			printData(result)
			return nil
		},
	}
	analyticsCmd.Flags().Int("days", 30, "Window in days")

	cmd.AddCommand(createCmd, lsCmd, accessCmd, analyticsCmd)
	return cmd
}

// --- audit ---

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query your audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			action, _ := cmd.Flags().GetString("action")
			limit, _ := cmd.Flags().GetInt("limit")
			url := fmt.Sprintf("/v1/sys/audit-log?limit=%d", limit)
			if action != "" {
				url += "&action=" + action
			}
			client := newClient()
			result, err := client.get(url)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().String("action", "", "Filter by action (e.g. item.created)")
	cmd.Flags().Int("limit", 50, "Maximum entries")
	return cmd
}

// printData unwraps the API's {"data": ...} envelope when present.
func printData(result map[string]any) {
	if d, ok := result["data"].(map[string]any); ok {
		printResult(d)
		return
	}
	printResult(result)
}
