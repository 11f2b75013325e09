package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"canonstore/internal/api"
	"canonstore/internal/auth"
	"canonstore/internal/config"
)

func newAdminCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}

	cmd.AddCommand(newAdminSweepCmd(cfg, out))
	cmd.AddCommand(newAdminSweepStatusCmd(cfg, out))
	cmd.AddCommand(newAdminTokenCmd(cfg, out))
	cmd.AddCommand(newAdminHashTokenCmd(out))
	return cmd
}

func newAdminSweepCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var (
		apply     bool
		stray     bool
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim items no owner references (dry run unless --apply)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if batchSize < 0 {
				return fmt.Errorf("--batch-size must be >= 0")
			}
			req := api.SweepRequest{DryRun: !apply, BatchSize: batchSize}
			if cmd.Flags().Changed("stray") {
				req.Stray = &stray
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Sweep(cmd.Context(), req, apply)
				if err != nil {
					return err
				}
				if out.structured() {
					return writeStructured(resp)
				}
				return writeSweepSummary(resp)
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete orphans instead of reporting them")
	cmd.Flags().BoolVar(&stray, "stray", false, "also sweep objects that have no metadata record")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per listing page (default: server reconciler batch size)")
	return cmd
}

func newAdminSweepStatusCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-status",
		Short: "Show the state of the scheduled orphan sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				status, err := client.SweepStatus(cmd.Context())
				if err != nil {
					return err
				}
				if out.structured() {
					return writeStructured(status)
				}
				if !status.Enabled {
					return writePlain("scheduled sweep: disabled\n")
				}
				_ = writePlain("scheduled sweep: enabled running=%t runs=%d\n", status.Running, status.Runs)
				if status.NextRunAt != nil {
					_ = writePlain("next_run_at: %s\n", formatTime(*status.NextRunAt))
				}
				if status.LastRunAt != nil {
					_ = writePlain("last_run_at: %s\n", formatTime(*status.LastRunAt))
				}
				if status.LastError != "" {
					_ = writePlain("last_error: %s\n", status.LastError)
				}
				if status.LastResult != nil {
					return writeSweepSummary(*status.LastResult)
				}
				return nil
			})
		},
	}
}

func newAdminTokenCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and validate API tokens",
	}

	cmd.AddCommand(newAdminTokenIssueCmd(cfg, out))
	cmd.AddCommand(newAdminTokenValidateCmd(cfg, out))
	return cmd
}

func newAdminTokenIssueCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var (
		admin bool
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed API token (requires admin credentials)",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.TokenCreateRequest{Admin: admin}
			if ttl > 0 {
				req.TTL = ttl.String()
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.CreateToken(cmd.Context(), req)
				if err != nil {
					return err
				}
				if out.structured() {
					return writeStructured(resp)
				}
				return writePlain("%s\nexpires_at: %s\n", resp.Token, formatTime(resp.ExpiresAt))
			})
		},
	}

	cmd.Flags().BoolVar(&admin, "admin", false, "grant admin rights to the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: server auth.token_ttl)")
	return cmd
}

func newAdminTokenValidateCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <token>",
		Short: "Check a token against the server",
		Args:  requireExactlyArgs(1, "token is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ValidateToken(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if out.structured() {
					return writeStructured(resp)
				}
				return writePlain("valid admin=%t expires_at=%s\n", resp.Admin, formatTime(resp.ExpiresAt))
			})
		},
	}
}

func newAdminHashTokenCmd(out *outputFlags) *cobra.Command {
	var (
		generate bool
		save     bool
	)

	cmd := &cobra.Command{
		Use:   "hash-admin-token",
		Short: "Hash an admin token (read from stdin) for auth.admin_token_hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := adminTokenInput(generate)
			if err != nil {
				return err
			}
			hash, err := auth.HashAdminToken(token)
			if err != nil {
				return err
			}
			if save {
				path, err := config.GlobalPath()
				if err != nil {
					return err
				}
				if err := config.SetKey(path, "auth.admin_token_hash", hash); err != nil {
					return err
				}
			}

			resp := map[string]string{"admin_token_hash": hash}
			if generate {
				resp["admin_token"] = token
			}
			if out.structured() {
				return writeStructured(resp)
			}
			if generate {
				_ = writePlain("admin_token: %s\n", token)
			}
			return writePlain("admin_token_hash: %s\n", hash)
		},
	}

	cmd.Flags().BoolVar(&generate, "generate", false, "generate a random token instead of reading stdin")
	cmd.Flags().BoolVar(&save, "save", false, "write the hash to the global config file")
	return cmd
}

func adminTokenInput(generate bool) (string, error) {
	if generate {
		return auth.GenerateSecret(32)
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read admin token from stdin: %w", err)
	}
	token := strings.TrimRight(line, "\r\n")
	if token == "" {
		return "", fmt.Errorf("admin token is required on stdin")
	}
	return token, nil
}
