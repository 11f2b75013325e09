package main

import (
	"github.com/spf13/cobra"

	"canonstore/internal/api"
	"canonstore/internal/config"
	"canonstore/internal/models"
)

func newOwnerCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "owner",
		Short: "Manage owner references that keep items alive",
	}

	cmd.AddCommand(newOwnerAttachCmd(cfg, out))
	cmd.AddCommand(newOwnerDetachCmd(cfg, out))
	cmd.AddCommand(newOwnerListCmd(cfg, out))
	return cmd
}

func newOwnerAttachCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var family string

	cmd := &cobra.Command{
		Use:   "attach <id> <owner_kind> <owner_id>",
		Short: "Attach an owner reference to an item",
		Args:  requireExactlyArgs(3, "id, owner_kind and owner_id are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			fam, err := models.ParseFamily(family)
			if err != nil {
				return err
			}
			if err := models.ValidateOwner(args[1], args[2]); err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				ref, err := client.AttachOwner(cmd.Context(), fam, args[0], api.OwnerAttachRequest{OwnerKind: args[1], OwnerID: args[2]})
				if err != nil {
					return err
				}
				if out.structured() {
					return writeStructured(ref)
				}
				return writePlain("%s\n", ref.ID)
			})
		},
	}

	addFamilyFlag(cmd, &family)
	return cmd
}

func newOwnerDetachCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var family string

	cmd := &cobra.Command{
		Use:   "detach <id> <ref_id>",
		Short: "Remove an owner reference from an item",
		Args:  requireExactlyArgs(2, "id and ref_id are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			fam, err := models.ParseFamily(family)
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.DetachOwner(cmd.Context(), fam, args[0], args[1])
				if err != nil {
					return err
				}
				if out.structured() {
					return writeStructured(resp)
				}
				return writePlain("detached %s\n", resp.ID)
			})
		},
	}

	addFamilyFlag(cmd, &family)
	return cmd
}

func newOwnerListCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var family string

	cmd := &cobra.Command{
		Use:   "ls <id>",
		Short: "List owner references of an item",
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			fam, err := models.ParseFamily(family)
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				refs, err := client.ListOwners(cmd.Context(), fam, args[0])
				if err != nil {
					return err
				}
				if out.structured() {
					return writeStructured(refs)
				}
				return writeOwnerList(refs)
			})
		},
	}

	addFamilyFlag(cmd, &family)
	return cmd
}
