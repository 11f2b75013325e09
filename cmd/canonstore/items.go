package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"canonstore/internal/api"
	"canonstore/internal/config"
	"canonstore/internal/models"
)

func newPutCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var (
		family string
		urls   []string
	)

	cmd := &cobra.Command{
		Use:   "put [<file>...]",
		Short: "Store files or remote URLs and print their ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			fam, err := models.ParseFamily(family)
			if err != nil {
				return err
			}
			switch {
			case len(args) > 0 && len(urls) > 0:
				return fmt.Errorf("pass files or --url, not both")
			case len(args) == 0 && len(urls) == 0:
				return fmt.Errorf("at least one file or --url is required")
			}

			return withClient(cfg, func(client *api.Client) error {
				var ids []string
				if len(urls) > 0 {
					ids, err = putURLs(cmd, client, fam, urls)
				} else {
					ids, err = putFiles(cmd, client, fam, args)
				}
				if err != nil {
					return err
				}
				if out.structured() {
					return writeStructured(api.IDsResponse{IDs: ids})
				}
				for _, id := range ids {
					if err := writePlain("%s\n", id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&family, "family", string(models.FamilyImage), "media family (image, novel)")
	cmd.Flags().StringArrayVar(&urls, "url", nil, "fetch content from an http(s) URL (repeatable)")
	return cmd
}

func putURLs(cmd *cobra.Command, client *api.Client, family models.Family, urls []string) ([]string, error) {
	if len(urls) == 1 {
		resp, err := client.UploadFromURL(cmd.Context(), family, urls[0])
		if err != nil {
			return nil, err
		}
		return []string{resp.ID}, nil
	}
	resp, err := client.UploadFromURLs(cmd.Context(), family, urls)
	if err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

func putFiles(cmd *cobra.Command, client *api.Client, family models.Family, paths []string) ([]string, error) {
	files := make([]api.UploadFile, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		files = append(files, api.UploadFile{
			Name:        filepath.Base(path),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			Body:        f,
		})
	}

	if len(files) == 1 {
		resp, err := client.Upload(cmd.Context(), family, files[0])
		if err != nil {
			return nil, err
		}
		return []string{resp.ID}, nil
	}
	resp, err := client.UploadMulti(cmd.Context(), family, files)
	if err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

func newListCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var (
		family string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List the newest items of a family with their owner counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			fam, err := models.ParseFamily(family)
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				items, err := client.ListItems(cmd.Context(), fam, limit)
				if err != nil {
					return err
				}
				if out.structured() {
					return writeStructured(items)
				}
				return writeItemList(items)
			})
		},
	}

	addFamilyFlag(cmd, &family)
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum items to list (default: server default)")
	return cmd
}

func newShowCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var family string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show item metadata",
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			fam, err := models.ParseFamily(family)
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				rec, err := client.GetItem(cmd.Context(), fam, args[0])
				if err != nil {
					return err
				}
				if out.structured() {
					return writeStructured(rec)
				}
				return writeRecordDetail(rec)
			})
		},
	}

	addFamilyFlag(cmd, &family)
	return cmd
}

func newCatCmd(cfg *config.Config) *cobra.Command {
	var (
		family string
		output string
	)

	cmd := &cobra.Command{
		Use:   "cat <id>",
		Short: "Write item content to stdout or a file",
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			fam, err := models.ParseFamily(family)
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				var w io.Writer = os.Stdout
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return client.Content(cmd.Context(), fam, args[0], w)
			})
		},
	}

	addFamilyFlag(cmd, &family)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write content to a file instead of stdout")
	return cmd
}

func newRmCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var family string

	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an item and its stored object",
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			fam, err := models.ParseFamily(family)
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.DeleteItem(cmd.Context(), fam, args[0])
				if err != nil {
					return err
				}
				if out.structured() {
					return writeStructured(resp)
				}
				return writePlain("deleted %s\n", resp.ID)
			})
		},
	}

	addFamilyFlag(cmd, &family)
	return cmd
}

func addFamilyFlag(cmd *cobra.Command, family *string) {
	cmd.Flags().StringVar(family, "family", string(models.FamilyImage), "media family (image, novel)")
}
