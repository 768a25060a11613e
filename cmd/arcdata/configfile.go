package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/microsoft/arcdata-cli/pkg/arcdata"
)

func newConfigFileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Edit custom resource files before create or edit",
	}
	cmd.AddCommand(
		newConfigInitCmd(a, ""),
		newConfigValuesCmd(a, "add", "Add values to a custom resource file", (*arcdata.Handler).ConfigAdd),
		newConfigValuesCmd(a, "replace", "Replace values of a custom resource file", (*arcdata.Handler).ConfigReplace),
		newConfigRemoveCmd(a),
		newConfigPatchCmd(a),
	)
	return cmd
}

func newConfigValuesCmd(a *app, use, short string, edit func(*arcdata.Handler, string, string) (map[string]interface{}, error)) *cobra.Command {
	var path, values string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: a.runLocal(func(h *arcdata.Handler) error {
			_, err := edit(h, path, values)
			return err
		}),
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "custom resource file")
	cmd.Flags().StringVarP(&values, "json-values", "j", "", "key.path=value pairs separated by commas")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("json-values")
	return cmd
}

func newConfigRemoveCmd(a *app) *cobra.Command {
	var path, jsonPath string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove keys from a custom resource file",
		RunE: a.runLocal(func(h *arcdata.Handler) error {
			_, err := h.ConfigRemove(path, jsonPath)
			return err
		}),
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "custom resource file")
	cmd.Flags().StringVarP(&jsonPath, "json-path", "j", "", "key paths separated by commas")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("json-path")
	return cmd
}

func newConfigPatchCmd(a *app) *cobra.Command {
	var path, patchFile string
	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Apply a patch file to a custom resource file",
		RunE: a.runLocal(func(h *arcdata.Handler) error {
			_, err := h.ConfigPatch(path, patchFile)
			return err
		}),
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "custom resource file")
	cmd.Flags().StringVar(&patchFile, "patch-file", "", "file with a \"patch\" list of operations")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("patch-file")
	return cmd
}

// newConfigInitCmd writes the template of a fixed kind, or of --kind when kind is
// empty.
func newConfigInitCmd(a *app, kind string) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a custom resource template and its definition to a directory",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.ConfigInit(ctx, kind, path)
			return err
		}),
	}
	if kind == "" {
		cmd.Flags().StringVar(&kind, "kind", "", "kind of template: postgresql|sqlmanagedinstance|datacontroller")
		_ = cmd.MarkFlagRequired("kind")
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "directory to write the template to")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}
