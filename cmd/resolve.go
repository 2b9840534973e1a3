package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/open-feature/appflagd/pkg/eval"
	"github.com/open-feature/appflagd/pkg/provider"
)

var (
	resolveFile  string
	resolveAppID string
	resolveFlag  string
)

// resolveCmd resolves a flag table file once and prints the result
var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve the flags of a file for one application id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(resolveFile)
		if err != nil {
			return err
		}
		table, err := provider.ParseDocument(raw, filepath.Ext(resolveFile))
		if err != nil {
			return fmt.Errorf("%s: %w", resolveFile, err)
		}

		resolved := eval.Resolve(table, resolveAppID)

		var out any = resolved
		if resolveFlag != "" {
			v, ok := resolved.Get(resolveFlag)
			if !ok {
				return fmt.Errorf("flag %s has no value for app %q", resolveFlag, resolveAppID)
			}
			out = v
		}

		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return err
	},
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveFile, "file", "f", "", "flag table file, JSON or YAML")
	resolveCmd.Flags().StringVarP(&resolveAppID, "app-id", "a", "", "application id to resolve for")
	resolveCmd.Flags().StringVar(&resolveFlag, "flag", "", "print only this flag")
	_ = resolveCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(resolveCmd)
}
