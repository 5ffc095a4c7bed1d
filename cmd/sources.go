package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/talk-catalog-crawler/internal/source"
)

// newSourcesCmd lists the registered source names.
func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Lists the sources that can be crawled",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range source.Names() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
