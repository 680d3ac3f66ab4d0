package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/gymdesk/api"
	"github.com/warp/gymdesk/config"
	"github.com/warp/gymdesk/plans"
)

func newPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "Print the plan catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tNAME\tPRICE\tDAYS")
			for _, p := range plans.DefaultCatalog().Plans() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", p.Code, p.Name, p.Price, p.ValidityDays)
			}
			return tw.Flush()
		},
	}
}

func newSeedCmd() *cobra.Command {
	var names []string
	for _, s := range api.Scenarios() {
		names = append(names, s.ID)
	}
	return &cobra.Command{
		Use:       "seed <scenario>",
		Short:     "Reset the database and load a demo scenario",
		Long:      "Reset the database and load a demo scenario. This deletes every record.\n\nScenarios: " + strings.Join(names, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.handler.Seed(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded scenario %s\n", args[0])
			return nil
		},
	}
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Print the bcrypt hash of an admin key",
		Long:  "Print the bcrypt hash to put in admin.key_hash or GYMDESK_ADMIN_KEY_HASH. Reads the key from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read key: %w", err)
				}
				key = strings.TrimSpace(line)
			}
			hash, err := config.HashAdminKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
