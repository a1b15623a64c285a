package commands

import (
	"strconv"

	"github.com/marmos91/dittovfs/internal/cli/output"
	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <path>",
		Short: "Refresh the metadata cache of a path",
		Long: `Bring the cached metadata of a path up to date and print the result.

With a badger cache the scan persists and later scans only report changes.
Mounts with an owner also correct the folder sizes of the owner's cache.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.Scanner.Scan(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			table := output.NewTableData("Mount Point", "Internal Path", "Updated", "Type", "Size")
			typ, size := "missing", ""
			if res.Entry != nil {
				typ = string(res.Entry.Type)
				size = strconv.FormatInt(res.Entry.Size, 10)
			}
			table.AddRow(res.MountPoint, "/"+res.InternalPath, strconv.FormatBool(res.Updated), typ, size)
			return printResult(cmd, res, table)
		},
	}
}
