package commands

import (
	"github.com/dustin/go-humanize"
	"github.com/marmos91/dittovfs/internal/cli/output"
	"github.com/marmos91/dittovfs/pkg/mount"
	"github.com/marmos91/dittovfs/pkg/storage"
	"github.com/spf13/cobra"
)

func newMountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mounts",
		Short: "List the configured mounts",
		Long: `List the configured mounts with their storage id, quota and free space.

Every backend is created to answer, so an unreachable backend shows up with
its error instead of aborting the listing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			infos := rt.Manager.Describe(cmd.Context())
			return printResult(cmd, infos, mountsTable(infos))
		},
	}
}

func mountsTable(infos []mount.Info) *output.TableData {
	table := output.NewTableData("Mount Point", "Backend", "Storage ID", "Quota", "Free")
	for _, info := range infos {
		free := humanFree(info.FreeSpace)
		if info.Error != "" {
			free = "error: " + info.Error
		}
		quota := "unlimited"
		if info.Quota >= 0 {
			quota = humanize.IBytes(uint64(info.Quota))
		}
		table.AddRow(info.MountPoint, info.Backend, info.StorageID, quota, free)
	}
	return table
}

func humanFree(n int64) string {
	if n == storage.SpaceUnknown {
		return "unknown"
	}
	return humanize.IBytes(uint64(n))
}
