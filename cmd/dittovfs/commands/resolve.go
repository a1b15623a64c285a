package commands

import (
	"github.com/marmos91/dittovfs/internal/cli/output"
	"github.com/marmos91/dittovfs/pkg/mount"
	"github.com/spf13/cobra"
)

// resolution is the result of dittovfs resolve.
type resolution struct {
	Path         string `json:"path" yaml:"path"`
	MountPoint   string `json:"mount_point" yaml:"mount_point"`
	Backend      string `json:"backend" yaml:"backend"`
	StorageID    string `json:"storage_id" yaml:"storage_id"`
	InternalPath string `json:"internal_path" yaml:"internal_path"`
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <path>",
		Short: "Show the mount covering a path",
		Long: `Show the mount covering an absolute path and the path inside its storage.

Example:
  dittovfs resolve /scratch/reports/q1.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			res, err := rt.Manager.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			id, err := res.Mount.StorageID(ctx)
			if err != nil {
				return err
			}

			r := resolution{
				Path:         mount.NormalizePath(args[0]),
				MountPoint:   res.Mount.MountPoint(),
				Backend:      res.Mount.Class(),
				StorageID:    id,
				InternalPath: res.InternalPath,
			}
			table := output.NewTableData("Path", "Mount Point", "Backend", "Storage ID", "Internal Path")
			table.AddRow(r.Path, r.MountPoint, r.Backend, r.StorageID, "/"+r.InternalPath)
			return printResult(cmd, r, table)
		},
	}
}
