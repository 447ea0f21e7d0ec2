package openhousecli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/phillip-england/openhouse/internal/backup"
)

func (a *app) backupCmd() *cobra.Command {
	var (
		dest        string
		bucket      string
		prefix      string
		region      string
		endpoint    string
		workbookDir string
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the xlsx workbooks to a directory or S3 bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := workbookDir
			if dir == "" {
				cfg, err := a.loadConfig()
				if err != nil {
					return err
				}
				dir = cfg.WorkbookDir
			}

			var target backup.Destination
			switch {
			case bucket != "":
				s3dest, err := backup.NewS3Destination(cmd.Context(), bucket, prefix, region, endpoint)
				if err != nil {
					return err
				}
				target = s3dest
			case dest != "":
				target = backup.DirDestination{Dir: dest}
			default:
				return fmt.Errorf("%w: --dest or --s3-bucket is required", ErrUsage)
			}

			summary, err := backup.Run(cmd.Context(), dir, target, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, a.style.Success(fmt.Sprintf("wrote %s (%d workbooks, %d bytes)", summary.Name, len(summary.Files), summary.Bytes)))
			for _, name := range summary.Files {
				fmt.Fprintln(a.out, "  "+a.style.Muted(name))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workbookDir, "workbook-dir", "", "workbook directory (default: WORKBOOK_DIR)")
	cmd.Flags().StringVar(&dest, "dest", "", "local directory for the archive")
	cmd.Flags().StringVar(&bucket, "s3-bucket", "", "S3 bucket for the archive")
	cmd.Flags().StringVar(&prefix, "s3-prefix", "backups", "key prefix inside the bucket")
	cmd.Flags().StringVar(&region, "s3-region", "us-east-1", "S3 region")
	cmd.Flags().StringVar(&endpoint, "s3-endpoint", "", "S3-compatible endpoint (enables path-style addressing)")
	return cmd
}
