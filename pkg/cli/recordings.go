package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/interceptd/pkg/cli/internal/output"
	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/recording"
)

var (
	recordingsDir    string
	recordingsConfig string
)

var recordingsCmd = &cobra.Command{
	Use:     "recordings",
	Aliases: []string{"rec"},
	Short:   "Browse recorded responses",
}

var recordingsListCmd = &cobra.Command{
	Use:   "list [folder]",
	Short: "List recording folders, or the files of one folder",
	Example: `  interceptd recordings list
  interceptd recordings list active
  interceptd recordings list active --dir ./recordings --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecordingsList,
}

func init() {
	recordingsCmd.PersistentFlags().StringVar(&recordingsDir, "dir", "", "Recordings directory (default: recordingsDir from the configuration)")
	recordingsCmd.PersistentFlags().StringVarP(&recordingsConfig, "config", "c", config.DefaultConfigFile, "Path to the proxy configuration file")
	recordingsCmd.AddCommand(recordingsListCmd)
	rootCmd.AddCommand(recordingsCmd)
}

// resolveRecordingsDir returns --dir, or the directory named by the
// configuration file.
func resolveRecordingsDir() (string, error) {
	if recordingsDir != "" {
		return recordingsDir, nil
	}
	cfg, err := config.LoadOrDefault(recordingsConfig)
	if err != nil {
		return "", err
	}
	return cfg.RecordingsDir, nil
}

func runRecordingsList(cmd *cobra.Command, args []string) error {
	dir, err := resolveRecordingsDir()
	if err != nil {
		return err
	}
	lib := recording.NewLibrary(dir, nil)
	w := cmd.OutOrStdout()

	if len(args) == 0 {
		folders, err := lib.Folders()
		if err != nil {
			return err
		}
		return printResult(cmd, folders, func() {
			if len(folders) == 0 {
				fmt.Fprintf(w, "No recordings in %s\n", dir)
				return
			}
			tw := output.Table(w)
			fmt.Fprintln(tw, "FOLDER\tFILES")
			for _, f := range folders {
				fmt.Fprintf(tw, "%s\t%d\n", f.Name, f.Files)
			}
			_ = tw.Flush()
		})
	}

	folder := args[0]
	files, err := lib.Files(folder)
	if err != nil {
		return err
	}
	return printResult(cmd, files, func() {
		if len(files) == 0 {
			fmt.Fprintf(w, "No recordings in folder %q\n", folder)
			return
		}
		tw := output.Table(w)
		fmt.Fprintln(tw, "PATH\tMETHOD\tQUERY\tBODY\tSIZE\tMODIFIED")
		for _, f := range files {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\t%s\n",
				f.Path, f.Method, f.HasQuery, f.HasBody, output.Size(f.Size), f.Modified.Format("2006-01-02 15:04:05"))
		}
		_ = tw.Flush()
	})
}
