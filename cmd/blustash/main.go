package main

import (
	"fmt"
	"os"
	"strconv"

	"blustash/internal/app"
	"blustash/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Scan", "Stage").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "blustash",
	Short: "Filesystem index and optical backup staging tool",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Index DB: %s\n", cfg.DBPath)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Index DB:     %s\n", cfg.DBPath)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Scan Root:    %s\n", cfg.Scan.Root)
		fmt.Printf("Batch Size:   %d\n", cfg.Scan.BatchSize)
		fmt.Printf("Workers:      %d\n", cfg.Scan.Workers)
		fmt.Printf("Mapping File: %s\n", cfg.Staging.MappingFile)
		fmt.Printf("Burn Device:  %s\n", cfg.Burner.Device)
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan [PATH]",
	Short: "Synchronize the index with the filesystem",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Scan")
		if err != nil {
			return err
		}
		defer a.Close()

		root := ""
		if len(args) > 0 {
			root = args[0]
		}

		stats, err := a.Scan(cmd.Context(), root)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		fmt.Printf("Scanned %d directories, %d files\n", stats.DirsTotal, stats.FilesTotal)
		fmt.Printf("New: %d  Changed: %d  Deleted: %d files, %d directories\n",
			stats.Inserted, stats.Superseded, stats.Deleted, stats.DeletedDirs)
		if stats.SessionUUID != "" {
			fmt.Printf("Session: %s\n", stats.SessionUUID)
		} else {
			fmt.Println("No changes detected.")
		}
		return nil
	},
}

// stage command
var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Generate a burn manifest for files not yet backed up",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, _ := cmd.Flags().GetString("base")
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp("Stage")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Stage(base, output)
		if err != nil {
			return fmt.Errorf("staging failed: %w", err)
		}

		fmt.Printf("Staged %d file(s), skipped %d\n", res.Staged, res.Skipped)
		fmt.Printf("Manifest: %s\n", res.ManifestPath)
		fmt.Printf("Metadata: %s\n", res.MetaPath)
		return nil
	},
}

// burn command
var burnCmd = &cobra.Command{
	Use:   "burn",
	Short: "Burn the staged manifest to disc",
	RunE: func(cmd *cobra.Command, args []string) error {
		device, _ := cmd.Flags().GetString("device")
		mapping, _ := cmd.Flags().GetString("mapping")
		finalize, _ := cmd.Flags().GetBool("finalize")

		a, err := newApp("Burn")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Burn(cmd.Context(), device, mapping, finalize)
		if err != nil {
			return fmt.Errorf("burn failed: %w", err)
		}
		if res.ExitCode != 0 {
			fmt.Print(res.Output)
			return fmt.Errorf("xorriso exited with code %d", res.ExitCode)
		}

		fmt.Println("Burn complete.")
		return nil
	},
}

// sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions on the disc",
	RunE: func(cmd *cobra.Command, args []string) error {
		device, _ := cmd.Flags().GetString("device")

		a, err := newApp("Sessions")
		if err != nil {
			return err
		}
		defer a.Close()

		sessions, err := a.Sessions(cmd.Context(), device)
		if err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		for _, s := range sessions {
			fmt.Println(s.Raw)
		}
		return nil
	},
}

// extract command
var extractCmd = &cobra.Command{
	Use:   "extract SESSION OUTPUT_DIR",
	Short: "Extract a disc session to a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		device, _ := cmd.Flags().GetString("device")

		session, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid session number %q", args[0])
		}

		a, err := newApp("Extract")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Extract(cmd.Context(), device, session, args[1])
		if err != nil {
			return fmt.Errorf("extraction failed: %w", err)
		}
		if res.ExitCode != 0 {
			fmt.Print(res.Output)
			return fmt.Errorf("xorriso exited with code %d", res.ExitCode)
		}

		fmt.Printf("Extracted session %d to %s\n", session, args[1])
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify disc checksums",
	RunE: func(cmd *cobra.Command, args []string) error {
		device, _ := cmd.Flags().GetString("device")

		a, err := newApp("Verify")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Verify(cmd.Context(), device)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			fmt.Print(res.Output)
			return fmt.Errorf("verification failed with code %d", res.ExitCode)
		}

		fmt.Println("Verification passed.")
		return nil
	},
}

// info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the most recent scan session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Info")
		if err != nil {
			return err
		}
		defer a.Close()

		session, err := a.Info()
		if err != nil {
			return err
		}
		if session == nil {
			fmt.Println("No scan sessions recorded.")
			return nil
		}

		fmt.Printf("Session:       %s\n", session.UUID)
		fmt.Printf("Started:       %s\n", session.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Changed files: %d\n", session.ChangedFiles)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(stageCmd)
	stageCmd.Flags().StringP("base", "b", "", "Base path staged destinations are relative to")
	stageCmd.Flags().StringP("output", "o", "", "Manifest output path")
	rootCmd.AddCommand(burnCmd)
	burnCmd.Flags().StringP("device", "d", "", "Optical device")
	burnCmd.Flags().StringP("mapping", "m", "", "Mapping manifest to burn")
	burnCmd.Flags().Bool("finalize", false, "Close the disc after burning")
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.Flags().StringP("device", "d", "", "Optical device")
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringP("device", "d", "", "Optical device")
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringP("device", "d", "", "Optical device")
	rootCmd.AddCommand(infoCmd)
}
