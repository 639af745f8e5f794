// imagestorectl is the operator tool for offline maintenance: scanning for
// and purging orphaned gallery directories without going through the HTTP
// API.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"imagestore/internal/config"
	"imagestore/internal/reconcile"
	"imagestore/internal/registry"
	"imagestore/internal/util"
	"imagestore/pkg/domain"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "imagestorectl",
		Short: "Operator tool for the image store",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to configuration file")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "List orphaned gallery directories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := newReconciler(configPath)
			if err != nil {
				return err
			}
			orphans, err := r.Scan()
			if err != nil {
				return err
			}
			printOrphans(orphans)
			return nil
		},
	}

	var confirm bool
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete orphaned gallery directories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := newReconciler(configPath)
			if err != nil {
				return err
			}
			orphans, err := r.Scan()
			if err != nil {
				return err
			}
			if len(orphans) == 0 {
				fmt.Println("No orphaned folders found.")
				return nil
			}
			printOrphans(orphans)
			if !confirm {
				fmt.Println("\nRe-run with --yes to delete these folders.")
				return nil
			}
			result, err := r.Purge(true)
			if err != nil {
				return err
			}
			for _, folder := range result.Folders {
				if folder.Status == "deleted" {
					fmt.Printf("deleted  %s\n", folder.Name)
				} else {
					fmt.Printf("FAILED   %s: %s\n", folder.Name, folder.Message)
				}
			}
			fmt.Printf("\n%d deleted, %d failed\n", result.Deleted, result.Failed)
			if result.Failed > 0 {
				os.Exit(1)
			}
			return nil
		},
	}
	purgeCmd.Flags().BoolVar(&confirm, "yes", false, "actually delete the orphaned folders")

	rootCmd.AddCommand(scanCmd, purgeCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newReconciler(configPath string) (*reconcile.Reconciler, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := util.InitLogger("error")
	reg, err := registry.New(cfg.RegistryPath())
	if err != nil {
		return nil, err
	}
	return reconcile.New(reg, cfg.StorageRoot, logger), nil
}

func printOrphans(orphans []domain.OrphanFolder) {
	if len(orphans) == 0 {
		fmt.Println("No orphaned folders found.")
		return
	}
	fmt.Printf("%d orphaned folder(s):\n\n", len(orphans))
	for _, o := range orphans {
		fmt.Printf("  %-40s %5d file(s)  %s\n", o.Name, o.FileCount, formatBytes(o.TotalBytes))
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
