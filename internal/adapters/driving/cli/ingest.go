package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var ingestName string

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a document",
	Long: `Reads a text file, splits it into chunks, embeds them, and indexes
the result for retrieval.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestName, "name", "n", "", "document name (defaults to the file name)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	name := ingestName
	if name == "" {
		name = filepath.Base(path)
	}

	doc, err := ingestService.Ingest(cmd.Context(), ownerFlag, name, string(data))
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	cmd.Printf("Ingested %s\n", doc.Name)
	cmd.Printf("  ID:     %s\n", doc.ID)
	cmd.Printf("  Chunks: %d\n", doc.ChunkCount)
	cmd.Printf("  Status: %s\n", doc.Status)
	return nil
}
