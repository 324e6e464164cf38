package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/newsdigest-mcp/internal/embedder"
)

// previewDims is how many vector components embed prints
const previewDims = 8

func newEmbedCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "embed <text>",
		Short: "Embed text with the configured provider to check credentials and dimensions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := embedder.New(cmd.Context(), c.cfg.EmbedderConfig())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			vec, err := embedder.Embed(cmd.Context(), e, strings.Join(args, " "), c.cfg.Embedding.Timeout)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Provider:  %s\n", e.Provider())
			fmt.Fprintf(out, "Model:     %s\n", e.Model())
			fmt.Fprintf(out, "Dimension: %d\n", len(vec))
			fmt.Fprintf(out, "Norm:      %.4f\n", norm(vec))
			fmt.Fprintf(out, "Preview:   %v\n", vec[:min(previewDims, len(vec))])
			if len(vec) != e.Dimension() {
				return fmt.Errorf("provider reported dimension %d but returned %d", e.Dimension(), len(vec))
			}
			return nil
		},
	}
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
