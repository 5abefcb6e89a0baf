// Package main provides the femesh binary: import gocfd-readable mesh
// files (Gmsh, Gambit neutral) and export them as FieldML documents, or
// print a summary of their topology.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/notargets/femesh/fieldml"
	"github.com/notargets/femesh/mesh"
	"github.com/notargets/femesh/meshio"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "femesh",
		Short: "Finite element mesh topology and FieldML export",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	cmd.PersistentFlags().BoolVar(&verbose, "v", false, "Debug logging")
	cmd.AddCommand(exportCmd(), infoCmd())
	return cmd
}

// exportConfig is the YAML export configuration. All settings have flag
// equivalents; flags win when both are given.
type exportConfig struct {
	// Fields lists field names to export. Empty means every field.
	Fields []string `yaml:"fields"`

	// DefineFaces builds faces and lines before export.
	DefineFaces bool `yaml:"defineFaces"`
}

func parseExportConfig(data []byte) (exportConfig, error) {
	var cfg exportConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return exportConfig{}, fmt.Errorf("parse export config: %w", err)
	}
	return cfg, nil
}

func loadExportConfig(path string) (exportConfig, error) {
	if path == "" {
		return exportConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return exportConfig{}, fmt.Errorf("read export config: %w", err)
	}
	return parseExportConfig(data)
}

func exportCmd() *cobra.Command {
	var (
		output      string
		configPath  string
		defineFaces bool
	)

	cmd := &cobra.Command{
		Use:   "export <meshfile>",
		Short: "Convert a mesh file to a FieldML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadExportConfig(configPath)
			if err != nil {
				return err
			}
			if defineFaces {
				cfg.DefineFaces = true
			}
			region, err := meshio.LoadRegion(args[0])
			if err != nil {
				return err
			}
			if cfg.DefineFaces {
				if err := region.DefineFaces(); err != nil {
					return err
				}
			}
			var fieldNames []string
			if len(cfg.Fields) > 0 {
				fieldNames = cfg.Fields
			}
			return fieldml.WriteFileFields(region, output, fieldNames)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "out.fieldml", "Output FieldML file")
	cmd.Flags().StringVar(&configPath, "config", "", "Export config file (YAML)")
	cmd.Flags().BoolVar(&defineFaces, "define-faces", false, "Build faces and lines before export")
	return cmd
}

func infoCmd() *cobra.Command {
	var defineFaces bool

	cmd := &cobra.Command{
		Use:   "info <meshfile>",
		Short: "Print a summary of a mesh file's topology",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			region, err := meshio.LoadRegion(args[0])
			if err != nil {
				return err
			}
			if defineFaces {
				if err := region.DefineFaces(); err != nil {
					return err
				}
			}
			fmt.Print(regionSummary(region))
			return nil
		},
	}
	cmd.Flags().BoolVar(&defineFaces, "define-faces", false, "Build faces and lines before summarizing")
	return cmd
}

// regionSummary formats the region's topology and fields for display.
func regionSummary(r *mesh.Region) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Region: %s\n", r.Name()))
	sb.WriteString(fmt.Sprintf("  Number of nodes: %d\n", r.Nodeset().Size()))
	for dimension := 3; dimension >= 1; dimension-- {
		m := r.FindMesh(dimension)
		if m == nil || m.ElementCount() == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s elements: %d\n", m.Name(), m.ElementCount()))
	}
	fields := r.Fields()
	sb.WriteString(fmt.Sprintf("  Number of fields: %d\n", len(fields)))
	for _, f := range fields {
		kind := ""
		if f.IsCoordinate() {
			kind = " (coordinate)"
		}
		sb.WriteString(fmt.Sprintf("    %s: %d component(s)%s\n", f.Name(), f.ComponentCount(), kind))
	}
	return sb.String()
}
