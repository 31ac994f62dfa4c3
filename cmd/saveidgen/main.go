// saveidgen assigns stable save ids to the author-placed entities of scene
// files before the runtime ever loads them.
//
// Usage:
//
//	saveidgen [--hashed] [--dry-run] data/scenes/*.yaml
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/l1jgo/savemaster/internal/scene"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		hashed bool
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "saveidgen <scene.yaml>...",
		Short: "Assign missing and duplicate save ids in scene files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := scene.RandomIDs
			if hashed {
				gen = scene.HashedIDs
			}
			total := scene.Result{}
			for _, path := range args {
				res, err := processFile(path, gen, dryRun)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d assigned, %d duplicates replaced\n",
					filepath.Base(path), res.Assigned, res.Duplicates)
				total.Assigned += res.Assigned
				total.Duplicates += res.Duplicates
			}
			if len(args) > 1 {
				fmt.Fprintf(cmd.OutOrStdout(), "total: %d assigned, %d duplicates replaced\n", total.Assigned, total.Duplicates)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&hashed, "hashed", false, "derive ids from scope, template and position instead of random uuids")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without writing files")
	return cmd
}

func processFile(path string, gen scene.IDFunc, dryRun bool) (scene.Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return scene.Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return scene.Result{}, fmt.Errorf("parse %s: %w", path, err)
	}
	res, err := scene.AssignIDs(&doc, gen)
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}
	if dryRun || res.Assigned+res.Duplicates == 0 {
		return res, nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return res, fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return res, err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return res, fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return res, fmt.Errorf("replace %s: %w", path, err)
	}
	return res, nil
}
