package main

import (
	"context"
	"time"

	"github.com/25smoking/chanwatch/internal/core"
	"github.com/25smoking/chanwatch/internal/registry"
	"github.com/25smoking/chanwatch/internal/report"
	"github.com/25smoking/chanwatch/internal/topology"
	"github.com/spf13/cobra"
)

const snapshotTimeout = 30 * time.Second

func newSnapshotCmd() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "query the registry once and export the topology",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd, format, output)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format (json, csv, dot, html)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file or directory, - for stdout")
	return cmd
}

// newGraphCmd keeps the graph command: a DOT snapshot written to a file.
func newGraphCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "生成拓扑图谱 (Graphviz DOT)",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := report.OutputPath(output, "dot")
			if err := runSnapshot(cmd, "dot", path); err != nil {
				return err
			}
			log.Infof("图谱已生成: %s", path)
			log.Info("请使用 Graphviz 打开该文件，或访问 http://www.webgraphviz.com/ 进行查看。")
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "topology.dot", "output file or directory")
	return cmd
}

func runSnapshot(cmd *cobra.Command, format, output string) error {
	cfg, err := setup(cmd, false)
	if err != nil {
		return err
	}
	checkPrivileges(cfg.Registry.Kind)

	client, err := registry.New(cfg.Registry, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), snapshotTimeout)
	defer cancel()

	snap, err := takeSnapshot(ctx, client, topology.NewModel(cfg.Scan.StaleAfterScans))
	if err != nil {
		return err
	}
	return report.Save(snap, format, output)
}

// takeSnapshot runs one query through the model so the exported snapshot
// has been validated and carries lifecycle state.
func takeSnapshot(ctx context.Context, client registry.Client, model *topology.Model) (*topology.Snapshot, error) {
	candidate, err := core.SafeCall(ctx, log, client.Name(), client.QueryTopology)
	if err != nil {
		return nil, err
	}
	if _, err := model.Commit(candidate); err != nil {
		return nil, err
	}
	return model.Current(), nil
}
