// Package export writes graphs, partitions and run reports to disk.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/gilchrisn/mortality-clustering-service/pkg/graph"
	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
)

// WriteEdgesCSV writes one "source,target,weight" row per stored direction,
// so every undirected edge appears twice. Rows are ordered by source then
// target and weights are rounded to two decimals.
func WriteEdgesCSV(w io.Writer, g *graph.Graph) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"source", "target", "weight"}); err != nil {
		return errors.Wrap(err, "failed to write CSV header")
	}

	for _, source := range g.SortedNodes() {
		edges := append([]graph.Edge(nil), g.Neighbors(source)...)
		sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })
		for _, e := range edges {
			record := []string{
				string(source),
				string(e.To),
				strconv.FormatFloat(e.Weight, 'f', 2, 64),
			}
			if err := writer.Write(record); err != nil {
				return errors.Wrap(err, "failed to write CSV record")
			}
		}
	}

	writer.Flush()
	return errors.Wrap(writer.Error(), "failed to flush CSV")
}

// WritePartitionCSV writes "node,community" rows in node order
func WritePartitionCSV(w io.Writer, p graph.Partition) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"node", "community"}); err != nil {
		return errors.Wrap(err, "failed to write CSV header")
	}

	ids := make([]models.NodeID, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := writer.Write([]string{string(id), strconv.Itoa(p[id])}); err != nil {
			return errors.Wrap(err, "failed to write CSV record")
		}
	}

	writer.Flush()
	return errors.Wrap(writer.Error(), "failed to flush CSV")
}

// WriteReport encodes report as YAML
func WriteReport(w io.Writer, report interface{}) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(report); err != nil {
		return errors.Wrap(err, "failed to encode report")
	}
	return errors.Wrap(encoder.Close(), "failed to encode report")
}

// SaveEdgesCSV writes g to path, creating parent directories
func SaveEdgesCSV(path string, g *graph.Graph) error {
	return save(path, func(w io.Writer) error { return WriteEdgesCSV(w, g) })
}

// SavePartitionCSV writes p to path, creating parent directories
func SavePartitionCSV(path string, p graph.Partition) error {
	return save(path, func(w io.Writer) error { return WritePartitionCSV(w, p) })
}

// SaveReport writes report to path as YAML, creating parent directories
func SaveReport(path string, report interface{}) error {
	return save(path, func(w io.Writer) error { return WriteReport(w, report) })
}

func save(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create directory")
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}

	if err := write(file); err != nil {
		file.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return errors.Wrapf(file.Close(), "failed to close %s", path)
}
