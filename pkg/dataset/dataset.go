// Package dataset loads the diamonds training data from a local path or an
// HTTP(S) URL (a raw dataset revision served by a data version-control
// host).
package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"

	"github.com/diamondlab/pricer/pkg/frame"
)

// Diamond is one row of the diamonds dataset.
type Diamond struct {
	Carat   float64 `csv:"carat"`
	Cut     string  `csv:"cut"`
	Color   string  `csv:"color"`
	Clarity string  `csv:"clarity"`
	Depth   float64 `csv:"depth"`
	Table   float64 `csv:"table"`
	Price   float64 `csv:"price"`
	X       float64 `csv:"x"`
	Y       float64 `csv:"y"`
	Z       float64 `csv:"z"`
}

// Load reads and decodes the dataset. Any malformed row is fatal: the
// training run aborts rather than fitting on partial data.
func Load(ctx context.Context, source string) ([]Diamond, error) {
	reader, err := open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var rows []Diamond
	if err := gocsv.Unmarshal(reader, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode dataset %q: %w", source, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("dataset %q is empty", source)
	}

	logrus.Infof("loaded %d rows from %s", len(rows), source)
	return rows, nil
}

func open(ctx context.Context, source string) (io.ReadCloser, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		client := &http.Client{Timeout: 5 * time.Minute}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch dataset %q: %w", source, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to fetch dataset %q: status %d", source, resp.StatusCode)
		}
		return resp.Body, nil
	}

	file, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %q: %w", source, err)
	}
	return file, nil
}

// Features converts rows into feature records (price excluded) plus the
// target vector, in row order.
func Features(rows []Diamond) ([]frame.Record, []float64) {
	records := make([]frame.Record, len(rows))
	prices := make([]float64, len(rows))
	for i, row := range rows {
		records[i] = frame.Record{
			"carat":   row.Carat,
			"cut":     row.Cut,
			"color":   row.Color,
			"clarity": row.Clarity,
			"depth":   row.Depth,
			"table":   row.Table,
			"x":       row.X,
			"y":       row.Y,
			"z":       row.Z,
		}
		prices[i] = row.Price
	}
	return records, prices
}
