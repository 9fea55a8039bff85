// datasource.go — DS command: binds a CSV file as the run's datasource,
// exposing rows through !DATASOURCE_LINE/!COL1../!DATASOURCE_COLUMNS and
// advancing a line cursor (SPEC_FULL.md §C, a feature this spec's
// distillation dropped but the original tool supports).
package commands

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/brennhill/macrorun/internal/codes"
	"github.com/brennhill/macrorun/internal/engine"
	"github.com/brennhill/macrorun/internal/macro"
)

// Datasource holds a loaded CSV table and the run's current row cursor.
type Datasource struct {
	mu      sync.Mutex
	header  []string
	rows    [][]string
	lineIdx int // 0-based; -1 before first DS line
}

// datasources maps a run's state manager to its bound datasource. Keyed on
// pointer identity so multiple concurrent runs never collide.
var (
	datasourcesMu sync.Mutex
	datasources   = map[interface{}]*Datasource{}
)

func loadCSV(path string) (*Datasource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("datasource file has no rows")
	}
	return &Datasource{header: records[0], rows: records[1:], lineIdx: -1}, nil
}

// Next advances the cursor and returns the new row, or ok=false at EOF.
func (d *Datasource) Next() (row []string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lineIdx++
	if d.lineIdx >= len(d.rows) {
		return nil, false
	}
	return d.rows[d.lineIdx], true
}

func (d *Datasource) currentLine() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lineIdx + 1
}

func handleDS(c *engine.CommandContext) error {
	path, err := c.RequireParam("FILE")
	if err != nil {
		path, err = firstPositional(c.Command)
		if err != nil {
			return engine.NewCommandError(codes.MissingParameter, "DS requires FILE or a positional path")
		}
	}

	ds, isNew, loadErr := bindDatasource(c.State, path)
	if loadErr != nil {
		return engine.NewCommandError(codes.DatasourceError, "failed to load datasource: "+loadErr.Error())
	}
	if isNew {
		c.State.Vars().SetSystemTrusted("!DATASOURCE", path)
		c.State.Vars().SetSystemTrusted("!DATASOURCE_COLUMNS", strconv.Itoa(len(ds.header)))
	}

	row, ok := ds.Next()
	if !ok {
		return engine.NewCommandError(codes.DatasourceError, "datasource exhausted: "+path)
	}
	c.State.Vars().SetSystemTrusted("!DATASOURCE_LINE", strconv.Itoa(ds.currentLine()))
	for i, value := range row {
		if i >= 10 {
			break
		}
		c.State.Vars().SetSystemTrusted(fmt.Sprintf("!COL%d", i+1), value)
	}
	return nil
}

func bindDatasource(key interface{}, path string) (*Datasource, bool, error) {
	datasourcesMu.Lock()
	defer datasourcesMu.Unlock()
	if ds, ok := datasources[key]; ok {
		return ds, false, nil
	}
	ds, err := loadCSV(path)
	if err != nil {
		return nil, false, err
	}
	datasources[key] = ds
	return ds, true, nil
}

func firstPositional(c macro.Command) (string, error) {
	pos := c.Positionals()
	if len(pos) == 0 {
		return "", fmt.Errorf("no positional token")
	}
	return pos[0].Key, nil
}
