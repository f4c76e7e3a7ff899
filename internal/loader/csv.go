// Package loader reads the wide item-by-location source tables into the
// normalized row shape the engine consumes. It resolves only the item
// metadata columns itself; location columns are passed through raw so the
// taxonomy, not the loader, decides what is tracked.
package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/portops/cargoflow/internal/domain"
)

var columnNameSanitizer = strings.NewReplacer(" ", "", "_", "", ".", "", "-", "", "/", "")

func normalizeColumnName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	return columnNameSanitizer.Replace(name)
}

// metadata column aliases seen across source workbooks.
var (
	itemIDAliases = []string{"item_id", "item no", "case no", "hvdc code", "pkg no", "id"}
	pkgQtyAliases = []string{"pkg", "pkg_qty", "pkg q'ty", "package qty", "qty"}
	vendorAliases = []string{"vendor", "supplier", "vendor name"}
)

func columnIndex(header []string, aliases []string) int {
	targets := make(map[string]struct{}, len(aliases))
	for _, name := range aliases {
		targets[normalizeColumnName(name)] = struct{}{}
	}
	for i, h := range header {
		if _, ok := targets[normalizeColumnName(h)]; ok {
			return i
		}
	}
	return -1
}

// ReadCSV reads an item table from a CSV file.
func ReadCSV(path string) ([]domain.ItemRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parseCSV(f)
}

func parseCSV(r io.Reader) ([]domain.ItemRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	idxID := columnIndex(header, itemIDAliases)
	if idxID == -1 {
		return nil, fmt.Errorf("no item identifier column in header: %w", domain.ErrInvalidInputShape)
	}
	idxQty := columnIndex(header, pkgQtyAliases)
	idxVendor := columnIndex(header, vendorAliases)

	rows := make([]domain.ItemRow, 0)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		get := func(idx int) string {
			if idx < 0 || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		row := domain.ItemRow{
			ItemID: get(idxID),
			Vendor: get(idxVendor),
			Cells:  make(map[string]string, len(header)),
		}
		if qty := get(idxQty); qty != "" {
			qty = strings.ReplaceAll(qty, ",", "")
			if n, err := strconv.Atoi(qty); err == nil {
				row.PkgQty = n
			}
		}

		for i, h := range header {
			if i == idxID || i == idxQty || i == idxVendor {
				continue
			}
			if v := get(i); v != "" {
				row.Cells[h] = v
			}
		}

		rows = append(rows, row)
	}

	return rows, nil
}
