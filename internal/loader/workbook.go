package loader

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/portops/cargoflow/internal/domain"
)

// ReadWorkbook reads an item table from the named sheet of an XLSX
// workbook. An empty sheet name selects the first sheet.
func ReadWorkbook(path, sheet string) ([]domain.ItemRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	all, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheet)
	}

	header := all[0]
	idxID := columnIndex(header, itemIDAliases)
	if idxID == -1 {
		return nil, fmt.Errorf("no item identifier column in sheet %s: %w", sheet, domain.ErrInvalidInputShape)
	}
	idxQty := columnIndex(header, pkgQtyAliases)
	idxVendor := columnIndex(header, vendorAliases)

	rows := make([]domain.ItemRow, 0, len(all)-1)
	for _, record := range all[1:] {
		get := func(idx int) string {
			if idx < 0 || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		// GetRows trims trailing empty cells, so a fully blank line comes
		// back as an empty record; skip those rather than failing on a
		// missing identifier.
		if isBlank(record) {
			continue
		}

		row := domain.ItemRow{
			ItemID: get(idxID),
			Vendor: get(idxVendor),
			Cells:  make(map[string]string, len(header)),
		}
		if qty := get(idxQty); qty != "" {
			row.PkgQty = parseQty(qty)
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

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseQty(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	// Quantities exported from spreadsheets often carry a ".0" suffix.
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
