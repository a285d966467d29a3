package analysis

import (
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/matrixio"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

// Sheet はワークブックの1シート
type Sheet struct {
	Name  string
	Table *table.Table
}

// WriteWorkbook は各表を1シートずつ並べた xlsx を path に書き出す。
// 1行目に列名を置き、欠損セルは空のままにする。
func WriteWorkbook(path string, sheets ...Sheet) (err error) {
	if len(sheets) == 0 {
		return errors.NewValueError("WriteWorkbook", "no sheets")
	}
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "close workbook")
		}
	}()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.Name); err != nil {
				return errors.Wrapf(err, "rename sheet %s", s.Name)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return errors.Wrapf(err, "create sheet %s", s.Name)
		}
		if err := fillSheet(f, s); err != nil {
			return err
		}
	}

	return matrixio.WriteAtomic(path, func(w io.Writer) error {
		_, err := f.WriteTo(w)
		return errors.Wrapf(err, "write workbook %s", path)
	})
}

func fillSheet(f *excelize.File, s Sheet) error {
	t := s.Table
	for j, name := range t.Names() {
		cell, err := excelize.CoordinatesToCellName(j+1, 1)
		if err != nil {
			return errors.Wrap(err, "header cell")
		}
		if err := f.SetCellValue(s.Name, cell, name); err != nil {
			return errors.Wrapf(err, "sheet %s", s.Name)
		}
	}
	for j := 0; j < t.NumCols(); j++ {
		c := t.ColumnAt(j)
		for i, v := range c.Values {
			if v.IsMissing() {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return errors.Wrap(err, "data cell")
			}
			var value interface{}
			switch c.Kind {
			case table.Numeric:
				value = v.Num
			case table.Boolean:
				value = v.Truth()
			default:
				value = v.Str
			}
			if err := f.SetCellValue(s.Name, cell, value); err != nil {
				return errors.Wrapf(err, "sheet %s", s.Name)
			}
		}
	}
	return nil
}
