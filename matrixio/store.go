// Package matrixio reads and writes feature matrices as tab-separated files
// preceded by a "# "-prefixed provenance header.
//
// The layout is compatible with existing matrix caches:
//
//	# processed-matrix.tab
//	# Created: 2026-10-16 09:30:00
//	# @kinds	numeric	numeric	boolean
//	x	y	label
//	1.5		True
//
// The "@kinds" line right above the column names records each column's kind,
// so a table reads back exactly as it was written. It is consumed by Read and
// never returned as a header line. Files without it are legacy caches: their
// kinds are inferred from the text, and "", NA, NaN, nan, None and NULL all
// count as missing. With declared kinds only an empty cell is missing in a
// categorical column.
//
// Writes are all-or-nothing: the file is assembled under a temporary name in
// the destination directory and renamed into place.
package matrixio

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/YuminosukeSato/medpipe/core/table"
	perrors "github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/pkg/log"
)

const (
	headerPrefix = "#"
	separator    = "\t"
	kindsMarker  = "@kinds"
	maxLineBytes = 64 << 20
)

var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"NaN":  true,
	"nan":  true,
	"None": true,
	"NULL": true,
}

// Exists reports whether a matrix file exists at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Read loads the table stored at path. A missing file yields a NotFoundError.
func Read(path string) (*table.Table, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	_, t, err := decode(f, true)
	if err != nil {
		return nil, errors.Wrapf(err, "read matrix %s", path)
	}
	log.GetLoggerWithName("matrixio").Debug("matrix read",
		log.MatrixPathKey, path,
		log.SamplesKey, t.NumRows(),
		log.FeaturesKey, t.NumCols(),
	)
	return t, nil
}

// ReadHeader returns the provenance header lines of the file at path without
// the comment prefix.
func ReadHeader(path string) ([]string, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, _, err := decode(f, false)
	if err != nil {
		return nil, errors.Wrapf(err, "read matrix header %s", path)
	}
	return header, nil
}

// Write stores t at path with the given header lines. Parent directories are
// created as needed. Cells and column names must not contain tabs or newlines,
// categorical cells must not be empty strings and no header line may start
// with the kinds marker; such input is rejected before anything touches the
// filesystem.
func Write(t *table.Table, path string, header []string) error {
	if err := validate(t, header); err != nil {
		return err
	}
	if err := WriteAtomic(path, func(w io.Writer) error {
		return encode(w, t, header)
	}); err != nil {
		return err
	}

	log.GetLoggerWithName("matrixio").Debug("matrix written",
		log.MatrixPathKey, path,
		log.SamplesKey, t.NumRows(),
		log.FeaturesKey, t.NumCols(),
	)
	return nil
}

// WriteAtomic creates path with the bytes produced by fill. The content goes
// to a temporary file in the same directory, which is synced and renamed over
// path only when fill succeeds. A failed write leaves path untouched.
func WriteAtomic(path string, fill func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temporary file")
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = fill(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", path)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", path)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "rename temporary file to %s", path)
	}
	return nil
}

func open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perrors.NewNotFoundError(path)
		}
		return nil, errors.Wrapf(err, "open matrix %s", path)
	}
	return f, nil
}

func validate(t *table.Table, header []string) error {
	for _, h := range header {
		for _, line := range strings.Split(h, "\n") {
			if strings.HasPrefix(line, kindsMarker) {
				return perrors.NewValidationError("header", "line must not start with "+kindsMarker, line)
			}
		}
	}
	for j := 0; j < t.NumCols(); j++ {
		c := t.ColumnAt(j)
		if strings.ContainsAny(c.Name, "\t\r\n") || c.Name == "" {
			return perrors.NewValidationError("column name", "must be non-empty and free of tabs and newlines", c.Name)
		}
		if c.Kind != table.Categorical {
			continue
		}
		for i, v := range c.Values {
			if !v.Valid {
				continue
			}
			if v.Str == "" {
				return perrors.NewValidationError(c.Name, "empty categorical cell at row "+strconv.Itoa(i)+" would read back as missing", v.Str)
			}
			if strings.ContainsAny(v.Str, "\t\r\n") {
				return perrors.NewValidationError(c.Name, "cell contains a tab or newline at row "+strconv.Itoa(i), v.Str)
			}
		}
	}
	return nil
}

func encode(w io.Writer, t *table.Table, header []string) error {
	bw := bufio.NewWriter(w)
	for _, h := range header {
		for _, line := range strings.Split(h, "\n") {
			bw.WriteString(headerPrefix + " " + strings.TrimRight(line, "\r") + "\n")
		}
	}
	cells := make([]string, t.NumCols())
	for j := range cells {
		cells[j] = t.ColumnAt(j).Kind.String()
	}
	bw.WriteString(headerPrefix + " " + kindsMarker + separator + strings.Join(cells, separator) + "\n")
	bw.WriteString(strings.Join(t.Names(), separator) + "\n")

	for i := 0; i < t.NumRows(); i++ {
		for j := range cells {
			c := t.ColumnAt(j)
			cells[j] = c.Values[i].Format(c.Kind)
		}
		bw.WriteString(strings.Join(cells, separator) + "\n")
	}
	return errors.Wrap(bw.Flush(), "write matrix")
}

// decode parses the header block and, when withBody is set, the data rows.
func decode(r io.Reader, withBody bool) ([]string, *table.Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var header, kinds, names []string
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.HasPrefix(line, headerPrefix) {
			h := strings.TrimPrefix(strings.TrimPrefix(line, headerPrefix), " ")
			if strings.HasPrefix(h, kindsMarker+separator) {
				kinds = strings.Split(h, separator)[1:]
				continue
			}
			header = append(header, h)
			continue
		}
		names = dedupeNames(strings.Split(line, separator))
		break
	}
	if err := sc.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "scan matrix")
	}
	if !withBody {
		return header, nil, nil
	}
	if names == nil {
		return nil, nil, perrors.NewValueError("matrixio.Read", "no column header row")
	}

	if kinds != nil && len(kinds) != len(names) {
		return nil, nil, perrors.NewValueError("matrixio.Read",
			"kinds line has "+strconv.Itoa(len(kinds))+" entries for "+strconv.Itoa(len(names))+" columns")
	}

	raw := make([][]string, len(names))
	for sc.Scan() {
		lineNo++
		fields := strings.Split(strings.TrimRight(sc.Text(), "\r"), separator)
		if len(fields) != len(names) {
			return nil, nil, perrors.NewValueError("matrixio.Read",
				"line "+strconv.Itoa(lineNo)+" has "+strconv.Itoa(len(fields))+" fields, want "+strconv.Itoa(len(names)))
		}
		for j, f := range fields {
			raw[j] = append(raw[j], f)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "scan matrix")
	}

	cols := make([]*table.Column, len(names))
	for j, name := range names {
		if kinds == nil {
			cols[j] = InferColumn(name, raw[j])
			continue
		}
		c, err := parseColumn(name, kinds[j], raw[j])
		if err != nil {
			return nil, nil, err
		}
		cols[j] = c
	}
	t, err := table.New(nil, cols...)
	if err != nil {
		return nil, nil, err
	}
	return header, t, nil
}

// dedupeNames mangles repeated names as name.1, name.2, ... the way legacy
// caches were re-read, so that such files still load.
func dedupeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, len(names))
	counts := make(map[string]int)
	for i, n := range names {
		candidate := n
		for seen[candidate] {
			counts[n]++
			candidate = n + "." + strconv.Itoa(counts[n])
		}
		seen[candidate] = true
		out[i] = candidate
	}
	return out
}

// InferColumn builds a column from text cells using the same kind inference as
// Read. Missing tokens become missing cells.
func InferColumn(name string, cells []string) *table.Column {
	kind := inferKind(cells)
	values := make([]table.Value, len(cells))
	for i, s := range cells {
		if missingTokens[s] {
			continue
		}
		switch kind {
		case table.Boolean:
			b, _ := parseBool(s)
			values[i] = table.Bool(b)
		case table.Numeric:
			f, _ := strconv.ParseFloat(s, 64)
			values[i] = table.Float(f)
		default:
			values[i] = table.String(s)
		}
	}
	return table.NewColumn(name, kind, values)
}

// parseColumn builds a column of a declared kind. A cell that does not parse
// as that kind is an error.
func parseColumn(name, kind string, cells []string) (*table.Column, error) {
	values := make([]table.Value, len(cells))
	switch kind {
	case table.Categorical.String():
		for i, s := range cells {
			if s != "" {
				values[i] = table.String(s)
			}
		}
		return table.NewColumn(name, table.Categorical, values), nil
	case table.Boolean.String():
		for i, s := range cells {
			if missingTokens[s] {
				continue
			}
			b, ok := parseBool(s)
			if !ok {
				return nil, perrors.NewValueError("matrixio.Read", "column "+name+" row "+strconv.Itoa(i)+": "+strconv.Quote(s)+" is not boolean")
			}
			values[i] = table.Bool(b)
		}
		return table.NewColumn(name, table.Boolean, values), nil
	case table.Numeric.String():
		for i, s := range cells {
			if missingTokens[s] {
				continue
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, perrors.NewValueError("matrixio.Read", "column "+name+" row "+strconv.Itoa(i)+": "+strconv.Quote(s)+" is not numeric")
			}
			values[i] = table.Float(f)
		}
		return table.NewColumn(name, table.Numeric, values), nil
	}
	return nil, perrors.NewValueError("matrixio.Read", "column "+name+" has unknown kind "+strconv.Quote(kind))
}

func inferKind(cells []string) table.Kind {
	allBool, allNum := true, true
	for _, s := range cells {
		if missingTokens[s] {
			continue
		}
		if _, ok := parseBool(s); !ok {
			allBool = false
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			allNum = false
		}
		if !allBool && !allNum {
			return table.Categorical
		}
	}
	if allBool && !allNum {
		return table.Boolean
	}
	return table.Numeric
}

func parseBool(s string) (bool, bool) {
	switch s {
	case "True", "true", "TRUE":
		return true, true
	case "False", "false", "FALSE":
		return false, true
	}
	return false, false
}
