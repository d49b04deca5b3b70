package table

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
	"gopkg.in/guregu/null.v3"
)

// ErrMissingColumn is returned when a schema names a column that is not
// present in the file header.
var ErrMissingColumn = errors.New("missing column")

// Encoding is the character encoding of a source file.
type Encoding string

const (
	UTF8        Encoding = "utf-8"
	Windows1252 Encoding = "windows-1252"
)

// Options controls how source files are decoded.
type Options struct {
	Encoding Encoding
}

// csvFile is the shared part of the medication and admission readers: an
// open file, its header index and the current row number.
type csvFile struct {
	path   string
	file   *os.File
	csv    *csv.Reader
	colIdx map[string]int
	rowNum int64
}

func openCSV(path string, opts Options) (*csvFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	bufReader := bufio.NewReaderSize(file, 256*1024)

	// Skip UTF-8 BOM if present
	bom, err := bufReader.Peek(3)
	if err == nil && len(bom) >= 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		bufReader.Discard(3)
	}

	var src io.Reader = bufReader
	switch opts.Encoding {
	case "", UTF8:
	case Windows1252:
		src = transform.NewReader(bufReader, charmap.Windows1252.NewDecoder())
	default:
		file.Close()
		return nil, fmt.Errorf("unsupported encoding %q", opts.Encoding)
	}

	reader := csv.NewReader(src)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	f := &csvFile{
		path:   path,
		file:   file,
		csv:    reader,
		colIdx: make(map[string]int),
	}

	header, err := reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	f.rowNum++
	for i, h := range header {
		f.colIdx[strings.TrimSpace(h)] = i
	}

	return f, nil
}

func (f *csvFile) column(name string) (int, error) {
	i, ok := f.colIdx[name]
	if !ok {
		return -1, fmt.Errorf("%s: %w %q", f.path, ErrMissingColumn, name)
	}
	return i, nil
}

// next returns the next non-empty data row.
func (f *csvFile) next() ([]string, error) {
	for {
		row, err := f.csv.Read()
		if err != nil {
			return nil, err
		}
		f.rowNum++

		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		return row, nil
	}
}

// RowNum returns the current row number (1-based, header included).
func (f *csvFile) RowNum() int64 {
	return f.rowNum
}

func (f *csvFile) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

// MedicationReader streams MedicationRecords out of one source file.
type MedicationReader struct {
	*csvFile
	schema Schema

	rowIdx   int
	subjIdx  int
	hadmIdx  int
	labelIdx int
	timeIdx  []int // parallel to schema.TimeColumns
}

// NewMedicationReader opens path and resolves the columns named by schema.
func NewMedicationReader(path string, schema Schema, opts Options) (*MedicationReader, error) {
	f, err := openCSV(path, opts)
	if err != nil {
		return nil, err
	}

	r := &MedicationReader{csvFile: f, schema: schema}
	cols := []struct {
		dst  *int
		name string
	}{
		{&r.rowIdx, ColRowID},
		{&r.subjIdx, ColSubjectID},
		{&r.hadmIdx, ColHadmID},
		{&r.labelIdx, schema.LabelColumn},
	}
	for _, c := range cols {
		if *c.dst, err = f.column(c.name); err != nil {
			f.Close()
			return nil, err
		}
	}
	for _, tc := range schema.TimeColumns {
		i, err := f.column(tc.Column)
		if err != nil {
			f.Close()
			return nil, err
		}
		r.timeIdx = append(r.timeIdx, i)
	}

	return r, nil
}

// Next returns the next record, or io.EOF when the file is exhausted.
func (r *MedicationReader) Next() (MedicationRecord, error) {
	row, err := r.next()
	if err != nil {
		return MedicationRecord{}, err
	}

	rec := MedicationRecord{
		AdmissionID: optID(row, r.hadmIdx),
		DrugLabel:   optStr(row, r.labelIdx),
		Source:      r.schema.Name,
	}

	var ok bool
	if rec.RecordID, ok = parseID(strAt(row, r.rowIdx)); !ok {
		return MedicationRecord{}, fmt.Errorf("%s row %d: invalid %s %q", r.schema.Name, r.rowNum, ColRowID, strAt(row, r.rowIdx))
	}
	if rec.SubjectID, ok = parseID(strAt(row, r.subjIdx)); !ok {
		return MedicationRecord{}, fmt.Errorf("%s row %d: invalid %s %q", r.schema.Name, r.rowNum, ColSubjectID, strAt(row, r.subjIdx))
	}
	for i, tc := range r.schema.TimeColumns {
		rec.setTime(tc.Field, optStr(row, r.timeIdx[i]))
	}

	return rec, nil
}

// ReadMedications reads a whole source file into memory.
func ReadMedications(path string, schema Schema, opts Options) (*MedicationTable, error) {
	r, err := NewMedicationReader(path, schema, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	t := &MedicationTable{Schema: schema}
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// AdmissionReader streams AdmissionRecords out of the admissions file.
type AdmissionReader struct {
	*csvFile

	hadmIdx  int
	subjIdx  int
	admitIdx int
	deathIdx int
}

// NewAdmissionReader opens an admissions file.
func NewAdmissionReader(path string, opts Options) (*AdmissionReader, error) {
	f, err := openCSV(path, opts)
	if err != nil {
		return nil, err
	}

	r := &AdmissionReader{csvFile: f}
	cols := []struct {
		dst  *int
		name string
	}{
		{&r.hadmIdx, ColHadmID},
		{&r.subjIdx, ColSubjectID},
		{&r.admitIdx, ColAdmitTime},
		{&r.deathIdx, ColDeathTime},
	}
	for _, c := range cols {
		if *c.dst, err = f.column(c.name); err != nil {
			f.Close()
			return nil, err
		}
	}
	return r, nil
}

// Next returns the next admission, or io.EOF when the file is exhausted.
func (r *AdmissionReader) Next() (AdmissionRecord, error) {
	row, err := r.next()
	if err != nil {
		return AdmissionRecord{}, err
	}

	rec := AdmissionRecord{
		AdmitTime: strAt(row, r.admitIdx),
		DeathTime: optStr(row, r.deathIdx),
	}

	var ok bool
	if rec.AdmissionID, ok = parseID(strAt(row, r.hadmIdx)); !ok {
		return AdmissionRecord{}, fmt.Errorf("admissions row %d: invalid %s %q", r.rowNum, ColHadmID, strAt(row, r.hadmIdx))
	}
	if rec.SubjectID, ok = parseID(strAt(row, r.subjIdx)); !ok {
		return AdmissionRecord{}, fmt.Errorf("admissions row %d: invalid %s %q", r.rowNum, ColSubjectID, strAt(row, r.subjIdx))
	}
	return rec, nil
}

// ReadAdmissions reads a whole admissions file into memory.
func ReadAdmissions(path string, opts Options) ([]AdmissionRecord, error) {
	r, err := NewAdmissionReader(path, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []AdmissionRecord
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Cell helpers. Strings are sanitized to valid UTF-8 since some exports
// are Windows-1252 even when declared otherwise.

func strAt(row []string, i int) string {
	if i >= 0 && i < len(row) {
		return strings.ToValidUTF8(strings.TrimSpace(row[i]), "\uFFFD")
	}
	return ""
}

func optStr(row []string, i int) null.String {
	s := strAt(row, i)
	return null.NewString(s, s != "")
}

func optID(row []string, i int) null.Int {
	id, ok := parseID(strAt(row, i))
	return null.NewInt(id, ok)
}

// parseID accepts plain integers and integral floats ("123.0"), which is
// how spreadsheet exports often render identifier columns.
func parseID(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}
