package pipeline

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Layout names every file a run reads or writes.
type Layout interface {
	RawMatrixPath(entity string, rows int) string
	ProcessedMatrixPath(entity string, rows int) string
	DataDir(entity string) string
	ReportDir(entity, algorithm string) string
	ReportPrefix(entity, algorithm string) string
	ModelDumpPath(entity, algorithm string) string
	SummaryPath(entity string) string
	ErrorReportPath(entity, algorithm string) string
}

// Slug replaces runs of whitespace in an entity identifier with "-".
func Slug(entity string) string {
	return strings.Join(strings.Fields(entity), "-")
}

// StandardLayout keeps one directory per entity under {Root}/data.
//
//	{Root}/data/{entity}/{entity}-{MatrixName}-{rows}-episodes-raw.tab
//	{Root}/data/{entity}/{Variant}/{entity}-{MatrixName}-{rows}-episodes-processed.tab
//	{Root}/data/{entity}/{Variant}/{algorithm}/{entity}-{ReportName}-{algorithm}-*.png
//	{Root}/data/{entity}/{Variant}/{entity}-{DumpName}-{algorithm}-model.gob
//
// Variant is empty unless several processing definitions share one raw matrix.
// DumpName may be empty.
type StandardLayout struct {
	Root       string
	MatrixName string
	ReportName string
	Variant    string
	DumpName   string
}

// NewStandardLayout returns a layout with matrix name "matrix" and report
// name "prediction".
func NewStandardLayout(root string) StandardLayout {
	return StandardLayout{Root: root, MatrixName: "matrix", ReportName: "prediction"}
}

func (l StandardLayout) entityDir(entity string) string {
	return filepath.Join(l.Root, "data", Slug(entity))
}

func (l StandardLayout) matrixFile(entity string, rows int, stage string) string {
	return Slug(entity) + "-" + l.MatrixName + "-" + strconv.Itoa(rows) + "-episodes-" + stage + ".tab"
}

// RawMatrixPath is shared by every variant of the entity.
func (l StandardLayout) RawMatrixPath(entity string, rows int) string {
	return filepath.Join(l.entityDir(entity), l.matrixFile(entity, rows, "raw"))
}

func (l StandardLayout) ProcessedMatrixPath(entity string, rows int) string {
	return filepath.Join(l.DataDir(entity), l.matrixFile(entity, rows, "processed"))
}

func (l StandardLayout) DataDir(entity string) string {
	if l.Variant == "" {
		return l.entityDir(entity)
	}
	return filepath.Join(l.entityDir(entity), l.Variant)
}

func (l StandardLayout) ReportDir(entity, algorithm string) string {
	return filepath.Join(l.DataDir(entity), algorithm)
}

func (l StandardLayout) ReportPrefix(entity, algorithm string) string {
	return Slug(entity) + "-" + l.ReportName + "-" + algorithm
}

func (l StandardLayout) ModelDumpPath(entity, algorithm string) string {
	name := Slug(entity) + "-"
	if l.DumpName != "" {
		name += l.DumpName + "-"
	}
	return filepath.Join(l.DataDir(entity), name+algorithm+"-model.gob")
}

func (l StandardLayout) SummaryPath(entity string) string {
	return filepath.Join(l.DataDir(entity), Slug(entity)+"-"+l.ReportName+"-report.tab")
}

func (l StandardLayout) ErrorReportPath(entity, algorithm string) string {
	return filepath.Join(l.ReportDir(entity, algorithm), Slug(entity)+"-"+l.ReportName+"-report.tab")
}
