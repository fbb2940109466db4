// Package extract turns uploaded documents into plain UTF-8 text files with
// one logical unit per line.
package extract

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedType is returned for file extensions with no extractor.
var ErrUnsupportedType = errors.New("unsupported document type")

// DefaultOutputDir is used when Extractor.OutputDir is empty.
const DefaultOutputDir = "extracted_data"

// Extractor writes extracted text under OutputDir.
type Extractor struct {
	OutputDir string
}

// New returns an Extractor writing to dir.
func New(dir string) *Extractor {
	return &Extractor{OutputDir: dir}
}

// Supported reports whether src has an extension Extract can handle.
func Supported(src string) bool {
	switch strings.ToLower(filepath.Ext(src)) {
	case ".txt", ".md", ".csv", ".pdf":
		return true
	}
	return false
}

// DocumentType returns the lower-case extension of src without the dot.
func DocumentType(src string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(src)), ".")
}

// Extract converts src and returns the path of the written text file,
// <OutputDir>/<basename>.txt. An existing file at that path is replaced.
func (e *Extractor) Extract(ctx context.Context, src string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(src))
	var write func(w io.Writer, src string) error
	switch ext {
	case ".txt", ".md":
		write = copyText
	case ".csv":
		write = csvText
	case ".pdf":
		write = pdfText
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}

	dir := e.OutputDir
	if dir == "" {
		dir = DefaultOutputDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	dst := filepath.Join(dir, base+".txt")

	tmp, err := os.CreateTemp(dir, base+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := write(bw, src); err != nil {
		tmp.Close()
		return "", fmt.Errorf("extract %s: %w", filepath.Base(src), err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("write %s: %w", dst, err)
	}
	return dst, nil
}

func copyText(w io.Writer, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func csvText(w io.Writer, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, strings.Join(rec, ", ")+"\n"); err != nil {
			return err
		}
	}
}

func pdfText(w io.Writer, src string) error {
	f, r, err := pdf.Open(src)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	text, err := r.GetPlainText()
	if err != nil {
		return fmt.Errorf("read pdf text: %w", err)
	}
	_, err = io.Copy(w, text)
	return err
}
