package labchange

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

// ComponentMap maps a lab panel code to the component whose previous result
// is compared against the current one.
type ComponentMap map[string]string

// ReadComponentMap parses whitespace-separated "panel component" lines.
// Blank lines and lines starting with "#" are ignored.
func ReadComponentMap(r io.Reader) (ComponentMap, error) {
	m := make(ComponentMap)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, errors.Newf("component map line %d: want panel and component, got %q", line, text)
		}
		m[fields[0]] = fields[1]
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read component map")
	}
	return m, nil
}

// LoadComponentMap reads a component map file.
func LoadComponentMap(path string) (ComponentMap, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError(path)
		}
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return ReadComponentMap(f)
}

// PreviousMeasurement returns the raw-matrix column holding the last result
// of the panel's component in the 14 days before the order.
func (m ComponentMap) PreviousMeasurement(panel string) (string, error) {
	component, ok := m[panel]
	if !ok {
		return "", errors.NewValidationError("lab", "no component mapped for panel", panel)
	}
	return component + ".-14_0.last", nil
}
