package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/spherical/bulletin-import/internal/domain"
)

var bomUTF8 = []byte{0xEF, 0xBB, 0xBF}

// CSVSource reads a delimited export. Files that are not valid UTF-8 are
// decoded as Windows-1252, the encoding of spreadsheet exports on French
// Windows installs. The delimiter is ';' or ',', whichever the header uses
// more.
type CSVSource struct {
	Path string
}

// Rows implements domain.RowSource.
func (s *CSVSource) Rows() ([]domain.Row, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, domain.SourceError(fmt.Sprintf("cannot read %s", s.Path), err)
	}

	decoded, err := decode(data)
	if err != nil {
		return nil, domain.SourceError(fmt.Sprintf("cannot decode %s", s.Path), err)
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.Comma = sniffDelimiter(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	grid, err := reader.ReadAll()
	if err != nil {
		return nil, domain.SourceError(fmt.Sprintf("cannot parse %s", s.Path), err)
	}
	return rowsFromGrid(grid), nil
}

func decode(data []byte) ([]byte, error) {
	if bytes.HasPrefix(data, bomUTF8) {
		return data[len(bomUTF8):], nil
	}
	if utf8.Valid(data) {
		return data, nil
	}
	return charmap.Windows1252.NewDecoder().Bytes(data)
}

func sniffDelimiter(data []byte) rune {
	header := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		header = data[:i]
	}
	if bytes.Count(header, []byte{';'}) > bytes.Count(header, []byte{','}) {
		return ';'
	}
	return ','
}
