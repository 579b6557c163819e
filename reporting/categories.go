package reporting

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Check-in code table categories.
const (
	CategoryGuestType    = "tipo_alloggiato"
	CategoryDocumentType = "tipo_documento"
	CategoryMunicipality = "comuni"
	CategoryState        = "stati"
)

// Categories lists every importable code table.
var Categories = []string{CategoryGuestType, CategoryDocumentType, CategoryMunicipality, CategoryState}

// ValidCategory reports whether c names a known code table.
func ValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Choice is one code table row.
type Choice struct {
	Code        string
	Description string
}

// ParseChoices reads a Codice/Descrizione[/Provincia] CSV. The delimiter may
// be ';' or ','. When Provincia is present it is appended to the
// description as "Descrizione - Provincia".
func ParseChoices(r io.Reader) ([]Choice, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = detectDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	codeCol, ok1 := cols["codice"]
	descCol, ok2 := cols["descrizione"]
	if !ok1 || !ok2 {
		return nil, errors.New("csv must have Codice and Descrizione columns")
	}
	provCol, hasProv := cols["provincia"]

	var out []Choice
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		code := column(rec, codeCol)
		desc := column(rec, descCol)
		if code == "" {
			continue
		}
		if hasProv {
			if p := column(rec, provCol); p != "" {
				desc = desc + " - " + p
			}
		}
		out = append(out, Choice{Code: code, Description: desc})
	}
	return out, nil
}

func column(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func detectDelimiter(data []byte) rune {
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	if bytes.Count(first, []byte(";")) > bytes.Count(first, []byte(",")) {
		return ';'
	}
	return ','
}
