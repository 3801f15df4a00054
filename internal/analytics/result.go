package analytics

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Row is one report row: column name to value. Rows straight from the API
// are keyed by generic names (Column0, Column1, ...).
type Row map[string]string

// PageResult is one decoded page of a report run
type PageResult struct {
	Rows       []Row
	IsFinished bool
	Token      string

	// ColumnNames maps generic column names to real headings. The API only
	// includes the schema on the first page, so this is usually empty after.
	ColumnNames map[string]string

	// Raw is the response body the page was decoded from
	Raw []byte
}

// ErrNoQueryResult means the response contained no QueryResult document
var ErrNoQueryResult = errors.New("response contains no QueryResult")

// envelope is the JSON wrapper: the XML report is the single "anies" entry
type envelope struct {
	Anies []string `json:"anies"`
}

// errorEnvelope is the API's JSON error body
type errorEnvelope struct {
	ErrorsExist bool `json:"errorsExist"`
	ErrorList   struct {
		Error []struct {
			ErrorCode    string `json:"errorCode"`
			ErrorMessage string `json:"errorMessage"`
		} `json:"error"`
	} `json:"errorList"`
}

// Element names below carry no namespace so they match whatever prefix the
// report uses (xsd:, saw-sql:, the rowset default namespace).
type queryResult struct {
	ResumptionToken string `xml:"ResumptionToken"`
	IsFinished      string `xml:"IsFinished"`
	Rowset          rowset `xml:"ResultXml>rowset"`
}

type rowset struct {
	Schema *xsdSchema `xml:"schema"`
	Rows   []xmlRow   `xml:"Row"`
}

type xsdSchema struct {
	Elements []xsdElement `xml:"complexType>sequence>element"`
}

type xsdElement struct {
	Name    string `xml:"name,attr"`
	Heading string `xml:"columnHeading,attr"`
}

type xmlRow struct {
	Columns []xmlColumn `xml:",any"`
}

type xmlColumn struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// DecodePage decodes a response body into a PageResult. The body is either
// the JSON envelope or the report XML itself.
func DecodePage(body []byte) (*PageResult, error) {
	doc := bytes.TrimSpace(body)

	if len(doc) > 0 && doc[0] == '{' {
		var env envelope
		if err := json.Unmarshal(doc, &env); err != nil {
			return nil, fmt.Errorf("failed to decode JSON envelope: %w", err)
		}
		if len(env.Anies) == 0 {
			return nil, fmt.Errorf("%w: empty anies list", ErrNoQueryResult)
		}
		doc = []byte(env.Anies[0])
	}

	qr, err := decodeQueryResult(doc)
	if err != nil {
		return nil, err
	}

	finished, err := parseFinished(qr.IsFinished)
	if err != nil {
		return nil, err
	}

	page := &PageResult{
		Rows:        make([]Row, 0, len(qr.Rowset.Rows)),
		IsFinished:  finished,
		Token:       strings.TrimSpace(qr.ResumptionToken),
		ColumnNames: columnNamesFrom(qr.Rowset.Schema),
		Raw:         body,
	}

	for _, r := range qr.Rowset.Rows {
		row := make(Row, len(r.Columns))
		for _, col := range r.Columns {
			row[col.XMLName.Local] = col.Value
		}
		page.Rows = append(page.Rows, row)
	}

	return page, nil
}

// decodeQueryResult finds the QueryResult element wherever it sits
// (top level, or wrapped in <report>) and decodes it.
func decodeQueryResult(doc []byte) (*queryResult, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, ErrNoQueryResult
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse report XML: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "QueryResult" {
			continue
		}

		var qr queryResult
		if err := dec.DecodeElement(&qr, &start); err != nil {
			return nil, fmt.Errorf("failed to decode QueryResult: %w", err)
		}
		return &qr, nil
	}
}

func parseFinished(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("unexpected IsFinished value %q", s)
	}
}

// columnNamesFrom maps generic column names to real headings from the
// embedded schema. A missing schema is normal for pages after the first
// and yields an empty map.
func columnNamesFrom(schema *xsdSchema) map[string]string {
	names := make(map[string]string)
	if schema == nil {
		return names
	}

	for _, el := range schema.Elements {
		if el.Name == "" || el.Heading == "" {
			continue
		}
		names[el.Name] = el.Heading
	}
	return names
}

// apiErrorMessage extracts the error messages from an API error body, if any
func apiErrorMessage(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}

	msgs := make([]string, 0, len(env.ErrorList.Error))
	for _, e := range env.ErrorList.Error {
		if e.ErrorCode != "" {
			msgs = append(msgs, e.ErrorCode+": "+e.ErrorMessage)
		} else {
			msgs = append(msgs, e.ErrorMessage)
		}
	}
	return strings.Join(msgs, "; ")
}
