// Package catalog provides a lookup table of known Xbox 360 content types
// and title IDs, for tools that want to print a human-readable label next
// to an xcontent.Header's raw numeric fields.
package catalog

import (
	_ "embed"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
)

// ContentTypeInfo is one row of the embedded content-type catalog.
type ContentTypeInfo struct {
	Value uint32 `csv:"value_hex"`
	Name  string `csv:"name"`
}

// TitleInfo is one row of the embedded title catalog.
type TitleInfo struct {
	TitleID uint32 `csv:"title_id_hex"`
	Name    string `csv:"name"`
	Slug    string `csv:"slug"`
}

//go:embed content_types.csv
var contentTypesRawCSV string

//go:embed titles.csv
var titlesRawCSV string

var contentTypesByValue map[uint32]ContentTypeInfo
var titlesByID map[uint32]TitleInfo

func parseHex32(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), err
}

func init() {
	contentTypesByValue = make(map[uint32]ContentTypeInfo)
	err := gocsv.UnmarshalToCallback(
		strings.NewReader(contentTypesRawCSV),
		func(row struct {
			ValueHex string `csv:"value_hex"`
			Name     string `csv:"name"`
		}) error {
			value, err := parseHex32(row.ValueHex)
			if err != nil {
				return fmt.Errorf("bad value_hex %q: %w", row.ValueHex, err)
			}
			contentTypesByValue[value] = ContentTypeInfo{Value: value, Name: row.Name}
			return nil
		},
	)
	if err != nil && err != io.EOF {
		panic(err)
	}

	titlesByID = make(map[uint32]TitleInfo)
	err = gocsv.UnmarshalToCallback(
		strings.NewReader(titlesRawCSV),
		func(row struct {
			TitleIDHex string `csv:"title_id_hex"`
			Name       string `csv:"name"`
			Slug       string `csv:"slug"`
		}) error {
			id, err := parseHex32(row.TitleIDHex)
			if err != nil {
				return fmt.Errorf("bad title_id_hex %q: %w", row.TitleIDHex, err)
			}
			titlesByID[id] = TitleInfo{TitleID: id, Name: row.Name, Slug: row.Slug}
			return nil
		},
	)
	if err != nil && err != io.EOF {
		panic(err)
	}
}

// ContentTypeName returns the human-readable name for a content_type value,
// or ok=false if it isn't in the catalog.
func ContentTypeName(value uint32) (string, bool) {
	info, ok := contentTypesByValue[value]
	return info.Name, ok
}

// TitleName returns the human-readable name for a title_id value, or
// ok=false if it isn't in the catalog.
func TitleName(titleID uint32) (string, bool) {
	info, ok := titlesByID[titleID]
	return info.Name, ok
}
