package dat

import (
	"bufio"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed specs
var specFS embed.FS

// Companion-entry suffixes on decoded metadata records.
const (
	EnumNameSuffix = "__name"
	ISODateSuffix  = "__iso"
)

// Reserved attribute keys written alongside decoded fields.
const (
	AttrDatNBytes    = "_dat_nbytes"
	AttrTruncated    = "_truncated"
	AttrToolVersion  = "_fibarc_version"
	AttrConversionID = "_conversion_id"
)

// Field is one entry of a schema's layout table.
type Field struct {
	Name   string
	DType  DType
	Offset int
	Shape  []int // nil for scalars
	Kind   Kind
	Enum   *EnumTable // non-nil iff Kind == KindEnum
}

// Count returns the number of elements the field holds.
func (f *Field) Count() int {
	n := 1
	for _, d := range f.Shape {
		n *= d
	}
	return n
}

// NBytes returns the field's total width in the header.
func (f *Field) NBytes() int { return f.Count() * f.DType.Size }

// EnumTable maps numeric codes to symbolic names.
type EnumTable struct {
	names map[int64]string
	codes map[string]int64
}

// Name resolves a code to its symbolic name.
// Unknown codes resolve to "unknown": new codes appear as the instrument
// software evolves and must not block conversion.
func (t *EnumTable) Name(code int64) string {
	if n, ok := t.names[code]; ok {
		return n
	}
	return "unknown"
}

// Code resolves a symbolic name back to its numeric code.
func (t *EnumTable) Code(name string) (int64, bool) {
	c, ok := t.codes[name]
	return c, ok
}

// Schema is the complete layout for one file version: an offset-ordered
// field table plus the format constants shared by all versions.
type Schema struct {
	Version   uint16
	Fields    []Field
	HeaderLen int

	byName map[string]*Field
}

// Field looks up a field descriptor by name.
func (s *Schema) Field(name string) (*Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// formatConstants mirrors specs/misc.toml.
type formatConstants struct {
	ByteEndianness string   `toml:"byte_endianness"`
	ArrayOrder     string   `toml:"array_order"`
	DataOffset     int      `toml:"data_offset"`
	MagicNumber    uint32   `toml:"magic_number"`
	DateFormat     string   `toml:"date_format"`
	DateFields     []string `toml:"date_fields"`
	ChannelFields  []string `toml:"channel_fields"`
}

type registry struct {
	consts  formatConstants
	mini    *Schema // version-independent magic+version schema
	schemas map[uint16]*Schema
	dates   map[string]bool
}

var defaultRegistry = mustLoadRegistry()

// HeaderLength is the fixed header size shared by every known version.
func HeaderLength() int { return defaultRegistry.consts.DataOffset }

// MagicNumber is the expected value of the FileMagicNum field.
func MagicNumber() uint32 { return defaultRegistry.consts.MagicNumber }

// DateFormat is the Go reference layout of the format's date strings.
func DateFormat() string { return defaultRegistry.consts.DateFormat }

// ChannelFields lists the header flag fields naming the analogue inputs,
// in base-1 channel order.
func ChannelFields() []string {
	return append([]string(nil), defaultRegistry.consts.ChannelFields...)
}

// Versions lists the registered file versions in ascending order.
func Versions() []uint16 {
	out := make([]uint16, 0, len(defaultRegistry.schemas))
	for v := range defaultRegistry.schemas {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve returns the schema for a version tag.
func Resolve(version uint16) (*Schema, error) {
	s, ok := defaultRegistry.schemas[version]
	if !ok {
		return nil, &UnsupportedVersionError{Version: version}
	}
	return s, nil
}

// miniSchema is the version-independent schema covering only the magic
// number and version tag, used to resolve the full schema.
func miniSchema() *Schema { return defaultRegistry.mini }

func mustLoadRegistry() *registry {
	r, err := loadRegistry(specFS)
	if err != nil {
		// Embedded spec tables ship with the binary; failing to load them
		// is a build defect, not a runtime condition.
		panic(err)
	}
	return r
}

func loadRegistry(fsys fs.FS) (*registry, error) {
	r := &registry{
		schemas: make(map[uint16]*Schema),
		dates:   make(map[string]bool),
	}

	misc, err := fs.ReadFile(fsys, "specs/misc.toml")
	if err != nil {
		return nil, fmt.Errorf("dat: read misc.toml: %w", err)
	}
	if err := toml.Unmarshal(misc, &r.consts); err != nil {
		return nil, fmt.Errorf("dat: parse misc.toml: %w", err)
	}
	if r.consts.DataOffset <= 0 {
		return nil, fmt.Errorf("dat: misc.toml: data_offset must be positive")
	}
	for _, name := range r.consts.DateFields {
		r.dates[name] = true
	}

	enums, err := loadEnums(fsys)
	if err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(fsys, "specs/specs")
	if err != nil {
		return nil, fmt.Errorf("dat: read spec dir: %w", err)
	}
	for _, e := range entries {
		stem := strings.TrimSuffix(e.Name(), ".tsv")
		ver, err := strconv.ParseUint(strings.TrimPrefix(stem, "v"), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("dat: bad spec file name %q", e.Name())
		}
		s, err := r.loadSchema(fsys, path.Join("specs/specs", e.Name()), uint16(ver), enums)
		if err != nil {
			return nil, err
		}
		if ver == 0 {
			r.mini = s
		} else {
			r.schemas[uint16(ver)] = s
		}
	}
	if r.mini == nil {
		return nil, fmt.Errorf("dat: missing v0 mini-schema")
	}
	if len(r.schemas) == 0 {
		return nil, fmt.Errorf("dat: no versioned schemas found")
	}
	return r, nil
}

func loadEnums(fsys fs.FS) (map[string]*EnumTable, error) {
	entries, err := fs.ReadDir(fsys, "specs/enums")
	if err != nil {
		return nil, fmt.Errorf("dat: read enum dir: %w", err)
	}
	out := make(map[string]*EnumTable, len(entries))
	for _, e := range entries {
		field := strings.TrimSuffix(e.Name(), ".tsv")
		f, err := fsys.Open(path.Join("specs/enums", e.Name()))
		if err != nil {
			return nil, err
		}
		tab := &EnumTable{names: make(map[int64]string), codes: make(map[string]int64)}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimRight(sc.Text(), "\r\n")
			if line == "" {
				continue
			}
			code, name, ok := strings.Cut(line, "\t")
			if !ok {
				f.Close()
				return nil, fmt.Errorf("dat: enum %s: bad line %q", field, line)
			}
			v, err := strconv.ParseInt(strings.TrimSpace(code), 10, 64)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("dat: enum %s: bad code %q", field, code)
			}
			tab.names[v] = strings.TrimSpace(name)
			tab.codes[strings.TrimSpace(name)] = v
		}
		f.Close()
		if err := sc.Err(); err != nil {
			return nil, err
		}
		out[field] = tab
	}
	return out, nil
}

func (r *registry) loadSchema(fsys fs.FS, p string, version uint16, enums map[string]*EnumTable) (*Schema, error) {
	f, err := fsys.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := &Schema{
		Version:   version,
		HeaderLen: r.consts.DataOffset,
		byName:    make(map[string]*Field),
	}

	sc := bufio.NewScanner(f)
	first := true
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" {
			continue
		}
		if first {
			// Column header row.
			first = false
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) != 4 {
			return nil, fmt.Errorf("dat: %s: want 4 columns, got %d in %q", p, len(cols), line)
		}
		dt, err := parseDType(cols[1])
		if err != nil {
			return nil, fmt.Errorf("dat: %s: field %s: %w", p, cols[0], err)
		}
		off, err := strconv.Atoi(cols[2])
		if err != nil || off < 0 {
			return nil, fmt.Errorf("dat: %s: field %s: bad offset %q", p, cols[0], cols[2])
		}
		shape, err := parseShape(cols[3])
		if err != nil {
			return nil, fmt.Errorf("dat: %s: field %s: %w", p, cols[0], err)
		}

		fld := Field{Name: cols[0], DType: dt, Offset: off, Shape: shape}
		switch {
		case dt.Raw:
			fld.Kind = KindRaw
		case dt.Str && r.dates[fld.Name]:
			fld.Kind = KindDate
		case dt.Str:
			fld.Kind = KindString
		case enums[fld.Name] != nil:
			fld.Kind = KindEnum
			fld.Enum = enums[fld.Name]
		case dt.Float:
			fld.Kind = KindFloat
		default:
			fld.Kind = KindInt
		}

		s.Fields = append(s.Fields, fld)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	sort.Slice(s.Fields, func(i, j int) bool { return s.Fields[i].Offset < s.Fields[j].Offset })

	// Descriptors must not overlap and must lie within the header.
	prevEnd := 0
	prevName := ""
	for i := range s.Fields {
		fld := &s.Fields[i]
		if fld.Offset < prevEnd {
			return nil, fmt.Errorf("dat: %s: field %s at offset %d overlaps %s ending at %d",
				p, fld.Name, fld.Offset, prevName, prevEnd)
		}
		end := fld.Offset + fld.NBytes()
		if end > s.HeaderLen {
			return nil, fmt.Errorf("dat: %s: field %s extends to %d, past header length %d",
				p, fld.Name, end, s.HeaderLen)
		}
		prevEnd = end
		prevName = fld.Name
		s.byName[fld.Name] = fld
	}
	return s, nil
}
