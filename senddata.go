package serdbg

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// FieldKind is the type of one send template field.
type FieldKind int

const (
	// FieldFixed is a read-only byte
	FieldFixed FieldKind = iota
	// FieldInput is an editable byte
	FieldInput
	// FieldInput16 is an editable little endian 16-bit value
	FieldInput16
	// FieldInput16BE is an editable big endian 16-bit value
	FieldInput16BE
	// FieldSelect is a byte chosen from named options
	FieldSelect
	// FieldSelect16 is a little endian 16-bit value chosen from named options
	FieldSelect16
)

// Option is one named value of a select field.
type Option struct {
	Name  string
	Value uint16
}

// Field is one element of a field template.
type Field struct {
	Kind    FieldKind
	Value   uint16
	Options []Option
}

// Fixed returns a read-only byte field.
func Fixed(v byte) Field { return Field{Kind: FieldFixed, Value: uint16(v)} }

// Input returns an editable byte field.
func Input(v byte) Field { return Field{Kind: FieldInput, Value: uint16(v)} }

// Input16 returns an editable little endian 16-bit field.
func Input16(v uint16) Field { return Field{Kind: FieldInput16, Value: v} }

// Input16BE returns an editable big endian 16-bit field.
func Input16BE(v uint16) Field { return Field{Kind: FieldInput16BE, Value: v} }

// Select returns a byte field restricted to opts. The first option is the
// initial value.
func Select(opts ...Option) Field {
	f := Field{Kind: FieldSelect, Options: opts}
	if len(opts) > 0 {
		f.Value = opts[0].Value & 0xFF
	}
	return f
}

// Select16 is the 16-bit little endian form of Select.
func Select16(opts ...Option) Field {
	f := Field{Kind: FieldSelect16, Options: opts}
	if len(opts) > 0 {
		f.Value = opts[0].Value
	}
	return f
}

// Size returns the encoded size of the field in bytes.
func (f Field) Size() int {
	switch f.Kind {
	case FieldInput16, FieldInput16BE, FieldSelect16:
		return 2
	default:
		return 1
	}
}

func (f Field) bigEndian() bool {
	return f.Kind == FieldInput16BE
}

func (f Field) encode(dst []byte) {
	if f.Size() == 1 {
		dst[0] = byte(f.Value)
		return
	}
	if f.bigEndian() {
		dst[0], dst[1] = byte(f.Value>>8), byte(f.Value)
	} else {
		dst[0], dst[1] = byte(f.Value), byte(f.Value>>8)
	}
}

func (f *Field) decode(src []byte) {
	if f.Size() == 1 {
		f.Value = uint16(src[0])
		return
	}
	if f.bigEndian() {
		f.Value = uint16(src[0])<<8 | uint16(src[1])
	} else {
		f.Value = uint16(src[1])<<8 | uint16(src[0])
	}
}

// Selected returns the option name matching the field value, or "" when the
// field is not a select or holds a value outside its options.
func (f Field) Selected() string {
	for _, o := range f.Options {
		if o.Value == f.Value {
			return o.Name
		}
	}
	return ""
}

// Text returns the field value as an editor would show it: the option name
// for selects and zero-padded hex otherwise.
func (f Field) Text() string {
	switch f.Kind {
	case FieldSelect, FieldSelect16:
		return f.Selected()
	default:
		return fmt.Sprintf("%0*X", f.Size()*2, f.Value)
	}
}

// Template is the declared shape of a send buffer: either raw bytes or a
// list of typed fields.
type Template struct {
	raw    []byte
	fields []Field
}

// RawTemplate returns a template holding literal bytes.
func RawTemplate(b []byte) Template {
	return Template{raw: append([]byte(nil), b...)}
}

// FieldTemplate returns a template made of typed fields.
func FieldTemplate(fields ...Field) Template {
	return Template{fields: append([]Field(nil), fields...)}
}

// Len returns the number of bytes the template encodes to.
func (t Template) Len() int {
	if t.fields == nil {
		return len(t.raw)
	}
	n := 0
	for _, f := range t.fields {
		n += f.Size()
	}
	return n
}

// SendData is a resolved send buffer. The byte buffer is the source of truth
// for transmission; fields are kept in sync with it.
type SendData struct {
	id      string
	fcc     FCC
	fields  []Field
	offsets []int
	buf     []byte
}

// NewSendData resolves tmpl into a buffer of at least size bytes (and long
// enough to hold the checksum) and applies fcc.
func NewSendData(id string, tmpl Template, size int, fcc FCC) (*SendData, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: send data id", ErrConfigRequired)
	}
	for i, f := range tmpl.fields {
		if (f.Kind == FieldSelect || f.Kind == FieldSelect16) && len(f.Options) == 0 {
			return nil, fmt.Errorf("%w: send data %q field %d has no options", ErrConfigRequired, id, i)
		}
	}

	n := max(tmpl.Len(), size, fcc.Pos+1)
	sd := &SendData{
		id:     id,
		fcc:    fcc,
		fields: append([]Field(nil), tmpl.fields...),
		buf:    make([]byte, n),
	}
	if tmpl.fields == nil {
		copy(sd.buf, tmpl.raw)
	} else {
		off := 0
		sd.offsets = make([]int, len(sd.fields))
		for i, f := range sd.fields {
			sd.offsets[i] = off
			f.encode(sd.buf[off:])
			off += f.Size()
		}
	}
	sd.buf = fcc.Apply(sd.buf)
	sd.syncFields()
	return sd, nil
}

// ID returns the send data id.
func (sd *SendData) ID() string {
	return sd.id
}

// FCC returns the checksum definition.
func (sd *SendData) FCC() FCC {
	return sd.fcc
}

// Bytes returns a copy of the current buffer.
func (sd *SendData) Bytes() []byte {
	return append([]byte(nil), sd.buf...)
}

// Size returns the buffer length.
func (sd *SendData) Size() int {
	return len(sd.buf)
}

// Fields returns a copy of the template fields with their current values.
// Raw templates have no fields.
func (sd *SendData) Fields() []Field {
	return append([]Field(nil), sd.fields...)
}

// FieldOffset returns the byte offset of field idx.
func (sd *SendData) FieldOffset(idx int) (int, error) {
	if idx < 0 || idx >= len(sd.fields) {
		return 0, fmt.Errorf("%w: field %d of %q", ErrFieldIndex, idx, sd.id)
	}
	return sd.offsets[idx], nil
}

// SetByte overwrites the byte at pos and refreshes the checksum.
func (sd *SendData) SetByte(pos int, v byte) error {
	if pos < 0 || pos >= len(sd.buf) {
		return fmt.Errorf("%w: byte %d of %q", ErrFieldIndex, pos, sd.id)
	}
	sd.buf[pos] = v
	sd.buf = sd.fcc.Apply(sd.buf)
	sd.syncFields()
	return nil
}

// SetField sets field idx from its text form: hex digits for inputs and an
// option name for selects. Text that does not parse becomes zero for inputs
// and the first option for selects.
func (sd *SendData) SetField(idx int, text string) error {
	if idx < 0 || idx >= len(sd.fields) {
		return fmt.Errorf("%w: field %d of %q", ErrFieldIndex, idx, sd.id)
	}
	f := &sd.fields[idx]
	switch f.Kind {
	case FieldFixed:
		return fmt.Errorf("%w: field %d of %q", ErrFieldReadOnly, idx, sd.id)
	case FieldSelect, FieldSelect16:
		f.Value = f.Options[0].Value
		for _, o := range f.Options {
			if o.Name == text {
				f.Value = o.Value
				break
			}
		}
		if f.Kind == FieldSelect {
			f.Value &= 0xFF
		}
	default:
		f.Value = parseFieldHex(text, f.Size())
	}
	f.encode(sd.buf[sd.offsets[idx]:])
	sd.buf = sd.fcc.Apply(sd.buf)
	sd.syncFields()
	return nil
}

func parseFieldHex(text string, size int) uint16 {
	text = strings.TrimSpace(text)
	if len(text) > size*2 || text == "" {
		return 0
	}
	text = strings.Repeat("0", size*2-len(text)) + text
	b, err := hex.DecodeString(text)
	if err != nil {
		return 0
	}
	if size == 1 {
		return uint16(b[0])
	}
	return uint16(b[0])<<8 | uint16(b[1])
}

func (sd *SendData) syncFields() {
	for i := range sd.fields {
		sd.fields[i].decode(sd.buf[sd.offsets[i]:])
	}
}

// SendTable holds send data in declaration order.
type SendTable struct {
	order []*SendData
	byID  map[string]*SendData
}

// NewSendTable indexes sends by id. Duplicate ids are rejected.
func NewSendTable(sends ...*SendData) (*SendTable, error) {
	t := &SendTable{byID: make(map[string]*SendData, len(sends))}
	for _, sd := range sends {
		if _, ok := t.byID[sd.id]; ok {
			return nil, fmt.Errorf("%w: send data %q", ErrDuplicateID, sd.id)
		}
		t.byID[sd.id] = sd
		t.order = append(t.order, sd)
	}
	return t, nil
}

// Get returns the send data registered as id.
func (t *SendTable) Get(id string) (*SendData, bool) {
	sd, ok := t.byID[id]
	return sd, ok
}

// All returns the send data in declaration order.
func (t *SendTable) All() []*SendData {
	return t.order
}
