// Package tables reads the YAML file that declares a session's send data,
// autosend scripts and autoresponse patterns.
//
// A table file has three sections:
//
//	send:
//	  - id: poll
//	    raw: "01 02 03"
//	    size: 4
//	    fcc: {pos: 3, begin: 0, end: 3}
//	  - id: ack
//	    fields:
//	      - fixed: "06"
//	      - input: "00"
//	      - select: [{name: "on", value: "01"}, {name: "off", value: "00"}]
//	autosend:
//	  - id: cycle
//	    enabled: true
//	    steps: ["send poll", "wait 100ms", "jump 0"]
//	autoresp:
//	  - id: status
//	    enabled: true
//	    pattern: "01 ** 03"
//	    send: ack
//	    copy: [{send: ack, from: 1, to: 1, len: 1}]
//	    log: [{label: seq, offset: 1}]
package tables

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jaracil/serdbg"
	"gopkg.in/yaml.v3"
)

// File is the decoded form of a table file.
type File struct {
	Send     []SendDoc    `yaml:"send,omitempty"`
	Autosend []ScriptDoc  `yaml:"autosend,omitempty"`
	Autoresp []PatternDoc `yaml:"autoresp,omitempty"`
}

// SendDoc declares one send data buffer. Exactly one of Raw and Fields is set.
type SendDoc struct {
	ID     string     `yaml:"id"`
	Raw    string     `yaml:"raw,omitempty"`
	Fields []FieldDoc `yaml:"fields,omitempty"`
	Size   int        `yaml:"size,omitempty"`
	FCC    *FCCDoc    `yaml:"fcc,omitempty"`
}

// FCCDoc declares the checksum of a send buffer. End is exclusive.
type FCCDoc struct {
	Pos    int    `yaml:"pos"`
	Begin  int    `yaml:"begin"`
	End    int    `yaml:"end"`
	Policy string `yaml:"policy,omitempty"`
}

// FieldDoc declares one template field. Exactly one key is set; values are
// hex strings.
type FieldDoc struct {
	Fixed     string      `yaml:"fixed,omitempty"`
	Input     string      `yaml:"input,omitempty"`
	Input16   string      `yaml:"input16,omitempty"`
	Input16BE string      `yaml:"input16be,omitempty"`
	Select    []OptionDoc `yaml:"select,omitempty"`
	Select16  []OptionDoc `yaml:"select16,omitempty"`
}

// OptionDoc is one named value of a select field.
type OptionDoc struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// ScriptDoc declares one autosend script.
type ScriptDoc struct {
	ID      string   `yaml:"id"`
	Enabled bool     `yaml:"enabled,omitempty"`
	Steps   []string `yaml:"steps"`
}

// PatternDoc declares one autoresponse outcome.
type PatternDoc struct {
	ID      string     `yaml:"id"`
	Enabled bool       `yaml:"enabled,omitempty"`
	Pattern string     `yaml:"pattern"`
	Send    string     `yaml:"send,omitempty"`
	Copy    []CopyDoc  `yaml:"copy,omitempty"`
	Log     []LabelDoc `yaml:"log,omitempty"`
}

// CopyDoc declares a copy of frame bytes into a send buffer.
type CopyDoc struct {
	Send string `yaml:"send"`
	From int    `yaml:"from"`
	To   int    `yaml:"to"`
	Len  int    `yaml:"len"`
}

// LabelDoc declares a frame field shown in the log detail.
type LabelDoc struct {
	Label     string `yaml:"label"`
	Offset    int    `yaml:"offset"`
	Size      int    `yaml:"size,omitempty"`
	BigEndian bool   `yaml:"be,omitempty"`
}

// Load reads and parses a table file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read table file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a table file. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &f, nil
}

// Encode renders f back to YAML.
func (f *File) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadDefinitions reads a table file and converts it.
func LoadDefinitions(path string) (serdbg.Definitions, error) {
	f, err := Load(path)
	if err != nil {
		return serdbg.Definitions{}, err
	}
	return f.Definitions()
}

// Definitions converts the decoded tables into engine definitions.
func (f *File) Definitions() (serdbg.Definitions, error) {
	var defs serdbg.Definitions
	for i, sd := range f.Send {
		d, err := sd.build()
		if err != nil {
			return defs, fmt.Errorf("send[%d]: %w", i, err)
		}
		defs.Sends = append(defs.Sends, d)
	}
	for i, sc := range f.Autosend {
		s, err := sc.build()
		if err != nil {
			return defs, fmt.Errorf("autosend[%d]: %w", i, err)
		}
		defs.Scripts = append(defs.Scripts, s)
	}
	sendIDs := make(map[string]bool, len(f.Send))
	for _, sd := range f.Send {
		sendIDs[sd.ID] = true
	}
	for i, pd := range f.Autoresp {
		for _, c := range pd.Copy {
			if !sendIDs[c.Send] {
				return defs, fmt.Errorf("autoresp[%d]: copy into %q: %w", i, c.Send, serdbg.ErrUnknownSendID)
			}
		}
		p, err := pd.build()
		if err != nil {
			return defs, fmt.Errorf("autoresp[%d]: %w", i, err)
		}
		defs.Patterns = append(defs.Patterns, p)
	}
	return defs, nil
}

func (d SendDoc) build() (*serdbg.SendData, error) {
	if d.Raw != "" && len(d.Fields) > 0 {
		return nil, fmt.Errorf("send %q: raw and fields are exclusive", d.ID)
	}
	var tmpl serdbg.Template
	if len(d.Fields) > 0 {
		fields := make([]serdbg.Field, len(d.Fields))
		for i, fd := range d.Fields {
			f, err := fd.build()
			if err != nil {
				return nil, fmt.Errorf("send %q field %d: %w", d.ID, i, err)
			}
			fields[i] = f
		}
		tmpl = serdbg.FieldTemplate(fields...)
	} else {
		raw, err := serdbg.ParseHex(d.Raw)
		if err != nil {
			return nil, fmt.Errorf("send %q: %w", d.ID, err)
		}
		tmpl = serdbg.RawTemplate(raw)
	}

	fcc := serdbg.NoFCC
	if d.FCC != nil {
		policy, err := serdbg.ParseChecksumPolicy(d.FCC.Policy)
		if err != nil {
			return nil, fmt.Errorf("send %q: %w", d.ID, err)
		}
		fcc = serdbg.FCC{Pos: d.FCC.Pos, Begin: d.FCC.Begin, End: d.FCC.End, Policy: policy}
	}
	return serdbg.NewSendData(d.ID, tmpl, d.Size, fcc)
}

func (d FieldDoc) build() (serdbg.Field, error) {
	set := 0
	for _, s := range []string{d.Fixed, d.Input, d.Input16, d.Input16BE} {
		if s != "" {
			set++
		}
	}
	if len(d.Select) > 0 {
		set++
	}
	if len(d.Select16) > 0 {
		set++
	}
	if set != 1 {
		return serdbg.Field{}, fmt.Errorf("%w: field needs exactly one kind", serdbg.ErrConfigRequired)
	}

	switch {
	case d.Fixed != "":
		v, err := parseValue(d.Fixed, 8)
		return serdbg.Fixed(byte(v)), err
	case d.Input != "":
		v, err := parseValue(d.Input, 8)
		return serdbg.Input(byte(v)), err
	case d.Input16 != "":
		v, err := parseValue(d.Input16, 16)
		return serdbg.Input16(v), err
	case d.Input16BE != "":
		v, err := parseValue(d.Input16BE, 16)
		return serdbg.Input16BE(v), err
	case len(d.Select) > 0:
		opts, err := buildOptions(d.Select, 8)
		return serdbg.Select(opts...), err
	default:
		opts, err := buildOptions(d.Select16, 16)
		return serdbg.Select16(opts...), err
	}
}

func buildOptions(docs []OptionDoc, bits int) ([]serdbg.Option, error) {
	opts := make([]serdbg.Option, len(docs))
	for i, o := range docs {
		v, err := parseValue(o.Value, bits)
		if err != nil {
			return nil, fmt.Errorf("option %q: %w", o.Name, err)
		}
		opts[i] = serdbg.Option{Name: o.Name, Value: v}
	}
	return opts, nil
}

func parseValue(s string, bits int) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(s), "0x"), 16, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", serdbg.ErrInvalidHex, s)
	}
	return uint16(v), nil
}

func (d ScriptDoc) build() (*serdbg.Script, error) {
	steps := make([]serdbg.Step, len(d.Steps))
	for i, s := range d.Steps {
		step, err := ParseStep(s)
		if err != nil {
			return nil, fmt.Errorf("script %q step %d: %w", d.ID, i, err)
		}
		steps[i] = step
	}
	return serdbg.NewScript(d.ID, d.Enabled, steps...)
}

// ParseStep parses one step of a script: "send <id>", "wait <duration>",
// "jump <index>" or "exit". Durations use time.ParseDuration syntax, so
// "10ms" and "250us" are both valid.
func ParseStep(s string) (serdbg.Step, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return serdbg.Step{}, fmt.Errorf("%w: empty step", serdbg.ErrConfigRequired)
	}
	keyword, args := strings.ToLower(fields[0]), fields[1:]
	switch {
	case keyword == "exit" && len(args) == 0:
		return serdbg.ExitStep(), nil
	case keyword == "send" && len(args) == 1:
		return serdbg.SendStep(args[0]), nil
	case keyword == "wait" && len(args) == 1:
		d, err := time.ParseDuration(args[0])
		if err != nil || d < 0 {
			return serdbg.Step{}, fmt.Errorf("%w: bad wait %q", serdbg.ErrConfigRequired, args[0])
		}
		return serdbg.WaitStep(d), nil
	case keyword == "jump" && len(args) == 1:
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return serdbg.Step{}, fmt.Errorf("%w: bad jump %q", serdbg.ErrJumpOutOfRange, args[0])
		}
		return serdbg.JumpStep(n), nil
	default:
		return serdbg.Step{}, fmt.Errorf("%w: unknown step %q", serdbg.ErrConfigRequired, s)
	}
}

func (d PatternDoc) build() (serdbg.PatternDef, error) {
	p, err := serdbg.ParsePattern(d.Pattern)
	if err != nil {
		return serdbg.PatternDef{}, fmt.Errorf("pattern %q: %w", d.ID, err)
	}
	def := serdbg.PatternDef{
		ID:      d.ID,
		Pattern: p,
		Enabled: d.Enabled,
		SendID:  d.Send,
	}
	if len(d.Copy) > 0 {
		var ma serdbg.MultiAnalyzer
		for _, c := range d.Copy {
			ma = append(ma, serdbg.CopyAnalyzer{SendID: c.Send, From: c.From, To: c.To, Len: c.Len})
		}
		def.Analyzer = ma
	}
	if len(d.Log) > 0 {
		var mf serdbg.MultiFormatter
		for _, l := range d.Log {
			mf = append(mf, serdbg.FieldFormatter{Label: l.Label, Offset: l.Offset, Size: l.Size, BigEndian: l.BigEndian})
		}
		def.Formatter = mf
	}
	return def, nil
}
