package serdbg

import "fmt"

// ChecksumPolicy selects how an FCC byte is derived from the byte sum.
type ChecksumPolicy int

const (
	// ChecksumTwos is the two's complement of the sum, ((sum ^ 0xFF) + 1) mod 256
	ChecksumTwos ChecksumPolicy = iota
	// ChecksumSum is the plain sum mod 256
	ChecksumSum
	// ChecksumOnes is the one's complement of the sum, sum ^ 0xFF
	ChecksumOnes
)

// String returns the policy name as used in table files.
func (p ChecksumPolicy) String() string {
	switch p {
	case ChecksumTwos:
		return "twos"
	case ChecksumSum:
		return "sum"
	case ChecksumOnes:
		return "ones"
	default:
		return "unknown"
	}
}

// ParseChecksumPolicy converts a table file policy name. An empty name is
// the default two's complement policy.
func ParseChecksumPolicy(s string) (ChecksumPolicy, error) {
	switch s {
	case "", "twos":
		return ChecksumTwos, nil
	case "sum":
		return ChecksumSum, nil
	case "ones":
		return ChecksumOnes, nil
	default:
		return 0, fmt.Errorf("%w: unknown checksum policy %q", ErrConfigRequired, s)
	}
}

// FCC describes the frame check code of a send buffer. The checksum covers
// the half-open range [Begin, End) and is stored at Pos. A negative Pos
// disables the checksum.
type FCC struct {
	Pos    int
	Begin  int
	End    int
	Policy ChecksumPolicy
}

// NoFCC is the disabled checksum.
var NoFCC = FCC{Pos: -1}

// Enabled reports whether a checksum byte is maintained.
func (f FCC) Enabled() bool {
	return f.Pos >= 0
}

// Compute returns the checksum of data. The byte at Pos and indices past the
// end of data do not contribute.
func (f FCC) Compute(data []byte) byte {
	sum := 0
	for i := f.Begin; i < f.End; i++ {
		if i == f.Pos || i < 0 || i >= len(data) {
			continue
		}
		sum += int(data[i])
	}
	switch f.Policy {
	case ChecksumSum:
		return byte(sum % 256)
	case ChecksumOnes:
		return byte((sum ^ 0xFF) % 256)
	default:
		return byte(((sum ^ 0xFF) + 1) % 256)
	}
}

// Apply writes the checksum into data and returns the resulting buffer,
// zero-padded up to Pos when data is shorter. A disabled FCC returns data
// unchanged.
func (f FCC) Apply(data []byte) []byte {
	if !f.Enabled() {
		return data
	}
	for len(data) <= f.Pos {
		data = append(data, 0)
	}
	data[f.Pos] = f.Compute(data)
	return data
}
