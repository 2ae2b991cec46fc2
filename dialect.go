package smb

import "fmt"

// Dialect is a negotiated SMB2 protocol dialect revision.
type Dialect uint16

const (
	Dialect0202 Dialect = 0x0202
	Dialect0210 Dialect = 0x0210
	Dialect0300 Dialect = 0x0300
	Dialect0302 Dialect = 0x0302
	Dialect0311 Dialect = 0x0311
)

// SupportsMultiChannel reports whether the dialect belongs to the SMB 3.x family.
func (d Dialect) SupportsMultiChannel() bool {
	return d >= Dialect0300
}

func (d Dialect) String() string {
	switch d {
	case Dialect0202:
		return "2.0.2"
	case Dialect0210:
		return "2.1"
	case Dialect0300:
		return "3.0"
	case Dialect0302:
		return "3.0.2"
	case Dialect0311:
		return "3.1.1"
	default:
		return fmt.Sprintf("UnknownDialect(0x%04x)", uint16(d))
	}
}
