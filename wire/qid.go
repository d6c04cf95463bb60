package wire

import (
	"encoding/binary"
	"fmt"
)

// QidType is the high byte of a Qid; it mirrors the high 8 bits of a
// Unix file mode and identifies what kind of object a Qid refers to.
// Unknown bits are dropped on decode (from-bits-truncate semantics).
type QidType uint8

const (
	QTDIR     QidType = 1 << 7
	QTAPPEND  QidType = 1 << 6
	QTEXCL    QidType = 1 << 5
	QTMOUNT   QidType = 1 << 4
	QTAUTH    QidType = 1 << 3
	QTTMP     QidType = 1 << 2
	QTSYMLINK QidType = 1 << 1
	QTLINK    QidType = 1 << 0
	QTFILE    QidType = 0

	qtypeKnownBits = QTDIR | QTAPPEND | QTEXCL | QTMOUNT | QTAUTH | QTTMP | QTSYMLINK | QTLINK
)

// TruncateQidType drops any bits not recognized by this package,
// matching the wire's from-bits-truncate decoding discipline.
func TruncateQidType(b uint8) QidType {
	return QidType(b) & qtypeKnownBits
}

// Qid is the server-assigned identity of a filesystem object: two
// Qids are the same object if and only if their Type and Path agree;
// Version changes whenever the object's content is mutated.
type Qid struct {
	Type    QidType
	Version uint32
	Path    uint64
}

func (q Qid) String() string {
	return fmt.Sprintf("{type=%#x version=%d path=%d}", uint8(q.Type), q.Version, q.Path)
}

func (q Qid) marshal(b []byte) {
	_ = b[QidLen-1]
	b[0] = uint8(q.Type)
	binary.LittleEndian.PutUint32(b[1:5], q.Version)
	binary.LittleEndian.PutUint64(b[5:13], q.Path)
}

func unmarshalQid(b []byte) Qid {
	_ = b[QidLen-1]
	return Qid{
		Type:    TruncateQidType(b[0]),
		Version: binary.LittleEndian.Uint32(b[1:5]),
		Path:    binary.LittleEndian.Uint64(b[5:13]),
	}
}
