package wire

import "fmt"

// MsgType identifies the kind of a 9P2000.L message; it is the
// type[1] byte immediately following the size[4] prefix.
type MsgType uint8

// The full 9P2000.L message set. Numbers are fixed by the protocol
// and must not be renumbered.
const (
	MsgTlerror MsgType = 6
	MsgRlerror MsgType = 7

	MsgTstatfs MsgType = 8
	MsgRstatfs MsgType = 9

	MsgTlopen MsgType = 12
	MsgRlopen MsgType = 13

	MsgTlcreate MsgType = 14
	MsgRlcreate MsgType = 15

	MsgTsymlink MsgType = 16
	MsgRsymlink MsgType = 17

	MsgTmknod MsgType = 18
	MsgRmknod MsgType = 19

	MsgTrename MsgType = 20
	MsgRrename MsgType = 21

	MsgTreadlink MsgType = 22
	MsgRreadlink MsgType = 23

	MsgTgetattr MsgType = 24
	MsgRgetattr MsgType = 25

	MsgTsetattr MsgType = 26
	MsgRsetattr MsgType = 27

	MsgTxattrwalk MsgType = 30
	MsgRxattrwalk MsgType = 31

	MsgTxattrcreate MsgType = 32
	MsgRxattrcreate MsgType = 33

	MsgTreaddir MsgType = 40
	MsgRreaddir MsgType = 41

	MsgTfsync MsgType = 50
	MsgRfsync MsgType = 51

	MsgTlock MsgType = 52
	MsgRlock MsgType = 53

	MsgTgetlock MsgType = 54
	MsgRgetlock MsgType = 55

	MsgTlink MsgType = 70
	MsgRlink MsgType = 71

	MsgTmkdir MsgType = 72
	MsgRmkdir MsgType = 73

	MsgTrenameat MsgType = 74
	MsgRrenameat MsgType = 75

	MsgTunlinkat MsgType = 76
	MsgRunlinkat MsgType = 77

	MsgTversion MsgType = 100
	MsgRversion MsgType = 101

	MsgTauth MsgType = 102
	MsgRauth MsgType = 103

	MsgTattach MsgType = 104
	MsgRattach MsgType = 105

	MsgTflush MsgType = 108
	MsgRflush MsgType = 109

	MsgTwalk MsgType = 110
	MsgRwalk MsgType = 111

	MsgTread MsgType = 116
	MsgRread MsgType = 117

	MsgTwrite MsgType = 118
	MsgRwrite MsgType = 119

	MsgTclunk MsgType = 120
	MsgRclunk MsgType = 121

	MsgTremove MsgType = 122
	MsgRremove MsgType = 123
)

var msgTypeNames = map[MsgType]string{
	MsgTlerror: "Tlerror", MsgRlerror: "Rlerror",
	MsgTstatfs: "Tstatfs", MsgRstatfs: "Rstatfs",
	MsgTlopen: "Tlopen", MsgRlopen: "Rlopen",
	MsgTlcreate: "Tlcreate", MsgRlcreate: "Rlcreate",
	MsgTsymlink: "Tsymlink", MsgRsymlink: "Rsymlink",
	MsgTmknod: "Tmknod", MsgRmknod: "Rmknod",
	MsgTrename: "Trename", MsgRrename: "Rrename",
	MsgTreadlink: "Treadlink", MsgRreadlink: "Rreadlink",
	MsgTgetattr: "Tgetattr", MsgRgetattr: "Rgetattr",
	MsgTsetattr: "Tsetattr", MsgRsetattr: "Rsetattr",
	MsgTxattrwalk: "Txattrwalk", MsgRxattrwalk: "Rxattrwalk",
	MsgTxattrcreate: "Txattrcreate", MsgRxattrcreate: "Rxattrcreate",
	MsgTreaddir: "Treaddir", MsgRreaddir: "Rreaddir",
	MsgTfsync: "Tfsync", MsgRfsync: "Rfsync",
	MsgTlock: "Tlock", MsgRlock: "Rlock",
	MsgTgetlock: "Tgetlock", MsgRgetlock: "Rgetlock",
	MsgTlink: "Tlink", MsgRlink: "Rlink",
	MsgTmkdir: "Tmkdir", MsgRmkdir: "Rmkdir",
	MsgTrenameat: "Trenameat", MsgRrenameat: "Rrenameat",
	MsgTunlinkat: "Tunlinkat", MsgRunlinkat: "Runlinkat",
	MsgTversion: "Tversion", MsgRversion: "Rversion",
	MsgTauth: "Tauth", MsgRauth: "Rauth",
	MsgTattach: "Tattach", MsgRattach: "Rattach",
	MsgTflush: "Tflush", MsgRflush: "Rflush",
	MsgTwalk: "Twalk", MsgRwalk: "Rwalk",
	MsgTread: "Tread", MsgRread: "Rread",
	MsgTwrite: "Twrite", MsgRwrite: "Rwrite",
	MsgTclunk: "Tclunk", MsgRclunk: "Rclunk",
	MsgTremove: "Tremove", MsgRremove: "Rremove",
}

func (t MsgType) String() string {
	if s, ok := msgTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("MsgType(%d)", uint8(t))
}
