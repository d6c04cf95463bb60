package wire

// Reserved tag and fid values.
const (
	// NoTag is used for the Tversion/Rversion exchange, before a
	// session has negotiated tags.
	NoTag uint16 = 0xFFFF

	// NoFid marks the absence of an afid in Tauth/Tattach.
	NoFid uint32 = 0xFFFFFFFF

	// NoNuname marks the absence of a numeric uid in Tauth/Tattach,
	// telling the server to resolve identity from Uname alone.
	NoNuname uint32 = 0xFFFFFFFF
)

// MaxWElem is the maximum number of path elements walked by a single
// Twalk message. A walk over more elements must be chunked by the
// caller into multiple Twalk requests, chained through intermediate
// fids.
const MaxWElem = 13

// IOHDRSZ and ReadDirHdrSZ are the number of bytes reserved out of
// the negotiated msize for Tread/Twrite and Treaddir headers,
// respectively. A client must bound the count field of these
// requests by msize minus the corresponding constant.
const (
	IOHDRSZ       = 24
	ReadDirHdrSZ  = 24
	MinMsize      = 4096 + ReadDirHdrSZ
	MaxVersionLen = 1 << 16
)

// QidLen is the wire length of a packed Qid.
const QidLen = 13

// HeaderLen is the number of bytes in the common message
// header: size[4] type[1] tag[2].
const HeaderLen = 7

// Version is the protocol version string this package implements.
const Version = "9P2000.L"
