package wire

// LOpenFlags holds the Linux open(2)-style flags passed to Tlopen and
// Tlcreate. Marshal writes every bit as given; decoding a Tlopen or
// Tlcreate drops any bit outside the well-known ones below.
type LOpenFlags uint32

const (
	ORDONLY LOpenFlags = 0
	OWRONLY LOpenFlags = 1
	ORDWR   LOpenFlags = 2
	OEXCL   LOpenFlags = 0o200
	OTRUNC  LOpenFlags = 0o1000

	lopenKnownBits = ORDONLY | OWRONLY | ORDWR | OEXCL | OTRUNC
)

func truncateLOpenFlags(v uint32) LOpenFlags {
	return LOpenFlags(v) & lopenKnownBits
}

// LockType is the typ field of a Flock/Getlock message.
type LockType uint8

const (
	LockTypeRDLock LockType = 0
	LockTypeWRLock LockType = 1
	LockTypeUnlock LockType = 2

	lockTypeKnownBits = LockTypeRDLock | LockTypeWRLock | LockTypeUnlock
)

func truncateLockType(v uint8) LockType {
	return LockType(v) & lockTypeKnownBits
}

// LockFlag holds the flags field of a Flock message.
type LockFlag uint32

const (
	LockFlagBlock   LockFlag = 1
	LockFlagReclaim LockFlag = 2
)

func truncateLockFlag(v uint32) LockFlag {
	return LockFlag(v) & (LockFlagBlock | LockFlagReclaim)
}

// LockStatus is the result of a Tlock request, returned in Rlock.
type LockStatus uint8

const (
	LockStatusSuccess LockStatus = 0
	LockStatusBlocked LockStatus = 1
	LockStatusError   LockStatus = 2
	LockStatusGrace   LockStatus = 3

	lockStatusKnownBits = LockStatusSuccess | LockStatusBlocked | LockStatusError | LockStatusGrace
)

func truncateLockStatus(v uint8) LockStatus {
	return LockStatus(v) & lockStatusKnownBits
}

// GetattrMask selects which fields of a Stat are populated in an
// Rgetattr reply (req_mask of Tgetattr, valid of Rgetattr).
type GetattrMask uint64

const (
	GetattrMode GetattrMask = 0x00000001
	GetattrNlink GetattrMask = 0x00000002
	GetattrUID  GetattrMask = 0x00000004
	GetattrGID  GetattrMask = 0x00000008
	GetattrRdev GetattrMask = 0x00000010
	GetattrAtime GetattrMask = 0x00000020
	GetattrMtime GetattrMask = 0x00000040
	GetattrCtime GetattrMask = 0x00000080
	GetattrIno  GetattrMask = 0x00000100
	GetattrSize GetattrMask = 0x00000200
	GetattrBlocks GetattrMask = 0x00000400

	GetattrBtime       GetattrMask = 0x00000800
	GetattrGen         GetattrMask = 0x00001000
	GetattrDataVersion GetattrMask = 0x00002000

	// GetattrBasic covers every field up to and including Blocks.
	GetattrBasic GetattrMask = 0x000007ff
	// GetattrAll covers every field this package knows about.
	GetattrAll GetattrMask = 0x00003fff
)

func truncateGetattrMask(v uint64) GetattrMask {
	return GetattrMask(v) & GetattrAll
}

// SetattrMask selects which fields of a SetAttr are applied by a
// Tsetattr request.
type SetattrMask uint32

const (
	SetattrMode    SetattrMask = 0x00000001
	SetattrUID     SetattrMask = 0x00000002
	SetattrGID     SetattrMask = 0x00000004
	SetattrSize    SetattrMask = 0x00000008
	SetattrAtime   SetattrMask = 0x00000010
	SetattrMtime   SetattrMask = 0x00000020
	SetattrCtime   SetattrMask = 0x00000040
	SetattrAtimeSet SetattrMask = 0x00000080
	SetattrMtimeSet SetattrMask = 0x00000100

	setattrAllBits = SetattrMode | SetattrUID | SetattrGID | SetattrSize |
		SetattrAtime | SetattrMtime | SetattrCtime | SetattrAtimeSet | SetattrMtimeSet
)

func truncateSetattrMask(v uint32) SetattrMask {
	return SetattrMask(v) & setattrAllBits
}
