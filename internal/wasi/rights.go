package wasi

// Rights is the bitset gating which operations a file descriptor permits
// (spec.md §4.10 "Rights are a bitset"). A syscall that would exercise a
// right absent from the FD's current rights set fails with ErrnoNotcapable
// without touching the filesystem.
type Rights uint64

const (
	RightFdDatasync Rights = 1 << iota
	RightFdRead
	RightFdSeek
	RightFdFdstatSetFlags
	RightFdSync
	RightFdTell
	RightFdWrite
	RightFdAdvise
	RightFdAllocate
	RightPathCreateDirectory
	RightPathCreateFile
	RightPathLinkSource
	RightPathLinkTarget
	RightPathOpen
	RightFdReaddir
	RightPathReadlink
	RightPathRenameSource
	RightPathRenameTarget
	RightPathFilestatGet
	RightPathFilestatSetSize
	RightPathFilestatSetTimes
	RightFdFilestatGet
	RightFdFilestatSetSize
	RightFdFilestatSetTimes
	RightPathSymlink
	RightPathRemoveDirectory
	RightPathUnlinkFile
	RightPollFdReadwrite
	RightSockShutdown
	RightSockAccept
	RightFdstatSetRights
)

// RightsAll is every right defined above, the rights set a preopened
// directory or a freshly opened regular file is granted by default,
// narrowed by path_open's fs_rights_base/fs_rights_inheriting parameters.
const RightsAll = RightFdDatasync | RightFdRead | RightFdSeek | RightFdFdstatSetFlags |
	RightFdSync | RightFdTell | RightFdWrite | RightFdAdvise | RightFdAllocate |
	RightPathCreateDirectory | RightPathCreateFile | RightPathLinkSource | RightPathLinkTarget |
	RightPathOpen | RightFdReaddir | RightPathReadlink | RightPathRenameSource | RightPathRenameTarget |
	RightPathFilestatGet | RightPathFilestatSetSize | RightPathFilestatSetTimes |
	RightFdFilestatGet | RightFdFilestatSetSize | RightFdFilestatSetTimes |
	RightPathSymlink | RightPathRemoveDirectory | RightPathUnlinkFile |
	RightPollFdReadwrite | RightSockShutdown | RightSockAccept | RightFdstatSetRights

// RightsReadOnlyFile is the rights set BindStdio grants stdin.
const RightsReadOnlyFile = RightFdRead | RightFdSeek | RightFdTell | RightFdFilestatGet | RightPollFdReadwrite

// Has reports whether every bit set in want is also set in r.
func (r Rights) Has(want Rights) bool { return r&want == want }
