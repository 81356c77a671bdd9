package wasi

import (
	"io"
	"os"
	"time"
)

// OSFS is the default FS backed directly by the host filesystem, rooted at
// a single directory (the one granted to a preopened FD). It is the
// concrete collaborator Process.Preopen wires in when the embedder hands
// it a real directory rather than a synthetic in-memory one.
type OSFS struct {
	root string
}

func NewOSFS(root string) *OSFS { return &OSFS{root: root} }

func (fs *OSFS) resolve(path string) string {
	if path == "" {
		return fs.root
	}
	return fs.root + "/" + path
}

func (fs *OSFS) Open(path string, flags OpenFlags) (VFD, error) {
	if !flags.Valid() {
		return nil, os.ErrInvalid
	}
	osFlags := os.O_RDONLY
	if flags.ReadWrite {
		osFlags = os.O_RDWR
	}
	if flags.Create {
		osFlags |= os.O_CREATE
	}
	if flags.Exclusive {
		osFlags |= os.O_EXCL
	}
	if flags.Truncate {
		osFlags |= os.O_TRUNC
	}
	if flags.Append {
		osFlags |= os.O_APPEND
	}
	f, err := os.OpenFile(fs.resolve(path), osFlags, 0o644)
	if err != nil {
		return nil, err
	}
	if flags.Directory {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		if !info.IsDir() {
			f.Close()
			return nil, os.ErrInvalid
		}
	}
	return &osVFD{f: f}, nil
}

func (fs *OSFS) Stat(path string) (FileInfo, error) {
	info, err := os.Stat(fs.resolve(path))
	if err != nil {
		return FileInfo{}, err
	}
	return toFileInfo(info), nil
}

func (fs *OSFS) SetTimes(path string, atime, mtime time.Time) error {
	return os.Chtimes(fs.resolve(path), atime, mtime)
}

func (fs *OSFS) Unlink(path string) error    { return os.Remove(fs.resolve(path)) }
func (fs *OSFS) RemoveDir(path string) error { return os.Remove(fs.resolve(path)) }
func (fs *OSFS) CreateDir(path string) error { return os.Mkdir(fs.resolve(path), 0o755) }

func toFileInfo(info os.FileInfo) FileInfo {
	return FileInfo{IsDir: info.IsDir(), Size: info.Size(), ModTime: info.ModTime()}
}

type osVFD struct {
	f *os.File
}

func (v *osVFD) Read(p []byte) (int, error)                  { return v.f.Read(p) }
func (v *osVFD) Write(p []byte) (int, error)                 { return v.f.Write(p) }
func (v *osVFD) ReadAt(p []byte, off int64) (int, error)      { return v.f.ReadAt(p, off) }
func (v *osVFD) WriteAt(p []byte, off int64) (int, error)     { return v.f.WriteAt(p, off) }
func (v *osVFD) Seek(offset int64, whence int) (int64, error) { return v.f.Seek(offset, whence) }
func (v *osVFD) Sync() error                                  { return v.f.Sync() }
func (v *osVFD) Truncate(size int64) error                    { return v.f.Truncate(size) }
func (v *osVFD) SetTimes(atime, mtime time.Time) error        { return os.Chtimes(v.f.Name(), atime, mtime) }
func (v *osVFD) Close() error                                 { return v.f.Close() }

func (v *osVFD) Stat() (FileInfo, error) {
	info, err := v.f.Stat()
	if err != nil {
		return FileInfo{}, err
	}
	return toFileInfo(info), nil
}

func (v *osVFD) OpenDir() (DirStream, error) {
	names, err := v.f.Readdirnames(-1)
	if err != nil && err != io.EOF {
		return nil, err
	}
	entries := make([]DirEntry, 0, len(names))
	for _, name := range names {
		info, err := os.Stat(v.f.Name() + "/" + name)
		isDir := err == nil && info.IsDir()
		entries = append(entries, DirEntry{Name: name, IsDir: isDir})
	}
	return &sliceDirStream{entries: entries}, nil
}

// sliceDirStream is a DirStream over a pre-materialized entry list: simple
// and correct for the local, single-process filesystems this runtime
// targets, at the cost of not reflecting concurrent directory mutation
// mid-iteration.
type sliceDirStream struct {
	entries []DirEntry
	cursor  uint64
}

func (d *sliceDirStream) GetNext() (DirEntry, bool, error) {
	if d.cursor >= uint64(len(d.entries)) {
		return DirEntry{}, false, nil
	}
	e := d.entries[d.cursor]
	d.cursor++
	return e, true, nil
}

func (d *sliceDirStream) Seek(cookie uint64) error { d.cursor = cookie; return nil }
func (d *sliceDirStream) Tell() (uint64, error)     { return d.cursor, nil }
func (d *sliceDirStream) Close() error              { return nil }
