// Package persist implements the tracker's on-disk persistence (spec
// component C8): atomic snapshot writers for groups, storages, and
// pairwise sync timestamps, and an append-only, fsync'd change-log
// appender. File layout follows spec.md §4.7 and §6 "On-disk layout".
//
// The on-disk format is a bespoke section-based key=value text format
// (`[Global]`, `[Group001]`, ...), not generic INI, so it is hand-rolled
// against the standard library rather than an ini-parsing dependency: no
// repo in the retrieval pack imports one directly (go-ini appears only as
// an indirect, never-imported transitive dependency), and pulling one in
// for a format this small and FastDFS-specific would not buy anything a
// bufio.Scanner doesn't already give us.
package persist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
)

// Error is the error class for the persist package.
var Error = errs.Class("persist")

const (
	groupsFilename    = "storage_groups.dat"
	storagesFilename  = "storage_servers.dat"
	syncTsFilename    = "storage_sync_timestamps.dat"
	changelogFilename = "storage_changelog.dat"
)

// Disk is the filesystem-backed implementation of cluster.Persister.
type Disk struct {
	dataDir string
	log     *zap.Logger

	changelogFile *os.File
	changelogSize int64
}

// Open opens (creating if necessary) the persistence layer rooted at
// dataDir, measuring the existing change-log's size, per spec.md §4.7's
// load order ("change-log (open, measure size) → ...").
func Open(dataDir string, log *zap.Logger) (*Disk, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, Error.Wrap(err)
	}
	if err := MigrateLegacyIfNeeded(dataDir, log); err != nil {
		return nil, Error.Wrap(err)
	}
	path := filepath.Join(dataDir, changelogFilename)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, Error.Wrap(err)
	}
	return &Disk{dataDir: dataDir, log: log, changelogFile: f, changelogSize: info.Size()}, nil
}

// Close closes the change-log file handle.
func (d *Disk) Close() error {
	return d.changelogFile.Close()
}

// ChangelogSize returns the current size of the change-log file.
func (d *Disk) ChangelogSize() int64 { return d.changelogSize }

// atomicWrite writes contents to <dataDir>/<name>, via a .tmp sibling,
// fsync, and rename-over, per spec.md §4.7. On failure the tmp file is
// unlinked.
func (d *Disk) atomicWrite(name string, write func(w *bufio.Writer) error) (err error) {
	final := filepath.Join(d.dataDir, name)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	w := bufio.NewWriter(f)
	if err = write(w); err != nil {
		return Error.Wrap(err)
	}
	if err = w.Flush(); err != nil {
		return Error.Wrap(err)
	}
	if err = f.Sync(); err != nil {
		return Error.Wrap(err)
	}
	if err = f.Close(); err != nil {
		return Error.Wrap(err)
	}
	if err = os.Rename(tmp, final); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// SaveGroups implements cluster.Persister, writing the `[Global]` +
// `[Group###]` sections described by spec.md §6 "On-disk layout".
func (d *Disk) SaveGroups(groups []*cluster.Group) error {
	err := d.atomicWrite(groupsFilename, func(w *bufio.Writer) error {
		fmt.Fprintf(w, "[Global]\ngroup_count=%d\n\n", len(groups))
		for i, g := range groups {
			fmt.Fprintf(w, "[Group%03d]\n", i+1)
			fmt.Fprintf(w, "group_name=%s\n", g.Name)
			fmt.Fprintf(w, "storage_port=%d\n", g.StoragePort)
			fmt.Fprintf(w, "storage_http_port=%d\n", g.StorageHTTPPort)
			fmt.Fprintf(w, "store_path_count=%d\n", g.StorePathCount)
			fmt.Fprintf(w, "subdir_count_per_path=%d\n", g.SubdirCountPerPath)
			fmt.Fprintf(w, "current_trunk_file_id=%d\n", g.CurrentTrunkFileID)
			fmt.Fprintf(w, "total_mb=%d\n", g.TotalMB)
			fmt.Fprintf(w, "free_mb=%d\n", g.FreeMB)
			fmt.Fprintf(w, "trunk_free_mb=%d\n", g.TrunkFreeMB)
			fmt.Fprintf(w, "count=%d\n", g.Count)
			fmt.Fprintf(w, "active_count=%d\n", g.ActiveCount)
			fmt.Fprintf(w, "last_trunk_server_id=%s\n", g.LastTrunkServerID)
			fmt.Fprintf(w, "change_count=%d\n", g.ChangeCount)
			fmt.Fprintf(w, "trunk_change_count=%d\n\n", g.TrunkChangeCount)
		}
		return nil
	})
	if err != nil {
		d.log.Warn("save groups failed", zap.Error(err))
	}
	return err
}

// SaveStorages implements cluster.Persister, writing one `[Storage###]`
// section per storage across all groups, per spec.md §6.
func (d *Disk) SaveStorages(groups []*cluster.Group) error {
	err := d.atomicWrite(storagesFilename, func(w *bufio.Writer) error {
		n := 0
		for _, g := range groups {
			for _, s := range g.SortedByIDStorages {
				n++
				fmt.Fprintf(w, "[Storage%03d]\n", n)
				fmt.Fprintf(w, "group_name=%s\n", g.Name)
				fmt.Fprintf(w, "id=%s\n", s.ID)
				if len(s.IPAddrs) > 0 {
					fmt.Fprintf(w, "ip_addr=%s\n", s.IPAddrs[0])
				}
				fmt.Fprintf(w, "status=%d\n", s.Status)
				fmt.Fprintf(w, "storage_port=%d\n", s.StoragePort)
				fmt.Fprintf(w, "storage_http_port=%d\n", s.StorageHTTPPort)
				fmt.Fprintf(w, "store_path_count=%d\n", s.StorePathCount)
				fmt.Fprintf(w, "subdir_count_per_path=%d\n", s.SubdirCountPerPath)
				fmt.Fprintf(w, "upload_priority=%d\n", s.UploadPriority)
				fmt.Fprintf(w, "join_time=%d\n", s.JoinTime)
				fmt.Fprintf(w, "up_time=%d\n", s.UpTime)
				fmt.Fprintf(w, "total_mb=%d\n", s.TotalMB)
				fmt.Fprintf(w, "free_mb=%d\n", s.FreeMB)
				fmt.Fprintf(w, "changelog_offset=%d\n", s.ChangelogOffset)
				fmt.Fprintf(w, "last_heartbeat=%d\n\n", s.LastHeartbeat)
			}
		}
		return nil
	})
	if err != nil {
		d.log.Warn("save storages failed", zap.Error(err))
	}
	return err
}

// SaveSyncTimestamps implements cluster.Persister.
func (d *Disk) SaveSyncTimestamps(groups []*cluster.Group) error {
	err := d.atomicWrite(syncTsFilename, func(w *bufio.Writer) error {
		for _, g := range groups {
			dests := make([]string, 0, len(g.PairwiseLastSyncTs))
			for dest := range g.PairwiseLastSyncTs {
				dests = append(dests, dest)
			}
			sort.Strings(dests)
			for _, dest := range dests {
				srcs := g.PairwiseLastSyncTs[dest]
				srcIDs := make([]string, 0, len(srcs))
				for src := range srcs {
					srcIDs = append(srcIDs, src)
				}
				sort.Strings(srcIDs)
				for _, src := range srcIDs {
					fmt.Fprintf(w, "%s %s %s %d\n", g.Name, dest, src, srcs[src])
				}
			}
		}
		return nil
	})
	if err != nil {
		d.log.Warn("save sync timestamps failed", zap.Error(err))
	}
	return err
}

// AppendChangelog implements cluster.Persister: append-only, fsync per
// record, keeping the running size in memory, per spec.md §4.7.
func (d *Disk) AppendChangelog(ts int64, group string, storageID string, status cluster.Status, arg string) error {
	line := fmt.Sprintf("%d %s %s %s %s\n", ts, group, storageID, status, arg)
	n, err := d.changelogFile.WriteString(line)
	if err != nil {
		return Error.Wrap(err)
	}
	if err := d.changelogFile.Sync(); err != nil {
		return Error.Wrap(err)
	}
	d.changelogSize += int64(n)
	return nil
}

// ReadChangelogSlice reads up to maxLen bytes of the change-log starting
// at offset, for spec.md §4.6's STORAGE_CHANGELOG_REQ handler. Returns
// io.EOF-safe behavior: reading past the end simply returns fewer bytes.
func (d *Disk) ReadChangelogSlice(offset int64, maxLen int) ([]byte, error) {
	buf := make([]byte, maxLen)
	n, err := d.changelogFile.ReadAt(buf, offset)
	if err != nil && n == 0 && err != io.EOF {
		return nil, Error.Wrap(err)
	}
	return buf[:n], nil
}

// sysFileNames maps pkg/relationship's SysFileIndex ordering (groups,
// servers, sync-timestamps, change-log) to the on-disk filenames, for
// GET_ONE_SYS_FILE's server side.
var sysFileNames = [...]string{groupsFilename, storagesFilename, syncTsFilename, changelogFilename}

// SysFileSize returns the current on-disk size of the index'th system
// file (groups=0, servers=1, sync-timestamps=2, change-log=3), per
// spec.md §4.3's system-file catch-up transfer.
func (d *Disk) SysFileSize(index int) (int64, error) {
	if index < 0 || index >= len(sysFileNames) {
		return 0, Error.New("invalid system file index %d", index)
	}
	info, err := os.Stat(filepath.Join(d.dataDir, sysFileNames[index]))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return info.Size(), nil
}

// ReadSysFileSlice reads up to maxLen bytes of the index'th system file
// starting at offset, mirroring ReadChangelogSlice's semantics. At
// offset == size it returns a zero-length slice; at offset > size it
// returns a persist-class error (the GET_ONE_SYS_FILE handler checks
// the offset itself first and answers InvalidArgument).
func (d *Disk) ReadSysFileSlice(index int, offset int64, maxLen int) ([]byte, error) {
	size, err := d.SysFileSize(index)
	if err != nil {
		return nil, err
	}
	if offset > size {
		return nil, Error.New("offset %d beyond system file size %d", offset, size)
	}
	if offset == size {
		return nil, nil
	}
	f, err := os.Open(filepath.Join(d.dataDir, sysFileNames[index]))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer f.Close()
	buf := make([]byte, maxLen)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, Error.Wrap(err)
	}
	return buf[:n], nil
}
