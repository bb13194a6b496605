package persist

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// GroupRecord is one parsed `[Group###]` section of storage_groups.dat.
type GroupRecord struct {
	Name               string
	StoragePort        uint16
	StorageHTTPPort    uint16
	StorePathCount     int
	SubdirCountPerPath int
	CurrentTrunkFileID int64
	LastTrunkServerID  string
	ChangeCount        int64
	TrunkChangeCount   int64
}

// StorageRecord is one parsed `[Storage###]` section of storage_servers.dat.
type StorageRecord struct {
	GroupName       string
	ID              string
	IPAddr          string
	Status          int
	StoragePort     uint16
	StorageHTTPPort uint16
	StorePathCount  int
	SubdirCountPerPath int
	UploadPriority  int
	JoinTime        int64
	UpTime          int64
	TotalMB         int64
	FreeMB          int64
	ChangelogOffset int64
	LastHeartbeat   int64
}

// SyncTsRecord is one parsed line of storage_sync_timestamps.dat.
type SyncTsRecord struct {
	GroupName string
	Dest      string
	Src       string
	Ts        int64
}

// parseSections reads a `[Section]\nkey=value\n` formatted file into an
// ordered list of (sectionName, fields) pairs.
func parseSections(path string) ([]string, []map[string]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, Error.Wrap(err)
	}
	defer f.Close()

	var names []string
	var sections []map[string]string
	var cur map[string]string

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			cur = make(map[string]string)
			names = append(names, line[1:len(line)-1])
			sections = append(sections, cur)
			continue
		}
		if cur == nil {
			continue // stray line before any section, e.g. legacy header
		}
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		cur[kv[0]] = kv[1]
	}
	if err := sc.Err(); err != nil {
		return nil, nil, Error.Wrap(err)
	}
	return names, sections, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func atou16(s string) uint16 {
	n, _ := strconv.ParseUint(s, 10, 16)
	return uint16(n)
}

// LoadGroups parses <dataDir>/storage_groups.dat, returning nil if the
// file does not yet exist (fresh cluster).
func LoadGroups(dataDir string) ([]GroupRecord, error) {
	names, sections, err := parseSections(joinPath(dataDir, groupsFilename))
	if err != nil {
		return nil, err
	}
	var out []GroupRecord
	for i, name := range names {
		if name == "Global" {
			continue
		}
		f := sections[i]
		out = append(out, GroupRecord{
			Name:               f["group_name"],
			StoragePort:        atou16(f["storage_port"]),
			StorageHTTPPort:    atou16(f["storage_http_port"]),
			StorePathCount:     atoi(f["store_path_count"]),
			SubdirCountPerPath: atoi(f["subdir_count_per_path"]),
			CurrentTrunkFileID: atoi64(f["current_trunk_file_id"]),
			LastTrunkServerID:  f["last_trunk_server_id"],
			ChangeCount:        atoi64(f["change_count"]),
			TrunkChangeCount:   atoi64(f["trunk_change_count"]),
		})
	}
	return out, nil
}

// LoadStorages parses <dataDir>/storage_servers.dat.
func LoadStorages(dataDir string) ([]StorageRecord, error) {
	names, sections, err := parseSections(joinPath(dataDir, storagesFilename))
	if err != nil {
		return nil, err
	}
	var out []StorageRecord
	for i := range names {
		f := sections[i]
		out = append(out, StorageRecord{
			GroupName:          f["group_name"],
			ID:                 f["id"],
			IPAddr:             f["ip_addr"],
			Status:             atoi(f["status"]),
			StoragePort:        atou16(f["storage_port"]),
			StorageHTTPPort:    atou16(f["storage_http_port"]),
			StorePathCount:     atoi(f["store_path_count"]),
			SubdirCountPerPath: atoi(f["subdir_count_per_path"]),
			UploadPriority:     atoi(f["upload_priority"]),
			JoinTime:           atoi64(f["join_time"]),
			UpTime:             atoi64(f["up_time"]),
			TotalMB:            atoi64(f["total_mb"]),
			FreeMB:             atoi64(f["free_mb"]),
			ChangelogOffset:    atoi64(f["changelog_offset"]),
			LastHeartbeat:      atoi64(f["last_heartbeat"]),
		})
	}
	return out, nil
}

// LoadSyncTimestamps parses <dataDir>/storage_sync_timestamps.dat.
func LoadSyncTimestamps(dataDir string) ([]SyncTsRecord, error) {
	f, err := os.Open(joinPath(dataDir, syncTsFilename))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer f.Close()

	var out []SyncTsRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 4 {
			continue
		}
		out = append(out, SyncTsRecord{
			GroupName: fields[0],
			Dest:      fields[1],
			Src:       fields[2],
			Ts:        atoi64(fields[3]),
		})
	}
	return out, sc.Err()
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
